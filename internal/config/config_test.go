package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MOODLOG_SOURCE", "MOODLOG_OUTPUT", "MOODLOG_BACKEND", "MOODLOG_DB_URL", "MOODLOG_WORKER_TIMEOUT",
		"POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	// Keep a stray .env in the package dir out of the picture
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0", cfg.Source)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, "python", cfg.Backend)
	assert.Equal(t, 30*time.Second, cfg.WorkerTimeout)
	assert.Equal(t, "", cfg.DSN(false))
	assert.Equal(t, "postgres://localhost:5432/moodlog", cfg.DSN(true))
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOODLOG_SOURCE", "clip.mp4")
	t.Setenv("MOODLOG_WORKER_TIMEOUT", "5s")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "clip.mp4", cfg.Source)
	assert.Equal(t, 5*time.Second, cfg.WorkerTimeout)
	assert.Equal(t, "postgres://u:p@db:5432/moodlog", cfg.DSN(false))

	t.Setenv("MOODLOG_DB_URL", "postgres://elsewhere/x")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://elsewhere/x", cfg.DSN(false))
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.WriteFile(".env", []byte("MOODLOG_OUTPUT=from_dotenv.xlsx\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("MOODLOG_OUTPUT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv.xlsx", cfg.Output)
}

func TestLoad_BadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("MOODLOG_WORKER_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	assert.True(t, NewLogger("debug").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewLogger("").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, NewLogger("error").Enabled(context.Background(), slog.LevelWarn))
}
