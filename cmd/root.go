package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/moodlog/internal/config"
	"github.com/andresmejia3/moodlog/internal/store"
	"github.com/spf13/cobra"
)

var (
	// cfg is the environment configuration shared by subcommands
	cfg *config.Config
	// logger carries diagnostics; progress lines are printed directly to stderr
	logger *slog.Logger
	// dbURL overrides the archive connection string
	dbURL string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "moodlog",
	Short:   "Real-time facial emotion logger",
	Long:    "Watches a camera or video, classifies the emotion on every detected face and logs a sample every 2 seconds to an Excel workbook.",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbURL != "" {
			cfg.DatabaseURL = dbURL
		}
		logger = config.NewLogger(cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the session archive (env: MOODLOG_DB_URL or POSTGRES_*)")
}

// openStore connects to the archive. When required is false and nothing is configured it returns nil.
func openStore(ctx context.Context, required bool) (*store.Store, error) {
	dsn := cfg.DSN(required)
	if dsn == "" {
		return nil, nil
	}
	db, err := store.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
