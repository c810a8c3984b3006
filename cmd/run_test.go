package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/moodlog/internal/config"
	"github.com/andresmejia3/moodlog/internal/types"
)

func TestMergeOptions(t *testing.T) {
	c := &config.Config{Source: "0", Output: "env.xlsx", Backend: "python", Model: "env.onnx"}

	got := mergeOptions(Options{Source: "clip.mp4", Backend: "dnn"}, c)

	if got.Source != "clip.mp4" || got.Backend != "dnn" {
		t.Errorf("Flags must win over the environment, got %+v", got)
	}
	if got.Output != "env.xlsx" || got.Model != "env.onnx" {
		t.Errorf("Empty flags must fall back to the environment, got %+v", got)
	}

	if got := mergeOptions(Options{Source: "1"}, nil); got.Source != "1" {
		t.Errorf("nil config must leave options untouched, got %+v", got)
	}
}

func TestValidateRunOptions(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "emotion.onnx")
	if err := os.WriteFile(model, []byte("onnx"), 0644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.xlsx")

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{"python backend", Options{Source: "0", Output: out, Backend: "python"}, ""},
		{"dnn backend", Options{Source: "0", Output: out, Backend: "dnn", Model: model}, ""},
		{"dnn without model", Options{Source: "0", Output: out, Backend: "dnn"}, "needs --model"},
		{"dnn missing model", Options{Source: "0", Output: out, Backend: "dnn", Model: model + ".gone"}, "unable to access model"},
		{"unknown backend", Options{Source: "0", Output: out, Backend: "tflite"}, "unknown backend"},
		{"no source", Options{Output: out, Backend: "python"}, "no video source"},
		{"output is a directory", Options{Source: "0", Output: dir, Backend: "python"}, "invalid output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRunOptions(tt.opts)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

type sliceWriter struct {
	rows []types.LogRow
	err  error
}

func (s *sliceWriter) Append(r types.LogRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, r)
	return nil
}

func TestArchiveTee(t *testing.T) {
	next := &sliceWriter{}
	tee := &archiveTee{next: next}

	row := types.LogRow{Time: time.Now(), Emotion: "sad", Confidence: 0.7}
	if err := tee.Append(row); err != nil {
		t.Fatal(err)
	}
	if len(next.rows) != 1 || len(tee.rows) != 1 {
		t.Fatalf("Expected the row in both places, got %d / %d", len(next.rows), len(tee.rows))
	}

	// A row the workbook refused must not be archived either
	next.err = errors.New("disk full")
	if err := tee.Append(row); err == nil {
		t.Fatal("Expected the workbook error to propagate")
	}
	if len(tee.rows) != 1 {
		t.Errorf("Expected 1 archived row, got %d", len(tee.rows))
	}
}

func TestPrintRows(t *testing.T) {
	base := time.Date(2024, 4, 1, 12, 0, 0, 0, time.Local)
	rows := []types.LogRow{
		{Time: base, Emotion: "happy", Confidence: 0.9},
		{Time: base.Add(2 * time.Second), Emotion: "happy", Confidence: 0.8},
		{Time: base.Add(4 * time.Second), Emotion: "angry", Confidence: 0.51},
	}

	var buf bytes.Buffer
	printRows(&buf, rows)
	out := buf.String()

	for _, want := range []string{"2024-04-01 12:00:02", "0.510", "happy     2", "angry     1"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	// Tally follows label order: angry before happy
	if strings.Index(out, "angry     1") > strings.Index(out, "happy     2") {
		t.Error("Expected tallies in label order")
	}

	buf.Reset()
	printRows(&buf, nil)
	if !strings.Contains(buf.String(), "No rows logged") {
		t.Errorf("Unexpected output for empty workbook: %q", buf.String())
	}
}

func TestFmtDuration(t *testing.T) {
	if got := fmtDuration(3*time.Hour + 4*time.Minute + 5*time.Second); got != "03:04:05" {
		t.Errorf("fmtDuration() = %s", got)
	}
}
