package utils

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeCommandCapturesStderr(t *testing.T) {
	// Integration test using the OS shell
	s := NewSafeCommand(context.Background(), "sh", "-c", "echo boom 1>&2; exit 3")
	if err := s.Run(); err == nil {
		t.Fatal("Expected non-zero exit")
	}
	if !strings.Contains(s.Logs(), "boom") {
		t.Errorf("Expected stderr to be captured, got %q", s.Logs())
	}
}

func TestLogsOnNilCommand(t *testing.T) {
	var s *SafeCommand
	if s.Logs() != "" {
		t.Error("Expected empty logs for nil command")
	}
}

func TestEnsureWritable(t *testing.T) {
	dir := t.TempDir()

	if err := EnsureWritable(filepath.Join(dir, "out.xlsx")); err != nil {
		t.Fatalf("Expected writable path, got %v", err)
	}
	// The probe must not be left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected empty dir, found %d entries", len(entries))
	}

	if err := EnsureWritable(dir); err == nil {
		t.Error("Expected an error for a directory")
	}
	if err := EnsureWritable(filepath.Join(dir, "missing", "out.xlsx")); err == nil {
		t.Error("Expected an error for a missing parent directory")
	}
}

func TestEnsureWritable_StaleProbe(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.xlsx")

	// A crashed run left its probe behind
	if err := os.WriteFile(out+".probe", []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := EnsureWritable(out); err != nil {
		t.Fatalf("Expected stale probe to be ignored, got %v", err)
	}
	if _, err := os.Stat(out + ".probe"); !os.IsNotExist(err) {
		t.Errorf("Expected probe to be removed, stat returned %v", err)
	}
}
