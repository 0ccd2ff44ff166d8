package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRequestWatcherReportsWrites(t *testing.T) {
	watched := writeFile(t, "points.yaml", "source: points\n")
	other := filepath.Join(filepath.Dir(watched), "other.yaml")

	rw, err := NewRequestWatcher([]string{watched})
	if err != nil {
		t.Fatalf("NewRequestWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- rw.Run(ctx, func(path string) { changes <- path })
	}()

	if err := os.WriteFile(other, []byte("source: other\n"), 0644); err != nil {
		t.Fatalf("write other: %v", err)
	}
	if err := os.WriteFile(watched, []byte("source: points\ncluster: true\n"), 0644); err != nil {
		t.Fatalf("write watched: %v", err)
	}

	want, _ := filepath.Abs(watched)
	select {
	case got := <-changes:
		if got != want {
			t.Errorf("changed path = %s, want %s", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRequestWatcherMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope", "points.yaml")
	if _, err := NewRequestWatcher([]string{missing}); err == nil {
		t.Error("expected error for missing directory")
	}
}
