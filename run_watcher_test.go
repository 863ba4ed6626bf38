package sequencing_run_gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunWatcher(t *testing.T) {
	root := t.TempDir()
	// one run already done before the watcher starts
	doneRun := filepath.Join(root, "250619_A00516_0687_AHGYCYDSXE")
	if err := os.MkdirAll(doneRun, 0755); err != nil {
		t.Fatalf("cannot create run folder: %q", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := NewRunWatcher(root, "CopyComplete.txt", 50*time.Millisecond)
	runs, err := watcher.Watch(ctx)
	if err != nil {
		t.Fatalf("cannot start watcher: %q", err)
	}

	if err := os.WriteFile(filepath.Join(doneRun, "CopyComplete.txt"), nil, 0644); err != nil {
		t.Fatalf("cannot write sentinel: %q", err)
	}

	newRun := filepath.Join(root, "250620_A00516_0688_AHGYCYDSXF")
	if err := os.MkdirAll(newRun, 0755); err != nil {
		t.Fatalf("cannot create run folder: %q", err)
	}
	// the instrument writes data before the sentinel
	if err := os.WriteFile(filepath.Join(newRun, "RunInfo.xml"), []byte("<RunInfo/>"), 0644); err != nil {
		t.Fatalf("cannot write run file: %q", err)
	}
	if err := os.WriteFile(filepath.Join(newRun, "CopyComplete.txt"), nil, 0644); err != nil {
		t.Fatalf("cannot write sentinel: %q", err)
	}

	got := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case run := <-runs:
			if got[run] {
				t.Fatalf("run %s emitted twice", run)
			}
			got[run] = true
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	if !got["250619_A00516_0687_AHGYCYDSXE"] || !got["250620_A00516_0688_AHGYCYDSXF"] {
		t.Errorf("got %v", got)
	}

	t.Run("channel closes on cancel", func(t *testing.T) {
		cancel()
		select {
		case _, ok := <-runs:
			if ok {
				t.Error("expected a closed channel")
			}
		case <-time.After(5 * time.Second):
			t.Error("timed out waiting for the channel to close")
		}
	})
}
