package sequencing_run_gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// RunWatcher watches a sequencer output directory for finished runs. A run
// folder is considered done when the instrument drops its sentinel file
// (CopyComplete.txt on NovaSeq). Filesystem events can be lost over NFS, so
// a periodic rescan backs them up.
type RunWatcher struct {
	root     string
	sentinel string
	rescan   time.Duration
	seen     map[string]bool
}

func NewRunWatcher(root, sentinel string, rescan time.Duration) *RunWatcher {
	return &RunWatcher{root: root, sentinel: sentinel, rescan: rescan, seen: map[string]bool{}}
}

// Watch emits the id (folder name) of every run that completes under the
// root, each at most once. The channel closes when ctx is canceled.
func (w *RunWatcher) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("Failed to create a filesystem watcher: %q", err)
	}
	if err := watcher.Add(w.root); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("Failed to watch '%s': %q", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("Failed to read '%s': %q", w.root, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := watcher.Add(filepath.Join(w.root, entry.Name())); err != nil {
				log.Printf("Cannot watch run folder %s: %v", entry.Name(), err)
			}
		}
	}

	runs := make(chan string)
	go func() {
		defer close(runs)
		defer watcher.Close()
		ticker := time.NewTicker(w.rescan)
		defer ticker.Stop()
		for {
			select {
			case event := <-watcher.Events:
				if !event.Has(fsnotify.Create) {
					continue
				}
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if filepath.Dir(event.Name) == w.root {
						if err := watcher.Add(event.Name); err != nil {
							log.Printf("Cannot watch run folder %s: %v", event.Name, err)
						}
					}
					continue
				}
				if filepath.Base(event.Name) == w.sentinel {
					w.emit(ctx, runs, filepath.Base(filepath.Dir(event.Name)))
				}
			case err := <-watcher.Errors:
				log.Printf("Watcher error on %s: %v", w.root, err)
			case <-ticker.C:
				for _, run := range w.scan() {
					w.emit(ctx, runs, run)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return runs, nil
}

// scan lists the run folders whose sentinel file already exists, the
// fallback for events missed while the watcher was down.
func (w *RunWatcher) scan() []string {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		log.Printf("Cannot rescan %s: %v", w.root, err)
		return nil
	}
	runs := []string{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(w.root, entry.Name(), w.sentinel)); err == nil {
			runs = append(runs, entry.Name())
		}
	}
	return runs
}

func (w *RunWatcher) emit(ctx context.Context, runs chan<- string, run string) {
	if w.seen[run] {
		return
	}
	w.seen[run] = true
	select {
	case runs <- run:
	case <-ctx.Done():
	}
}
