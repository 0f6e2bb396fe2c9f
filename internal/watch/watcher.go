package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"aadhaar_pulse/internal/config"
)

// TriggerFunc is called once per burst of relevant file events.
type TriggerFunc func(ctx context.Context, reason string)

// Watcher monitors the data directory for CSV drops and triggers a recompute
// once the events settle.
type Watcher struct {
	cfg     config.Config
	dirs    []string
	trigger TriggerFunc

	mu    sync.Mutex
	timer *time.Timer
}

// New watches the data directory and the given input subfolders.
func New(cfg config.Config, subdirs []string, trigger TriggerFunc) *Watcher {
	dirs := make([]string, 0, len(subdirs))
	for _, d := range subdirs {
		dirs = append(dirs, filepath.Join(cfg.DataDir, d))
	}
	return &Watcher{cfg: cfg, dirs: dirs, trigger: trigger}
}

// Start registers the watches and processes events until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.cfg.EnableWatcher {
		log.Println("watch: disabled")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.cfg.DataDir); err != nil {
		watcher.Close()
		return err
	}
	for _, d := range w.dirs {
		w.add(watcher, d)
	}
	go w.loop(ctx, watcher)
	log.Printf("watch: dir=%s debounce=%s", w.cfg.DataDir, w.cfg.WatchDebounce())
	return nil
}

func (w *Watcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if w.isInputDir(evt.Name) && evt.Op&fsnotify.Create != 0 {
				w.add(watcher, evt.Name)
				w.schedule(ctx, "dir "+filepath.Base(evt.Name))
				continue
			}
			if w.relevant(evt) {
				w.schedule(ctx, evt.Op.String()+" "+filepath.Base(evt.Name))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: error: %v", err)
		}
	}
}

func (w *Watcher) add(watcher *fsnotify.Watcher, dir string) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}
	if err := watcher.Add(dir); err != nil {
		log.Printf("watch: add %s: %v", dir, err)
	}
}

// schedule restarts the debounce timer; the trigger fires once it expires.
func (w *Watcher) schedule(ctx context.Context, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.WatchDebounce(), func() {
		if ctx.Err() != nil {
			return
		}
		log.Printf("watch: trigger reason=%q", reason)
		w.trigger(ctx, "watch: "+reason)
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) relevant(evt fsnotify.Event) bool {
	if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	if !strings.EqualFold(filepath.Ext(evt.Name), ".csv") {
		return false
	}
	return w.isInputDir(filepath.Dir(evt.Name))
}

func (w *Watcher) isInputDir(path string) bool {
	clean := filepath.Clean(path)
	for _, d := range w.dirs {
		if filepath.Clean(d) == clean {
			return true
		}
	}
	return false
}
