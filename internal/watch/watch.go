// Package watch reports changes to a fixed set of files, debounced so that
// an editor saving a file in several writes yields one change.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before its change is
// reported.
const DefaultDebounce = 200 * time.Millisecond

// Op is the kind of change.
type Op string

const (
	OpWrite  Op = "write"
	OpCreate Op = "create"
	OpRemove Op = "remove"
)

// Change is one settled file change.
type Change struct {
	Path string
	Op   Op
}

// Config configures a Watcher.
type Config struct {
	// Files are the files to watch. Their directories are watched so that
	// files replaced by rename, as many editors save, are still seen.
	Files []string

	// Debounce is the quiet period before a change is reported.
	Debounce time.Duration

	Logger *slog.Logger
}

type pending struct {
	at time.Time
	op Op
}

// Watcher watches files and calls OnChange for settled changes.
type Watcher struct {
	config   Config
	logger   *slog.Logger
	files    map[string]bool
	watcher  *fsnotify.Watcher
	onChange func(Change)

	mu      sync.Mutex
	pending map[string]pending
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher for config.Files.
func New(config Config) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:  config,
		logger:  logger.With("component", "watch"),
		files:   make(map[string]bool, len(config.Files)),
		watcher: fw,
		pending: make(map[string]pending),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	for _, f := range config.Files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files[filepath.Clean(abs)] = true
	}
	return w, nil
}

// OnChange sets the callback for file changes. It runs on the watcher
// goroutine.
func (w *Watcher) OnChange(fn func(Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start begins watching. It returns once the directories are registered;
// events are handled on a background goroutine until Stop or until ctx is
// done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.logger.Debug("watching directory", "dir", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.config.Debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch error", "error", err)
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	name := filepath.Clean(event.Name)
	if !w.files[name] {
		return
	}

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemove
	default:
		return // chmod
	}

	w.mu.Lock()
	// A create followed by writes is still reported as a create.
	if prev, ok := w.pending[name]; ok && prev.op == OpCreate && op == OpWrite {
		op = OpCreate
	}
	w.pending[name] = pending{at: time.Now(), op: op}
	w.mu.Unlock()
}

// flush reports the changes that have been quiet for the debounce period,
// in path order.
func (w *Watcher) flush() {
	now := time.Now()
	var settled []Change

	w.mu.Lock()
	for path, p := range w.pending {
		if now.Sub(p.at) >= w.config.Debounce {
			settled = append(settled, Change{Path: path, Op: p.op})
			delete(w.pending, path)
		}
	}
	callback := w.onChange
	w.mu.Unlock()

	if callback == nil {
		return
	}
	sort.Slice(settled, func(i, j int) bool { return settled[i].Path < settled[j].Path })
	for _, c := range settled {
		w.logger.Info("file changed", "path", c.Path, "op", c.Op)
		callback(c)
	}
}
