package tools

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultDebounce batches bursts of filesystem events (editors often fire
// several per save) into one refresh.
const DefaultDebounce = 200 * time.Millisecond

// ErrInvalidPattern indicates an exclude pattern could not be compiled.
var ErrInvalidPattern = errors.New("tools: invalid exclude pattern")

// WatchConfig configures hot-reload of the definition tree.
type WatchConfig struct {
	// ExcludePatterns are glob patterns for paths to ignore, matched
	// against the base name and the path relative to the registry root.
	ExcludePatterns []string

	// Debounce is how long to wait after the last event before
	// refreshing. Default is DefaultDebounce.
	Debounce time.Duration
}

// Watcher triggers Registry.Refresh when definition files change on disk.
type Watcher struct {
	registry *Registry
	config   WatchConfig
	fsw      *fsnotify.Watcher
	excludes []glob.Glob
	logger   *slog.Logger

	mu       sync.Mutex
	pending  *time.Timer
	stopped  bool
	stopOnce sync.Once
}

// NewWatcher creates a watcher over the registry's definition tree.
func NewWatcher(r *Registry, config WatchConfig, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}

	excludes := make([]glob.Glob, 0, len(config.ExcludePatterns))
	for _, pattern := range config.ExcludePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		excludes = append(excludes, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		registry: r,
		config:   config,
		fsw:      fsw,
		excludes: excludes,
		logger:   logger,
	}, nil
}

// Start begins watching. It returns after the watch paths are registered;
// refreshes run on a background goroutine until the context is cancelled
// or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.registry.dir); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.isExcluded(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("tool watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.isExcluded(event.Name) {
		return
	}

	// New subdirectories need their own watch.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".json") {
		return
	}
	w.scheduleRefresh()
}

// scheduleRefresh (re)arms the debounce timer.
func (w *Watcher) scheduleRefresh() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.config.Debounce, w.refresh)
}

func (w *Watcher) refresh() {
	res, err := w.registry.Refresh()
	if err != nil {
		w.logger.Error("tool refresh failed", "error", err)
		return
	}
	if len(res.Added)+len(res.Updated)+len(res.Removed)+len(res.Errors) > 0 {
		w.logger.Info("tool definitions reloaded",
			"added", len(res.Added),
			"updated", len(res.Updated),
			"removed", len(res.Removed),
			"errors", len(res.Errors))
	}
}

func (w *Watcher) isExcluded(path string) bool {
	rel, err := filepath.Rel(w.registry.dir, path)
	if err != nil {
		rel = path
	}
	for _, pattern := range w.excludes {
		if pattern.Match(rel) || pattern.Match(filepath.Base(path)) {
			return true
		}
	}
	return false
}

// Stop halts watching. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		if w.pending != nil {
			w.pending.Stop()
		}
		w.mu.Unlock()
		w.fsw.Close()
	})
}
