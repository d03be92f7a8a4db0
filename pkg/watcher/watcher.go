// Package watcher converts video files as they appear in a directory.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/logger"
)

// Handler converts the file at path and returns the resulting playlist URL.
type Handler func(ctx context.Context, path string) (string, error)

// Options configures a Watcher.
type Options struct {
	Dir string
	// Extension selects files to convert, compared case-insensitively. Defaults to ".mp4".
	Extension string
	// Debounce is how long a file must stay untouched before it is converted.
	Debounce time.Duration
}

// Watcher hands every new matching file in Options.Dir to its Handler once,
// one file at a time.
type Watcher struct {
	options Options
	handle  Handler
	logger  logger.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	seen    map[string]bool
	queue   chan string
}

// New validates options and creates a Watcher.
func New(options Options, handle Handler, log logger.Logger) (*Watcher, error) {
	if options.Dir == "" {
		return nil, errors.New(errors.ValidationError, "Watch directory is required", "", errors.ErrInvalidOption)
	}
	info, err := os.Stat(options.Dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, "Watch directory is not accessible", errors.ErrInvalidOption)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ValidationError, "Watch path is not a directory", options.Dir, errors.ErrInvalidOption)
	}
	if options.Extension == "" {
		options.Extension = ".mp4"
	}
	if !strings.HasPrefix(options.Extension, ".") {
		options.Extension = "." + options.Extension
	}
	if options.Debounce <= 0 {
		options.Debounce = 2 * time.Second
	}
	if log == nil {
		log = logger.NewLogger()
	}

	return &Watcher{
		options: options,
		handle:  handle,
		logger:  log,
		pending: make(map[string]*time.Timer),
		seen:    make(map[string]bool),
		queue:   make(chan string, 64),
	}, nil
}

// Run watches until ctx is canceled. A conversion in progress is canceled with ctx.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to create file watcher", errors.ErrFileSystem)
	}
	defer fsw.Close()

	if err := fsw.Add(w.options.Dir); err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to watch directory", errors.ErrFileSystem)
	}

	w.logger.Info("Watching for new videos", "watcher", map[string]interface{}{
		"dir":       w.options.Dir,
		"extension": w.options.Extension,
		"debounce":  w.options.Debounce.String(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx)
	}()

	defer func() {
		w.stopTimers()
		wg.Wait()
	}()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", "watcher", map[string]interface{}{
				"error": err.Error(),
			})
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !w.matches(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seen[event.Name] {
		return
	}
	if timer, ok := w.pending[event.Name]; ok {
		timer.Reset(w.options.Debounce)
		return
	}

	path := event.Name
	w.pending[path] = time.AfterFunc(w.options.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		if w.seen[path] {
			w.mu.Unlock()
			return
		}
		w.seen[path] = true
		w.mu.Unlock()

		select {
		case w.queue <- path:
		case <-ctx.Done():
		}
	})
	w.logger.Debug("New file detected", "watcher", map[string]interface{}{
		"path": path,
	})
}

// matches reports whether name has the configured extension and is not hidden.
func (w *Watcher) matches(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), w.options.Extension)
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case path := <-w.queue:
			w.convert(ctx, path)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) convert(ctx context.Context, path string) {
	fields := map[string]interface{}{"path": path}
	w.logger.Info("Converting new video", "watcher", fields)

	url, err := w.handle(ctx, path)
	if err != nil {
		fields["error"] = err.Error()
		w.logger.Error("Conversion of watched file failed", "watcher", fields)
		return
	}
	fields["url"] = url
	w.logger.Info("Watched file converted", "watcher", fields)
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
