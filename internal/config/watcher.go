package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileCallback is called with the file path when the watched file changes.
type FileCallback func(path string)

// FileWatcher watches a single file (the proxy list) and triggers a reload
// callback on change. Writes are debounced because editors and atomic-save
// tools emit several events per save.
type FileWatcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      FileCallback
	logger        *zap.Logger
	debounceDelay time.Duration
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	mu            sync.Mutex
	running       bool
}

// FileWatcherOption is a functional option for configuring the watcher.
type FileWatcherOption func(*FileWatcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) FileWatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = delay
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger *zap.Logger) FileWatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// NewFileWatcher creates a watcher for the given file.
func NewFileWatcher(path string, callback FileCallback, opts ...FileWatcherOption) (*FileWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &FileWatcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		logger:        zap.NewNop(),
		debounceDelay: 100 * time.Millisecond,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching. Watching the parent directory instead of the file
// itself survives atomic replace (rename-over) saves.
func (w *FileWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	go w.loop()
	return nil
}

// loop processes fsnotify events until Stop is called.
func (w *FileWatcher) loop() {
	defer close(w.stoppedCh)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounceDelay, func() {
				w.logger.Info("proxy list file changed", zap.String("path", w.path))
				w.callback(w.path)
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

// Stop terminates the watcher.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false

	close(w.stopCh)
	err := w.watcher.Close()
	<-w.stoppedCh
	return err
}
