package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long to wait for more writes before reloading.
// Editors typically emit several events per save.
const reloadDebounce = 500 * time.Millisecond

// Watcher watches a config file and delivers validated quick-reply sets to a
// callback when the file changes. Only quick replies are hot-reloadable;
// everything else requires a restart.
type Watcher struct {
	path     string
	logger   *slog.Logger
	onReload func([]QuickReply)

	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher for the given config file. onReload is called
// with the new quick replies after every successful reload.
func NewWatcher(path string, logger *slog.Logger, onReload func([]QuickReply)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory rather than the file: editors that replace the
	// file on save (rename + create) would otherwise drop the watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     path,
		logger:   logger,
		onReload: onReload,
		watcher:  fsw,
	}, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", slog.String("error", err.Error()))

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

// reload re-reads the config file and hands the quick replies to the
// callback. A file that fails to parse or validate is logged and ignored,
// leaving the previous set in effect.
func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}

	replies := cfg.QuickReplies
	if len(replies) == 0 {
		replies = DefaultQuickReplies()
	}
	if err := ValidateQuickReplies(replies); err != nil {
		w.logger.Warn("Config reload rejected", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}

	w.logger.Info("Reloaded quick replies", slog.String("path", w.path), slog.Int("count", len(replies)))
	w.onReload(replies)
}
