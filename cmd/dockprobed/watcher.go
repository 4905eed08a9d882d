package main

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchPolicy re-reads the config file when it changes and applies the
// auto_attach_dock policy flag to the running controller. Every other
// setting requires a restart.
func watchPolicy(ctx context.Context, path string, svc *probeService, logger zerolog.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error().Err(err).Msg("create watcher")
		return
	}
	defer watcher.Close()

	// Watch the directory; editors replace the file on save, which would
	// invalidate a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Error().Err(err).Str("path", path).Msg("watch config")
		return
	}

	var mu sync.Mutex
	var debounce *time.Timer
	apply := func() {
		fc, err := loadFileConfig(path)
		if err != nil {
			logger.Error().Err(err).Msg("reload config")
			return
		}
		if fc.AutoAttachDock == nil {
			return
		}
		svc.setAutoAttachDock(*fc.AutoAttachDock)
		logger.Info().Bool("auto_attach_dock", *fc.AutoAttachDock).Msg("policy applied")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, apply)
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watch")
		}
	}
}
