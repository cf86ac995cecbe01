package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"gretchen/pkg/logx"
)

// Watch re-loads the config file whenever it changes on disk and hands each
// successfully validated result to apply. Invalid edits are logged and the
// previous config stays in effect.
//
// The parent directory is watched rather than the file itself so editors
// that replace the file (rename-over) keep triggering events.
func Watch(ctx context.Context, path string, log logx.Logger, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()

		// Debounce: editors fire bursts of writes for a single save.
		var pending *time.Timer
		reload := func() {
			cfg, err := Load(ctx, path)
			if err != nil {
				log.Warn("config reload rejected; keeping previous", logx.Err(err))
				return
			}
			log.Info("config reloaded", logx.String("path", path))
			apply(cfg)
		}

		base := filepath.Base(path)
		for {
			select {
			case <-ctx.Done():
				if pending != nil {
					pending.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if pending != nil {
					pending.Stop()
				}
				pending = time.AfterFunc(200*time.Millisecond, reload)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", logx.Err(err))
			}
		}
	}()
	return nil
}
