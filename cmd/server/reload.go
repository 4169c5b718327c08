package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"voxelnav.ai/internal/sim/tuning"
	"voxelnav.ai/internal/sim/world"
)

const reloadDebounce = 100 * time.Millisecond

// watchTuning re-reads the tuning file whenever it changes and hands the
// result to the world loop. Editors often replace the file, so the parent
// directory is watched instead of the file itself.
func watchTuning(ctx context.Context, path string, w *world.World, logger *log.Logger) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return err
	}
	target := filepath.Clean(path)

	go func() {
		defer fw.Close()
		var last time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				now := time.Now()
				if now.Sub(last) < reloadDebounce {
					continue
				}
				last = now

				t, err := tuning.Load(path)
				if err != nil {
					logger.Printf("tuning reload: %v", err)
					continue
				}
				select {
				case w.ReloadTuning() <- t:
				default:
					logger.Printf("tuning reload: world busy, skipped")
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Printf("tuning watch: %v", err)
			}
		}
	}()
	return nil
}
