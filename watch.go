package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dgnsrekt/narrator/tts/segment"
)

// reloadDelay collapses the burst of events editors produce on save.
const reloadDelay = 200 * time.Millisecond

// watchScript sends the re-read script each time the file at path changes.
// The channel is closed when ctx is done.
func watchScript(ctx context.Context, path, title string, target time.Duration) (<-chan segment.Script, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create watcher: %w", err)
	}
	// Watch the directory: editors that replace the file drop watches
	// on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	log.Info("fsnotify watching dir", "dir", dir)

	out := make(chan segment.Script)
	go func() {
		defer close(out)
		defer func() {
			_ = watcher.Close()
			log.Debug("fsnotify dir unwatched", "dir", dir)
		}()

		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path || (!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create)) {
					continue
				}
				log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
				fire = time.After(reloadDelay)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debug("fsnotify error", "dir", dir, "error", err)
			case <-fire:
				fire = nil
				b, err := os.ReadFile(path)
				if err != nil {
					log.Warn("Could not reload script", "path", path, "error", err)
					continue
				}
				select {
				case out <- parseScript(string(b), title, path, target):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
