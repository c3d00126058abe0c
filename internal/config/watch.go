package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/portalcast/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watch reloads the config file whenever it changes and passes the new
// configuration to onChange. The watch is armed when Watch returns and runs
// until ctx is done. Files that fail to parse are logged and skipped.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors replace files by rename, so watch the directory.
	dir := filepath.Dir(m.configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go m.watchLoop(ctx, watcher, onChange)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func(*Config)) {
	log := logger.WithComponent("config")
	defer watcher.Close()

	target := filepath.Clean(m.configPath)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("file", event.Name).Stringer("op", event.Op).Msg("Config file event")
			pending = time.After(watchDebounce)

		case <-pending:
			pending = nil
			cfg, err := m.Reload()
			if err != nil {
				log.Warn().Err(err).Msg("Ignoring unreadable config change")
				continue
			}
			log.Info().Str("path", m.configPath).Msg("Config reloaded")
			if onChange != nil {
				onChange(cfg)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
