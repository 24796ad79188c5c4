package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads the configuration whenever the file at path changes and
// passes every configuration that loads and validates to onChange. Invalid
// files are logged and skipped. The directory is watched rather than the
// file so that editors which replace the file are handled. Watch blocks
// until ctx is done.
func Watch(ctx context.Context, path string, log logrus.FieldLogger, onChange func(*Config)) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "config_watch")

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	log.WithField("path", abs).Info("Watching configuration file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(abs)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				log.WithError(err).Warn("Ignoring invalid configuration change")
				continue
			}
			log.WithField("path", abs).Info("Configuration reloaded")
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Config watcher error")
		}
	}
}
