// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/errors"
	"gopkg.in/tomb.v2"
)

// Logger represents the logging methods called.
type Logger interface {
	Errorf(message string, args ...any)
	Infof(message string, args ...any)
	Debugf(message string, args ...any)
}

// WatcherConfig holds the dependencies of a Watcher.
type WatcherConfig struct {
	// Path is the configuration file to watch.
	Path string

	// Apply is called with every valid configuration read after a change.
	Apply func(Config)

	Logger Logger
}

// Validate returns an error if the config cannot be used.
func (c WatcherConfig) Validate() error {
	if c.Path == "" {
		return errors.NotValidf("empty Path")
	}
	if c.Apply == nil {
		return errors.NotValidf("nil Apply")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Watcher re-reads the configuration file when it changes. Invalid
// documents are logged and ignored, leaving the last good configuration
// in force.
type Watcher struct {
	tomb tomb.Tomb

	config  WatcherConfig
	path    string
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching the configuration file.
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	path, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Annotate(err, "creating config watcher")
	}
	// Editors replace files, so watch the directory rather than the file.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, errors.Annotatef(err, "watching %q", filepath.Dir(path))
	}
	w := &Watcher{
		config:  config,
		path:    path,
		watcher: fw,
	}
	w.tomb.Go(w.loop)
	return w, nil
}

// Kill implements the worker.Worker interface.
func (w *Watcher) Kill() {
	w.tomb.Kill(nil)
}

// Wait implements the worker.Worker interface.
func (w *Watcher) Wait() error {
	return w.tomb.Wait()
}

func (w *Watcher) loop() error {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case event, ok := <-w.watcher.Events:
			if !ok {
				return errors.New("config watcher events closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return errors.New("config watcher errors closed")
			}
			w.config.Logger.Errorf("watching %q: %v", w.path, err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Read(w.path)
	if err != nil {
		w.config.Logger.Errorf("ignoring config change: %v", err)
		return
	}
	w.config.Logger.Infof("reloaded agent config %q", w.path)
	w.config.Apply(cfg)
}
