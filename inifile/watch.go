// Package inifile provides an INI parser/writer that preserves the textual
// order of sections, keys, comments, and blank lines across a
// load-edit-save round trip
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package inifile

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/dac1976/corelib-go/cmn/nlog"
)

// Watcher reloads an INI file whenever it changes on disk and hands the
// fresh IniFile to the callback. Parse failures are logged and skipped - the
// previous state stays current.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewWatcher(path string, onReload func(*IniFile)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "ini watcher")
	}
	// watch the directory: editors replace files rather than write in place
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watch %q", path)
	}
	w := &Watcher{path: path, watcher: fsw, done: make(chan struct{})}
	go w.run(onReload)
	return w, nil
}

func (w *Watcher) run(onReload func(*IniFile)) {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			f, err := Load(w.path)
			if err != nil {
				nlog.Warningf("ini reload %q: %v", w.path, err)
				continue
			}
			onReload(f)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			nlog.Warningln("ini watcher:", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) Close() {
	close(w.done)
	w.watcher.Close()
}
