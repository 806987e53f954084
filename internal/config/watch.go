package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a RunConfig from disk whenever its file changes and
// publishes the result on Updates. Editors commonly replace a file by
// writing a temp file and renaming it over the original, so Watcher
// watches the containing directory rather than the file itself and
// filters events down to the one path it cares about.
type Watcher struct {
	path string

	fsw *fsnotify.Watcher
	upC chan *RunConfig
	erC chan error
}

// NewWatcher starts watching path's directory for changes and loads
// it once up front, delivering that first load (or its error) on the
// same channels as subsequent reloads.
func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()

		return nil, err
	}

	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()

		return nil, err
	}

	w := &Watcher{
		path: abs,
		fsw:  fsw,
		upC:  make(chan *RunConfig, 1),
		erC:  make(chan error, 1),
	}

	go w.loop()
	go w.reload()

	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != w.path {
				continue
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.erC <- err
		}
	}
}

func (w *Watcher) reload() {
	rc, err := Load(w.path)
	if err != nil {
		w.erC <- err

		return
	}

	select {
	case <-w.upC: // drop a stale pending update in favor of this one
	default:
	}

	w.upC <- rc
}

// Updates delivers the most recently reloaded RunConfig. The channel
// is drained and refilled on every reload, so a consumer that hasn't
// caught up never sees a stale update once a newer one is available.
func (w *Watcher) Updates() <-chan *RunConfig { return w.upC }

// Errors delivers load and filesystem errors encountered while watching.
func (w *Watcher) Errors() <-chan error { return w.erC }

// Close stops watching.
func (w *Watcher) Close() error { return w.fsw.Close() }
