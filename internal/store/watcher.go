package store

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/lumarchive/chatscope/internal/logging"
)

// Watcher reports writes to the live encrypted primary store file so callers
// can surface "database changed since last analysis" without polling.
type Watcher struct {
	fw        *fsnotify.Watcher
	closeOnce sync.Once
}

// WatchFile starts watching path and invokes onChange for every write or
// create event on it. Events for sibling files in the same directory are
// ignored.
func WatchFile(path string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watching the directory survives the client replacing the file.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw}
	base := filepath.Base(path)
	go func() {
		for {
			select {
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					logging.Log.Debug("store file changed", "op", event.Op.String())
					onChange()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logging.Log.Warn("store watcher error", "err", err)
			}
		}
	}()
	return w, nil
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.fw.Close()
	})
	return err
}
