// Package fswatch implements hookctx.Watcher over fsnotify, giving
// addWatchFile/getWatchFiles a genuine filesystem-backed watcher to drive in
// integration tests (the protocol treats the watcher as an external
// collaborator referenced only by interface).
package fswatch

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"loomdev/hookctx"
	"loomdev/logx"
)

// FSWatcher adapts *fsnotify.Watcher to hookctx.Watcher, additionally
// translating raw fsnotify events into hookctx.ChangeEvent kinds for a
// caller-supplied callback (typically PluginContainer.WatchChange).
type FSWatcher struct {
	w   *fsnotify.Watcher
	log logx.Logger

	mu      sync.Mutex
	watched map[string]struct{}

	onChange func(id string, change hookctx.ChangeEvent)
}

// New wraps a freshly created fsnotify watcher. onChange is invoked from the
// watcher's event-loop goroutine for every create/write/remove/rename event.
func New(onChange func(id string, change hookctx.ChangeEvent), log logx.Logger) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &FSWatcher{w: w, log: logx.OrNop(log), watched: map[string]struct{}{}, onChange: onChange}
	go fw.loop()
	return fw, nil
}

func (fw *FSWatcher) loop() {
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			fw.dispatch(ev)
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.log.Warnf("fswatch: %v", err)
		}
	}
}

func (fw *FSWatcher) dispatch(ev fsnotify.Event) {
	var kind string
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = "create"
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		kind = "delete"
	case ev.Op&fsnotify.Write != 0:
		kind = "update"
	default:
		return
	}
	if fw.onChange != nil {
		fw.onChange(ev.Name, hookctx.ChangeEvent{Kind: kind})
	}
}

// Add implements hookctx.Watcher.
func (fw *FSWatcher) Add(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, ok := fw.watched[path]; ok {
		return nil
	}
	if err := fw.w.Add(path); err != nil {
		return err
	}
	fw.watched[path] = struct{}{}
	return nil
}

// Close stops the watcher and its event loop.
func (fw *FSWatcher) Close() error {
	return fw.w.Close()
}
