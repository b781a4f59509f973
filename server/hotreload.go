package server

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// EnableHotReload watches cfgPath and, whenever it is written or recreated,
// calls load and applies the result with Reconfigure. The parent directory
// is watched so editors that save by rename are picked up too.
func (s *Server) EnableHotReload(cfgPath string, load func() (Options, error)) error {
	target, err := filepath.Abs(cfgPath)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return err
	}

	s.mu.Lock()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.watcher = watcher
	s.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}

				log.Printf("[hotreload] change detected in %s (%s)", ev.Name, ev.Op)
				opts, err := load()
				if err != nil {
					log.Printf("[hotreload] reload failed, keeping current options: %v", err)
					continue
				}
				s.Reconfigure(opts)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[hotreload] watcher error: %v", err)
			}
		}
	}()

	return nil
}
