package server

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/livetemplate/karigar/internal/assets"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Watcher watches the template directory and calls onReload when the page
// template changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onReload func(filePath string) error
	done     chan struct{}
	stopOnce sync.Once
	debug    bool
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, onReload func(string) error, debug bool) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors often replace the file on save.
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	if debug {
		log.Printf("[Watch] Added directory: %s", dir)
	}

	return &Watcher{
		watcher:  fsWatcher,
		dir:      dir,
		onReload: onReload,
		done:     make(chan struct{}),
		debug:    debug,
	}, nil
}

func isTemplateEvent(event fsnotify.Event) bool {
	switch filepath.Base(event.Name) {
	case assets.IndexTemplateName, assets.StatusTemplateName:
	default:
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// Start begins watching for changes.
func (w *Watcher) Start() {
	go func() {
		var (
			timer   *time.Timer
			pending <-chan time.Time
			changed string
		)
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !isTemplateEvent(event) {
					continue
				}
				if w.debug {
					log.Printf("[Watch] %s: %s", event.Op, event.Name)
				}
				changed = event.Name
				if timer == nil {
					timer = time.NewTimer(reloadDebounce)
				} else {
					timer.Reset(reloadDebounce)
				}
				pending = timer.C

			case <-pending:
				pending = nil
				rel, err := filepath.Rel(w.dir, changed)
				if err != nil {
					rel = changed
				}
				if err := w.onReload(rel); err != nil {
					log.Printf("[Watch] Reload failed for %s: %v", rel, err)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Watch] Error: %v", err)

			case <-w.done:
				if timer != nil {
					timer.Stop()
				}
				return
			}
		}
	}()
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}

// EnableWatch reloads the page template from the configured template
// directory whenever it changes and tells open pages to refresh.
func (s *Server) EnableWatch() error {
	dir := s.config.Server.TemplateDir
	if dir == "" {
		return fmt.Errorf("server.template_dir must be set to watch templates")
	}

	watcher, err := NewWatcher(dir, func(filePath string) error {
		log.Printf("[Watch] Template changed: %s", filePath)
		if filepath.Base(filePath) == assets.StatusTemplateName {
			// Sockets parse the fragment when they connect; check it before pages reconnect.
			if _, err := newStatusRenderer(s.statusPath); err != nil {
				return err
			}
		} else if err := s.page.Reload(); err != nil {
			return err
		}
		s.BroadcastReload(filePath)
		return nil
	}, s.config.Server.Debug)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	s.watcher = watcher
	s.watcher.Start()
	log.Printf("[Watch] Template watcher started for %s", dir)
	return nil
}

// StopWatch stops the template watcher if it is running.
func (s *Server) StopWatch() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}
