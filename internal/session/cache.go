package session

import (
	"sync"

	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
)

// cacheWriter saves the latest list snapshot in the background. Snapshots
// that arrive while a save is running collapse into the newest one.
type cacheWriter struct {
	userID string
	cache  ListCache
	log    *logger.Logger

	mu     sync.Mutex
	latest []models.ListItem
	dirty  bool
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newCacheWriter(userID string, cache ListCache, log *logger.Logger) *cacheWriter {
	w := &cacheWriter{
		userID: userID,
		cache:  cache,
		log:    log,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

// Save never blocks on the underlying store
func (w *cacheWriter) Save(items []models.ListItem) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.latest = items
	w.dirty = true
	select {
	case w.wake <- struct{}{}:
	default:
	}
	w.mu.Unlock()
}

// Close writes any pending snapshot and stops the writer
func (w *cacheWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.wake)
	w.mu.Unlock()
	<-w.done
}

func (w *cacheWriter) loop() {
	defer close(w.done)
	for range w.wake {
		w.flush()
	}
	w.flush()
}

func (w *cacheWriter) flush() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	items := w.latest
	w.dirty = false
	w.mu.Unlock()

	if err := w.cache.SaveList(w.userID, items); err != nil {
		w.log.Warn("failed to save list cache", "error", err)
	}
}
