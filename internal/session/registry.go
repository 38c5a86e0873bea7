package session

import (
	"sync"
	"time"
)

// Factory builds the configuration for a user's session
type Factory func(userID string) (Config, error)

type registryEntry struct {
	session  *Session
	lastUsed time.Time
}

// Registry lazily creates one session per user id. Sessions not requested
// for a while can be closed with EvictIdle or a janitor.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*registryEntry
	factory  Factory
	closed   bool

	stopJanitor chan struct{}
	janitorDone chan struct{}
}

// NewRegistry creates a registry using factory for new sessions
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*registryEntry),
		factory:  factory,
	}
}

// Get returns the user's session, creating it on first use
func (r *Registry) Get(userID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrSessionClosed
	}
	if e, ok := r.sessions[userID]; ok {
		e.lastUsed = time.Now()
		return e.session, nil
	}

	cfg, err := r.factory(userID)
	if err != nil {
		return nil, err
	}
	cfg.UserID = userID
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.sessions[userID] = &registryEntry{session: s, lastUsed: time.Now()}
	return s, nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle closes the sessions not requested within idle and returns how
// many were closed. Pending remote writes are flushed first.
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	var idleSessions []*Session
	for userID, e := range r.sessions {
		if e.lastUsed.Before(cutoff) {
			idleSessions = append(idleSessions, e.session)
			delete(r.sessions, userID)
		}
	}
	r.mu.Unlock()

	closeAll(idleSessions, true)
	return len(idleSessions)
}

// StartJanitor evicts sessions idle for longer than idle until Close. It
// checks every idle/4, at most once a minute.
func (r *Registry) StartJanitor(idle time.Duration) {
	if idle <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.stopJanitor != nil {
		return
	}
	r.stopJanitor = make(chan struct{})
	r.janitorDone = make(chan struct{})

	every := min(idle/4, time.Minute)
	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.EvictIdle(idle)
			}
		}
	}(r.stopJanitor, r.janitorDone)
}

// Close stops the janitor and closes every session; later Gets fail
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	stop, done := r.stopJanitor, r.janitorDone
	r.stopJanitor = nil
	sessions := make([]*Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.session)
	}
	r.sessions = make(map[string]*registryEntry)
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	closeAll(sessions, false)
}

func closeAll(sessions []*Session, flush bool) {
	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if flush {
				s.FlushSync()
			}
			s.Close()
		}(s)
	}
	wg.Wait()
}
