// Package history keeps per-item usage counters that drive suggestions.
//
// The ledger is append-only: aggregates are created on the first event for a
// name and only ever updated afterwards. Counters never decrease except on
// Reset, and timestamps only move forward. Persistence is best-effort and
// asynchronous so a slow or failing store never blocks a list mutation.
package history

import (
	"sync"
	"time"

	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
)

const persistQueueSize = 256

// Persister stores aggregates durably, keyed by canonical name
type Persister interface {
	LoadAggregates() (map[string]models.HistoryAggregate, error)
	SaveAggregate(key string, agg models.HistoryAggregate) error
	ResetAggregates() error
}

// ResetRecorder is implemented by persisters that remember when the ledger
// was last reset
type ResetRecorder interface {
	LoadResetAt() (time.Time, error)
	SaveResetAt(at time.Time) error
}

// Listener is notified after every recorded event with the updated aggregate
type Listener func(key string, agg models.HistoryAggregate)

// ResetListener is notified after Reset with the reset time
type ResetListener func(at time.Time)

// Ledger is the in-memory history ledger with write-behind persistence
type Ledger struct {
	mu        sync.RWMutex
	aggs      map[string]models.HistoryAggregate
	now       func() time.Time
	persister Persister
	listeners []Listener
	onReset   []ResetListener
	resetAt   time.Time
	log       *logger.Logger

	qmu    sync.Mutex
	queue  chan persistJob
	closed bool
	done   chan struct{}
}

type persistJob struct {
	key     string
	agg     models.HistoryAggregate
	reset   bool
	resetAt time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithPersister enables durable storage
func WithPersister(p Persister) Option {
	return func(l *Ledger) { l.persister = p }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates a ledger and loads any persisted aggregates.
// A failed load is logged and the ledger starts empty.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		aggs: make(map[string]models.HistoryAggregate),
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logger.OrNop(l.log).With("component", "history")

	if l.persister == nil {
		close(l.done)
		return l
	}

	loaded, err := l.persister.LoadAggregates()
	if err != nil {
		l.log.Warn("failed to load history, starting empty", "error", err)
	}
	for key, agg := range loaded {
		l.aggs[key] = agg
	}
	if rr, ok := l.persister.(ResetRecorder); ok {
		at, err := rr.LoadResetAt()
		if err != nil {
			l.log.Warn("failed to load history reset time", "error", err)
		}
		l.resetAt = at
	}

	l.queue = make(chan persistJob, persistQueueSize)
	go l.persistLoop()
	return l
}

// Record applies one event to the aggregate for name. Each call is one
// event and moves its counter by one; quantity is only logged.
func (l *Ledger) Record(kind models.HistoryKind, name string, quantity int) {
	norm := services.NormalizeItem(name)
	if norm.Canonical == "" {
		return
	}
	now := l.now()

	l.mu.Lock()
	agg, ok := l.aggs[norm.Canonical]
	if !ok {
		agg = models.HistoryAggregate{Name: norm.Display}
	}

	switch kind {
	case models.HistoryAdd:
		agg.CountAdds++
		agg.LastAddedAt = later(agg.LastAddedAt, now)
	case models.HistoryBought:
		agg.CountBought++
		agg.LastBoughtAt = later(agg.LastBoughtAt, now)
	case models.HistoryAccept:
		agg.Accepts++
	case models.HistoryReject:
		agg.Rejects++
	case models.HistoryRemove:
		// Removal only registers the name
	default:
		l.mu.Unlock()
		l.log.Warn("unknown history event", "kind", kind, "name", norm.Canonical)
		return
	}

	l.aggs[norm.Canonical] = agg
	// Enqueue under the lock so persisted writes keep event order
	l.enqueue(persistJob{key: norm.Canonical, agg: agg})
	listeners := l.listeners
	l.mu.Unlock()

	l.log.Debug("history event", "kind", kind, "name", norm.Canonical, "quantity", quantity)
	for _, fn := range listeners {
		fn(norm.Canonical, agg)
	}
}

// Get returns the aggregate for name, if any
func (l *Ledger) Get(name string) (models.HistoryAggregate, bool) {
	key := services.CanonicalName(name)
	l.mu.RLock()
	defer l.mu.RUnlock()
	agg, ok := l.aggs[key]
	return agg, ok
}

// All returns a copy of every aggregate keyed by canonical name
func (l *Ledger) All() map[string]models.HistoryAggregate {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]models.HistoryAggregate, len(l.aggs))
	for k, v := range l.aggs {
		out[k] = v
	}
	return out
}

// MergeMissing adds aggregates for names the ledger does not know yet.
// Existing local entries win, and aggregates not used since the last Reset
// are ignored. It returns how many were added.
func (l *Ledger) MergeMissing(remote map[string]models.HistoryAggregate) int {
	added := 0

	l.mu.Lock()
	for key, agg := range remote {
		key = services.CanonicalName(key)
		if key == "" {
			continue
		}
		if _, ok := l.aggs[key]; ok {
			continue
		}
		if !l.resetAt.IsZero() && !later(agg.LastAddedAt, agg.LastBoughtAt).After(l.resetAt) {
			continue
		}
		if agg.Name == "" {
			agg.Name = services.DisplayName(key)
		}
		l.aggs[key] = agg
		l.enqueue(persistJob{key: key, agg: agg})
		added++
	}
	l.mu.Unlock()

	return added
}

// Reset clears every aggregate and remembers when it happened
func (l *Ledger) Reset() {
	now := l.now()

	l.mu.Lock()
	l.aggs = make(map[string]models.HistoryAggregate)
	l.resetAt = later(l.resetAt, now)
	at := l.resetAt
	l.enqueue(persistJob{reset: true, resetAt: at})
	listeners := l.onReset
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(at)
	}
}

// ResetAt returns the time of the last Reset, zero if there was none
func (l *Ledger) ResetAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.resetAt
}

// Subscribe registers a listener for recorded events
func (l *Ledger) Subscribe(fn Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// SubscribeReset registers a listener for Reset
func (l *Ledger) SubscribeReset(fn ResetListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReset = append(l.onReset, fn)
}

// Close flushes queued writes and stops the persistence worker
func (l *Ledger) Close() {
	l.qmu.Lock()
	if l.queue != nil && !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.qmu.Unlock()
	<-l.done
}

func (l *Ledger) enqueue(job persistJob) {
	l.qmu.Lock()
	defer l.qmu.Unlock()
	if l.queue == nil || l.closed {
		return
	}
	select {
	case l.queue <- job:
	default:
		l.log.Warn("history persistence queue full, dropping write", "name", job.key)
	}
}

func (l *Ledger) persistLoop() {
	defer close(l.done)
	for job := range l.queue {
		var err error
		if job.reset {
			err = l.persister.ResetAggregates()
			if rr, ok := l.persister.(ResetRecorder); ok && err == nil {
				err = rr.SaveResetAt(job.resetAt)
			}
		} else {
			err = l.persister.SaveAggregate(job.key, job.agg)
		}
		if err != nil {
			l.log.Warn("history persistence failed", "name", job.key, "error", err)
		}
	}
}

func later(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev
}
