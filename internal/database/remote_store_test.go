package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/pubsub"
)

// memLists serves list reads from memory
type memLists struct {
	mu    sync.Mutex
	items []models.ListItem
	err   error
	reads int
}

func (m *memLists) ListItems(context.Context, string) ([]models.ListItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	return append([]models.ListItem(nil), m.items...), nil
}

func (m *memLists) set(items []models.ListItem, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items, m.err = items, err
}

func (m *memLists) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// localNotifier delivers events to in-process subscribers synchronously
type localNotifier struct {
	mu     sync.Mutex
	subs   map[int]localSub
	next   int
	subErr error
}

type localSub struct {
	userID string
	fn     func(pubsub.Event)
}

func newLocalNotifier() *localNotifier {
	return &localNotifier{subs: make(map[int]localSub)}
}

func (n *localNotifier) Publish(_ context.Context, ev pubsub.Event) error {
	n.mu.Lock()
	var fns []func(pubsub.Event)
	for _, s := range n.subs {
		if s.userID == ev.UserID {
			fns = append(fns, s.fn)
		}
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

func (n *localNotifier) Subscribe(_ context.Context, userID string, fn func(pubsub.Event)) (func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subErr != nil {
		return nil, n.subErr
	}
	id := n.next
	n.next++
	n.subs[id] = localSub{userID: userID, fn: fn}
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}, nil
}

func (n *localNotifier) subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// batches records what a subscription delivers
type batches struct {
	mu    sync.Mutex
	items [][]models.ListItem
	errs  []error
}

func (b *batches) onItems(items []models.ListItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items)
}

func (b *batches) onError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
}

func (b *batches) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

func (b *batches) last() []models.ListItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return nil
	}
	return b.items[len(b.items)-1]
}

func (b *batches) errCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.errs)
}

func TestRemoteStore_ReloadsOnOtherWriters(t *testing.T) {
	ctx := context.Background()
	lists := &memLists{items: []models.ListItem{{ID: "a", Name: "Milk", Quantity: 1}}}
	notifier := newLocalNotifier()
	mine := newRemoteStore(nil, lists, notifier, time.Hour, nil)
	other := newRemoteStore(nil, lists, notifier, time.Hour, nil)

	got := &batches{}
	unsubscribe, err := mine.Subscribe(ctx, "u1", got.onItems, got.onError)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if got.count() != 1 || len(got.last()) != 1 {
		t.Fatalf("initial batches = %d, last = %v, want one batch with milk", got.count(), got.last())
	}

	// Our own writes are already in the store
	mine.publish(ctx, "u1", "current")
	if got.count() != 1 || lists.readCount() != 1 {
		t.Errorf("batches = %d, reads = %d after own event, want 1 and 1", got.count(), lists.readCount())
	}

	// Events for other users are not ours to reload
	other.publish(ctx, "u2", "current")
	if got.count() != 1 {
		t.Errorf("batches = %d after another user's event, want 1", got.count())
	}

	lists.set([]models.ListItem{
		{ID: "a", Name: "Milk", Quantity: 1},
		{ID: "b", Name: "Bread", Quantity: 2},
	}, nil)
	other.publish(ctx, "u1", "current")
	if got.count() != 2 || len(got.last()) != 2 {
		t.Errorf("batches = %d, last = %v, want a reload with two items", got.count(), got.last())
	}

	unsubscribe()
	if n := notifier.subscribers(); n != 0 {
		t.Errorf("subscribers after unsubscribe = %d, want 0", n)
	}
	other.publish(ctx, "u1", "current")
	if got.count() != 2 {
		t.Errorf("batches after unsubscribe = %d, want 2", got.count())
	}
}

func TestRemoteStore_PollsWithoutNotifier(t *testing.T) {
	lists := &memLists{}
	s := newRemoteStore(nil, lists, nil, 10*time.Millisecond, nil)

	got := &batches{}
	unsubscribe, err := s.Subscribe(context.Background(), "u1", got.onItems, got.onError)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	lists.set([]models.ListItem{{ID: "x", Name: "Tea", Quantity: 1}}, nil)
	deadline := time.Now().Add(2 * time.Second)
	for len(got.last()) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("poll never delivered the new item")
		}
		time.Sleep(5 * time.Millisecond)
	}

	unsubscribe()
	// A tick already in flight may still land
	time.Sleep(20 * time.Millisecond)
	settled := got.count()
	time.Sleep(50 * time.Millisecond)
	if n := got.count(); n != settled {
		t.Errorf("batches grew from %d to %d after unsubscribe", settled, n)
	}
}

func TestRemoteStore_SubscribeErrors(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	lists := &memLists{err: down}
	notifier := newLocalNotifier()
	s := newRemoteStore(nil, lists, notifier, time.Hour, nil)
	got := &batches{}
	if _, err := s.Subscribe(ctx, "u1", got.onItems, got.onError); !errors.Is(err, down) {
		t.Errorf("err = %v, want %v", err, down)
	}
	if got.count() != 0 || notifier.subscribers() != 0 {
		t.Errorf("batches = %d, subscribers = %d after a failed load", got.count(), notifier.subscribers())
	}

	// A failed reload is reported, not delivered
	lists.set(nil, nil)
	unsubscribe, err := s.Subscribe(ctx, "u1", got.onItems, got.onError)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer unsubscribe()
	lists.set(nil, down)
	newRemoteStore(nil, lists, notifier, time.Hour, nil).publish(ctx, "u1", "current")
	if got.count() != 1 || got.errCount() != 1 {
		t.Errorf("batches = %d, errors = %d, want 1 and 1", got.count(), got.errCount())
	}

	notifier.subErr = errors.New("redis gone")
	if _, err := s.Subscribe(ctx, "u2", got.onItems, got.onError); err == nil {
		t.Error("expected notifier subscribe error")
	}
}
