package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/pubsub"
)

const defaultPollInterval = 5 * time.Second

// listLoader reads a user's stored items
type listLoader interface {
	ListItems(ctx context.Context, userID string) ([]models.ListItem, error)
}

// RemoteStore is the remote persisted copy of user lists. Writes go to
// Postgres; readers learn about them through the notifier, or by polling
// when no notifier is configured.
type RemoteStore struct {
	db       *DB
	lists    listLoader
	notifier pubsub.Notifier
	source   string
	poll     time.Duration
	log      *logger.Logger
}

// NewRemoteStore creates a remote store. notifier may be nil.
func NewRemoteStore(db *DB, notifier pubsub.Notifier, log *logger.Logger) *RemoteStore {
	return newRemoteStore(db, db, notifier, defaultPollInterval, log)
}

func newRemoteStore(db *DB, lists listLoader, notifier pubsub.Notifier, poll time.Duration, log *logger.Logger) *RemoteStore {
	return &RemoteStore{
		db:       db,
		lists:    lists,
		notifier: notifier,
		source:   uuid.NewString(),
		poll:     poll,
		log:      logger.OrNop(log).With("component", "remote"),
	}
}

// Subscribe delivers the stored items now and again after every change
// published by another writer.
func (s *RemoteStore) Subscribe(ctx context.Context, userID string, onItems func([]models.ListItem), onError func(error)) (func(), error) {
	items, err := s.lists.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	onItems(items)

	ctx, cancel := context.WithCancel(ctx)

	// Serialize reloads so batches reach onItems in fetch order
	var mu sync.Mutex
	reload := func() {
		mu.Lock()
		defer mu.Unlock()
		items, err := s.lists.ListItems(ctx, userID)
		if err != nil {
			if ctx.Err() == nil {
				onError(err)
			}
			return
		}
		if ctx.Err() == nil {
			onItems(items)
		}
	}

	if s.notifier == nil {
		go func() {
			ticker := time.NewTicker(s.poll)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reload()
				}
			}
		}()
		return cancel, nil
	}

	unsubscribe, err := s.notifier.Subscribe(ctx, userID, func(ev pubsub.Event) {
		if ev.Source == s.source {
			return
		}
		reload()
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return func() {
		unsubscribe()
		cancel()
	}, nil
}

// Upsert implements the remote item write
func (s *RemoteStore) Upsert(ctx context.Context, userID string, item models.ListItem) error {
	return s.db.UpsertItem(ctx, userID, item)
}

// Delete implements the remote item delete
func (s *RemoteStore) Delete(ctx context.Context, userID, id string) error {
	return s.db.DeleteItem(ctx, userID, id)
}

// WriteSnapshot stores a point-in-time copy
func (s *RemoteStore) WriteSnapshot(ctx context.Context, userID string, items []models.ListItem, meta models.SnapshotMeta) error {
	meta.UserID = userID
	_, err := s.db.InsertSnapshot(ctx, items, meta)
	return err
}

// UpsertCurrent replaces the current document and notifies other readers
func (s *RemoteStore) UpsertCurrent(ctx context.Context, userID string, items []models.ListItem) error {
	if err := s.db.UpsertCurrentList(ctx, userID, items); err != nil {
		return err
	}
	s.publish(ctx, userID, "current")
	return nil
}

// LoadHistory returns the mirrored ledger
func (s *RemoteStore) LoadHistory(ctx context.Context, userID string) (map[string]models.HistoryAggregate, error) {
	return s.db.LoadHistory(ctx, userID)
}

// PushHistory mirrors one ledger aggregate
func (s *RemoteStore) PushHistory(ctx context.Context, userID, key string, agg models.HistoryAggregate) error {
	return s.db.PushHistory(ctx, userID, key, agg)
}

// ResetHistory drops the mirrored aggregates covered by a ledger reset
func (s *RemoteStore) ResetHistory(ctx context.Context, userID string, before time.Time) error {
	return s.db.ResetHistory(ctx, userID, before)
}

func (s *RemoteStore) publish(ctx context.Context, userID, kind string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Publish(ctx, pubsub.Event{UserID: userID, Source: s.source, Kind: kind})
	if err != nil {
		s.log.Warn("change notification failed", "user_id", userID, "error", err)
	}
}
