package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/foxxcyber/voicecart/internal/models"
)

// ListItems returns the live items for a user
func (db *DB) ListItems(ctx context.Context, userID string) ([]models.ListItem, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, quantity, category, bought, updated_at
		FROM list_items
		WHERE user_id = $1
		ORDER BY updated_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.ListItem{}
	for rows.Next() {
		var it models.ListItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Quantity, &it.Category, &it.Bought, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpsertItem writes one item, replacing all fields of an existing id
func (db *DB) UpsertItem(ctx context.Context, userID string, it models.ListItem) error {
	updatedAt := it.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO list_items (user_id, id, name, quantity, category, bought, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			quantity = EXCLUDED.quantity,
			category = EXCLUDED.category,
			bought = EXCLUDED.bought,
			updated_at = EXCLUDED.updated_at
	`, userID, it.ID, it.Name, max(1, it.Quantity), it.Category, it.Bought, updatedAt)
	return err
}

// DeleteItem removes one item; deleting an unknown id is not an error
func (db *DB) DeleteItem(ctx context.Context, userID, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM list_items WHERE user_id = $1 AND id = $2`, userID, id)
	return err
}

// InsertSnapshot stores a point-in-time copy of the list
func (db *DB) InsertSnapshot(ctx context.Context, items []models.ListItem, meta models.SnapshotMeta) (int64, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	takenAt := meta.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}

	var id int64
	err = db.Pool.QueryRow(ctx, `
		INSERT INTO list_snapshots (user_id, reason, item_count, items, taken_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, meta.UserID, meta.Reason, len(items), raw, takenAt).Scan(&id)
	return id, err
}

// UpsertCurrentList replaces the user's current document
func (db *DB) UpsertCurrentList(ctx context.Context, userID string, items []models.ListItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode current list: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		INSERT INTO current_lists (user_id, items, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = NOW()
	`, userID, raw)
	return err
}

// LoadHistory returns the mirrored ledger for a user
func (db *DB) LoadHistory(ctx context.Context, userID string) (map[string]models.HistoryAggregate, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT item_key, name, count_adds, count_bought, accepts, rejects, last_added_at, last_bought_at
		FROM remote_history
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.HistoryAggregate)
	for rows.Next() {
		var (
			key                   string
			agg                   models.HistoryAggregate
			lastAdded, lastBought *time.Time
		)
		if err := rows.Scan(&key, &agg.Name, &agg.CountAdds, &agg.CountBought, &agg.Accepts, &agg.Rejects, &lastAdded, &lastBought); err != nil {
			return nil, err
		}
		if lastAdded != nil {
			agg.LastAddedAt = *lastAdded
		}
		if lastBought != nil {
			agg.LastBoughtAt = *lastBought
		}
		out[key] = agg
	}
	return out, rows.Err()
}

// PushHistory writes one aggregate. Counters and timestamps never move
// backwards on the remote copy.
func (db *DB) PushHistory(ctx context.Context, userID, key string, agg models.HistoryAggregate) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO remote_history (user_id, item_key, name, count_adds, count_bought, accepts, rejects, last_added_at, last_bought_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, item_key) DO UPDATE SET
			name = EXCLUDED.name,
			count_adds = GREATEST(remote_history.count_adds, EXCLUDED.count_adds),
			count_bought = GREATEST(remote_history.count_bought, EXCLUDED.count_bought),
			accepts = GREATEST(remote_history.accepts, EXCLUDED.accepts),
			rejects = GREATEST(remote_history.rejects, EXCLUDED.rejects),
			last_added_at = GREATEST(remote_history.last_added_at, EXCLUDED.last_added_at),
			last_bought_at = GREATEST(remote_history.last_bought_at, EXCLUDED.last_bought_at)
	`, userID, key, agg.Name, agg.CountAdds, agg.CountBought, agg.Accepts, agg.Rejects,
		nullTime(agg.LastAddedAt), nullTime(agg.LastBoughtAt))
	return err
}

// ResetHistory deletes the aggregates last used at or before before, so a
// reset ledger does not pick up its old counters again.
func (db *DB) ResetHistory(ctx context.Context, userID string, before time.Time) error {
	_, err := db.Pool.Exec(ctx, `
		DELETE FROM remote_history
		WHERE user_id = $1
		  AND COALESCE(GREATEST(last_added_at, last_bought_at), '-infinity'::timestamptz) <= $2
	`, userID, before)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
