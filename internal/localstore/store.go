// Package localstore is the durable local cache: the last known list per
// user, the history ledger and list archives, kept in one SQLite file.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/foxxcyber/voicecart/internal/models"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeLayout has a fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Config configures the local store
type Config struct {
	DataDir string
}

// Store is the SQLite-backed local cache
type Store struct {
	db *sql.DB
}

// New opens (or creates) voicecart.db under cfg.DataDir and runs migrations
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("localstore: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "voicecart.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("localstore: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("localstore: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS list_cache (
			user_id    TEXT NOT NULL,
			position   INTEGER NOT NULL,
			id         TEXT NOT NULL,
			name       TEXT NOT NULL,
			quantity   INTEGER NOT NULL,
			category   TEXT NOT NULL,
			bought     INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (user_id, id)
		);

		CREATE TABLE IF NOT EXISTS history (
			user_id        TEXT NOT NULL,
			item_key       TEXT NOT NULL,
			name           TEXT NOT NULL,
			count_adds     INTEGER NOT NULL DEFAULT 0,
			count_bought   INTEGER NOT NULL DEFAULT 0,
			accepts        INTEGER NOT NULL DEFAULT 0,
			rejects        INTEGER NOT NULL DEFAULT 0,
			last_added_at  TEXT,
			last_bought_at TEXT,
			PRIMARY KEY (user_id, item_key)
		);

		CREATE TABLE IF NOT EXISTS history_resets (
			user_id  TEXT PRIMARY KEY,
			reset_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS archives (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			reason      TEXT NOT NULL DEFAULT '',
			items       TEXT NOT NULL,
			archived_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_archives_user ON archives(user_id, archived_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── List cache ──────────────────────────────────────────────────────────────

// LoadList returns the cached list for a user; an unknown user has an empty list
func (s *Store) LoadList(userID string) ([]models.ListItem, error) {
	rows, err := s.db.Query(`
		SELECT id, name, quantity, category, bought, updated_at
		FROM list_cache
		WHERE user_id = ?
		ORDER BY position ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("localstore: load list: %w", err)
	}
	defer rows.Close()

	var items []models.ListItem
	for rows.Next() {
		var (
			it        models.ListItem
			updatedAt string
		)
		if err := rows.Scan(&it.ID, &it.Name, &it.Quantity, &it.Category, &it.Bought, &updatedAt); err != nil {
			return nil, fmt.Errorf("localstore: scan list item: %w", err)
		}
		it.UpdatedAt = parseTime(updatedAt)
		items = append(items, it)
	}
	return items, rows.Err()
}

// SaveList replaces the cached list for a user
func (s *Store) SaveList(userID string, items []models.ListItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("localstore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM list_cache WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("localstore: clear list: %w", err)
	}
	for i, it := range items {
		_, err := tx.Exec(`
			INSERT INTO list_cache (user_id, position, id, name, quantity, category, bought, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, userID, i, it.ID, it.Name, it.Quantity, it.Category, it.Bought, formatTime(it.UpdatedAt))
		if err != nil {
			return fmt.Errorf("localstore: save item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// ─── History ─────────────────────────────────────────────────────────────────

// History returns a ledger persister scoped to one user
func (s *Store) History(userID string) *UserHistory {
	return &UserHistory{s: s, userID: userID}
}

// UserHistory persists one user's ledger aggregates
type UserHistory struct {
	s      *Store
	userID string
}

// LoadAggregates returns every stored aggregate keyed by canonical name
func (h *UserHistory) LoadAggregates() (map[string]models.HistoryAggregate, error) {
	rows, err := h.s.db.Query(`
		SELECT item_key, name, count_adds, count_bought, accepts, rejects, last_added_at, last_bought_at
		FROM history
		WHERE user_id = ?
	`, h.userID)
	if err != nil {
		return nil, fmt.Errorf("localstore: load history: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.HistoryAggregate)
	for rows.Next() {
		var (
			key                   string
			agg                   models.HistoryAggregate
			lastAdded, lastBought sql.NullString
		)
		if err := rows.Scan(&key, &agg.Name, &agg.CountAdds, &agg.CountBought, &agg.Accepts, &agg.Rejects, &lastAdded, &lastBought); err != nil {
			return nil, fmt.Errorf("localstore: scan history: %w", err)
		}
		if lastAdded.Valid {
			agg.LastAddedAt = parseTime(lastAdded.String)
		}
		if lastBought.Valid {
			agg.LastBoughtAt = parseTime(lastBought.String)
		}
		out[key] = agg
	}
	return out, rows.Err()
}

// SaveAggregate upserts one aggregate
func (h *UserHistory) SaveAggregate(key string, agg models.HistoryAggregate) error {
	_, err := h.s.db.Exec(`
		INSERT INTO history (user_id, item_key, name, count_adds, count_bought, accepts, rejects, last_added_at, last_bought_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, item_key) DO UPDATE SET
			name = excluded.name,
			count_adds = excluded.count_adds,
			count_bought = excluded.count_bought,
			accepts = excluded.accepts,
			rejects = excluded.rejects,
			last_added_at = excluded.last_added_at,
			last_bought_at = excluded.last_bought_at
	`, h.userID, key, agg.Name, agg.CountAdds, agg.CountBought, agg.Accepts, agg.Rejects,
		nullableTime(agg.LastAddedAt), nullableTime(agg.LastBoughtAt))
	if err != nil {
		return fmt.Errorf("localstore: save history %q: %w", key, err)
	}
	return nil
}

// ResetAggregates deletes the user's ledger
func (h *UserHistory) ResetAggregates() error {
	if _, err := h.s.db.Exec(`DELETE FROM history WHERE user_id = ?`, h.userID); err != nil {
		return fmt.Errorf("localstore: reset history: %w", err)
	}
	return nil
}

// LoadResetAt returns when the user's ledger was last reset
func (h *UserHistory) LoadResetAt() (time.Time, error) {
	var at string
	err := h.s.db.QueryRow(`SELECT reset_at FROM history_resets WHERE user_id = ?`, h.userID).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("localstore: load history reset: %w", err)
	}
	return parseTime(at), nil
}

// SaveResetAt records the time of the last ledger reset
func (h *UserHistory) SaveResetAt(at time.Time) error {
	_, err := h.s.db.Exec(`
		INSERT INTO history_resets (user_id, reset_at) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET reset_at = excluded.reset_at
	`, h.userID, formatTime(at))
	if err != nil {
		return fmt.Errorf("localstore: save history reset: %w", err)
	}
	return nil
}

// ─── Archives ────────────────────────────────────────────────────────────────

// SaveArchive stores a point-in-time copy of a list
func (s *Store) SaveArchive(a models.Archive) error {
	raw, err := json.Marshal(a.Items)
	if err != nil {
		return fmt.Errorf("localstore: encode archive: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO archives (id, user_id, reason, items, archived_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Reason, string(raw), formatTime(a.ArchivedAt))
	if err != nil {
		return fmt.Errorf("localstore: save archive: %w", err)
	}
	return nil
}

// ListArchives returns a user's archives, newest first
func (s *Store) ListArchives(userID string, limit int) ([]models.Archive, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, reason, items, archived_at
		FROM archives
		WHERE user_id = ?
		ORDER BY archived_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("localstore: list archives: %w", err)
	}
	defer rows.Close()

	var out []models.Archive
	for rows.Next() {
		var (
			a          models.Archive
			raw, taken string
		)
		if err := rows.Scan(&a.ID, &a.Reason, &raw, &taken); err != nil {
			return nil, fmt.Errorf("localstore: scan archive: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &a.Items); err != nil {
			return nil, fmt.Errorf("localstore: decode archive %s: %w", a.ID, err)
		}
		a.UserID = userID
		a.ArchivedAt = parseTime(taken)
		out = append(out, a)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
