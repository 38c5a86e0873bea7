// Package session composes the list store, history ledger, suggestions and
// sync reconciler for one user, and runs utterances through them one at a
// time.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxxcyber/voicecart/internal/history"
	"github.com/foxxcyber/voicecart/internal/liststore"
	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
	"github.com/foxxcyber/voicecart/internal/syncer"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrNoObjectStorage = errors.New("object storage is not configured")
)

const (
	utteranceQueueSize = 16
	archiveURLExpiry   = 15 * time.Minute
)

// ListCache is the durable local copy of the list
type ListCache interface {
	LoadList(userID string) ([]models.ListItem, error)
	SaveList(userID string, items []models.ListItem) error
}

// ArchiveStore keeps list archives locally
type ArchiveStore interface {
	SaveArchive(a models.Archive) error
	ListArchives(userID string, limit int) ([]models.Archive, error)
}

// ObjectArchiver keeps archives in object storage
type ObjectArchiver interface {
	SaveArchive(ctx context.Context, a models.Archive) error
	ListArchives(ctx context.Context, userID string) ([]models.Archive, error)
	ArchiveURL(ctx context.Context, userID, id string, expiry time.Duration) (string, error)
}

// Config wires a Session's collaborators. Only UserID is required.
type Config struct {
	UserID        string
	Locale        string
	Parser        services.Parser
	Suggestions   *services.SuggestionService
	Cache         ListCache
	History       history.Persister
	Archives      ArchiveStore
	Objects       ObjectArchiver
	Remote        syncer.Remote
	SyncDebounce  time.Duration
	SuggestionCap int
	Logger        *logger.Logger
	Now           func() time.Time
}

// Session is one user's live shopping list
type Session struct {
	userID      string
	locale      string
	parser      services.Parser
	suggestions *services.SuggestionService
	store       *liststore.Store
	ledger      *history.Ledger
	reconciler  *syncer.Reconciler
	cache       *cacheWriter
	archives    ArchiveStore
	objects     ObjectArchiver
	cap         int
	now         func() time.Time
	log         *logger.Logger

	// removed remembers names deleted from the list for the substitute bucket
	removedMu sync.Mutex
	removed   []string

	utterances chan utteranceJob
	quit       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

type utteranceJob struct {
	ctx    context.Context
	text   string
	locale string
	reply  chan models.Outcome
}

// New builds a session, loading the cached list and persisted history
func New(cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("session: user id required")
	}

	log := logger.OrNop(cfg.Logger).With("user_id", cfg.UserID)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		userID:      cfg.UserID,
		locale:      cfg.Locale,
		parser:      cfg.Parser,
		suggestions: cfg.Suggestions,
		archives:    cfg.Archives,
		objects:     cfg.Objects,
		cap:         cfg.SuggestionCap,
		now:         now,
		log:         log.With("component", "session"),
		utterances:  make(chan utteranceJob, utteranceQueueSize),
		quit:        make(chan struct{}),
	}
	if s.parser == nil {
		s.parser = services.NewFallbackParser(nil, 0, log)
	}
	if s.suggestions == nil {
		s.suggestions = services.NewSuggestionService(nil, nil, 0, log)
	}
	if s.cap <= 0 {
		s.cap = services.DefaultSuggestionCap
	}
	if s.locale == "" {
		s.locale = "en"
	}

	var initial []models.ListItem
	if cfg.Cache != nil {
		items, err := cfg.Cache.LoadList(cfg.UserID)
		if err != nil {
			s.log.Warn("failed to load cached list, starting empty", "error", err)
		}
		initial = items
	}

	t := liststore.DefaultTransformer()
	t.Now = now
	s.store = liststore.New(t, initial)

	opts := []history.Option{history.WithClock(now), history.WithLogger(log)}
	if cfg.History != nil {
		opts = append(opts, history.WithPersister(cfg.History))
	}
	s.ledger = history.New(opts...)

	if cfg.Cache != nil {
		s.cache = newCacheWriter(cfg.UserID, cfg.Cache, s.log)
		s.store.Subscribe(func(items []models.ListItem, _ models.ListChange) {
			s.cache.Save(items)
		})
	}

	if cfg.Remote != nil {
		s.reconciler = syncer.New(syncer.Config{
			Store:    s.store,
			Ledger:   s.ledger,
			Remote:   cfg.Remote,
			Auth:     syncer.StaticAuth(cfg.UserID),
			Debounce: cfg.SyncDebounce,
			Logger:   log,
			Now:      now,
		})
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// UserID returns the session owner
func (s *Session) UserID() string {
	return s.userID
}

// HandleUtterance interprets one finalized utterance and applies it.
// Utterances are processed strictly one after another in arrival order.
func (s *Session) HandleUtterance(ctx context.Context, text, locale string) (models.Outcome, error) {
	if locale == "" {
		locale = s.locale
	}
	job := utteranceJob{ctx: ctx, text: text, locale: locale, reply: make(chan models.Outcome, 1)}

	select {
	case <-s.quit:
		return models.Outcome{}, ErrSessionClosed
	case <-ctx.Done():
		return models.Outcome{}, ctx.Err()
	case s.utterances <- job:
	}

	select {
	case out := <-job.reply:
		return out, nil
	case <-s.quit:
		return models.Outcome{}, ErrSessionClosed
	case <-ctx.Done():
		return models.Outcome{}, ctx.Err()
	}
}

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case job := <-s.utterances:
			if job.ctx.Err() != nil {
				continue
			}
			job.reply <- s.process(job.ctx, job.text, job.locale)
		}
	}
}

func (s *Session) process(ctx context.Context, text, locale string) models.Outcome {
	intent, err := s.parser.Parse(ctx, text, locale)
	if err != nil {
		s.log.Warn("parser returned an error", "error", err)
		intent = models.UnknownIntent(text)
	}
	out := models.Outcome{Intent: intent}

	if intent.Action == models.ActionUnknown || !intent.HasItem() {
		out.Status = models.StatusNotUnderstood
		out.Reason = "heard but not understood"
		return out
	}

	switch intent.Action {
	case models.ActionSearch:
		out.Status = models.StatusSearch
		out.Matches = s.search(intent.CanonicalItem, locale)
		return out

	case models.ActionAdd:
		if err := services.ValidateItemName(intent.DisplayItem); err != nil {
			out.Status = models.StatusRejected
			out.Reason = err.Error()
			return out
		}
		change, err := s.addItem(intent.DisplayItem, intent.Quantity)
		if err != nil {
			out.Status = models.StatusRejected
			out.Reason = err.Error()
			return out
		}
		out.Status = models.StatusApplied
		out.Change = change

	case models.ActionRemove:
		change, subs, err := s.removeItem(intent.CanonicalItem, intent.Quantity)
		if errors.Is(err, liststore.ErrItemNotFound) {
			out.Status = models.StatusNoMatch
			out.Reason = fmt.Sprintf("%s is not on the list", intent.DisplayItem)
			return out
		}
		if err != nil {
			out.Status = models.StatusRejected
			out.Reason = err.Error()
			return out
		}
		out.Status = models.StatusApplied
		out.Change = change
		out.Substitutes = subs
	}

	out.Suggestions = s.suggestions.Engine().Generate(s.suggestionInput())
	return out
}

// Items returns the current list
func (s *Session) Items() []models.ListItem {
	return s.store.Items()
}

// Groups returns the list grouped by category
func (s *Session) Groups() []models.CategoryGroup {
	return liststore.GroupByCategory(s.store.Items())
}

// AddItem adds an item directly, bypassing the parser
func (s *Session) AddItem(name string, qty int) (models.ListChange, error) {
	if err := services.ValidateItemName(name); err != nil {
		return models.ListChange{}, err
	}
	return s.addItem(name, qty)
}

// IncQty adds one to an item
func (s *Session) IncQty(id string) (models.ListChange, error) {
	return s.store.IncQty(id)
}

// DecQty subtracts one from an item, never below 1
func (s *Session) DecQty(id string) (models.ListChange, error) {
	return s.store.DecQty(id)
}

// ToggleBought flips an item's bought flag; marking it bought is recorded
func (s *Session) ToggleBought(id string) (models.ListChange, error) {
	change, err := s.store.ToggleBought(id)
	if err != nil {
		return change, err
	}
	if change.BecameBought && change.Item != nil {
		s.ledger.Record(models.HistoryBought, change.Item.Name, change.Item.Quantity)
	}
	return change, nil
}

// Delete removes an item regardless of quantity and returns substitutes for it
func (s *Session) Delete(id string) (models.ListChange, []models.SuggestionCandidate, error) {
	change, err := s.store.DeleteByID(id)
	if err != nil {
		return change, nil, err
	}
	s.ledger.Record(models.HistoryRemove, change.Item.Name, 1)
	s.rememberRemoved(change.Item.Name)
	return change, s.suggestions.SubstitutesFor(change.Item.Name, s.store.Items()), nil
}

// Suggestions returns ranked candidates, generative first when configured
func (s *Session) Suggestions(ctx context.Context) []models.SuggestionCandidate {
	return s.suggestions.Suggest(ctx, s.suggestionInput())
}

// SubstitutesFor returns alternatives for one item
func (s *Session) SubstitutesFor(name string) []models.SuggestionCandidate {
	return s.suggestions.SubstitutesFor(name, s.store.Items())
}

// AcceptSuggestion records the acceptance and adds the item with quantity 1
func (s *Session) AcceptSuggestion(name string) (models.ListChange, error) {
	if err := services.ValidateItemName(name); err != nil {
		return models.ListChange{}, err
	}
	s.ledger.Record(models.HistoryAccept, name, 1)
	return s.addItem(name, 1)
}

// RejectSuggestion records the rejection
func (s *Session) RejectSuggestion(name string) error {
	if services.CanonicalName(name) == "" {
		return services.ErrEmptyItemName
	}
	s.ledger.Record(models.HistoryReject, name, 1)
	return nil
}

// History returns every ledger aggregate
func (s *Session) History() map[string]models.HistoryAggregate {
	return s.ledger.All()
}

// ResetHistory clears the ledger
func (s *Session) ResetHistory() {
	s.ledger.Reset()
}

// StartSync enables remote mirroring
func (s *Session) StartSync(ctx context.Context) error {
	if s.reconciler == nil {
		return syncer.ErrNoRemote
	}
	return s.reconciler.Start(ctx)
}

// StopSync disables remote mirroring
func (s *Session) StopSync() {
	if s.reconciler != nil {
		s.reconciler.Stop()
	}
}

// FlushSync pushes a pending remote write immediately
func (s *Session) FlushSync() {
	if s.reconciler != nil {
		s.reconciler.Flush()
	}
}

// SyncStatus reports the remote sync state
func (s *Session) SyncStatus() models.SyncStatus {
	if s.reconciler == nil {
		return models.SyncStatus{State: models.SyncDisconnected, UserID: s.userID}
	}
	return s.reconciler.Status()
}

// Archive stores a point-in-time copy of the list locally and, when
// configured, in object storage. An object storage failure is logged.
func (s *Session) Archive(ctx context.Context, reason string) (models.Archive, error) {
	if reason == "" {
		reason = models.SnapshotReasonArchive
	}
	a := models.Archive{
		ID:         uuid.NewString(),
		UserID:     s.userID,
		ArchivedAt: s.now(),
		Items:      s.store.Items(),
		Reason:     reason,
	}

	if s.archives != nil {
		if err := s.archives.SaveArchive(a); err != nil {
			return models.Archive{}, fmt.Errorf("save archive: %w", err)
		}
	}
	if s.objects != nil {
		if err := s.objects.SaveArchive(ctx, a); err != nil {
			s.log.Warn("archive upload failed", "archive_id", a.ID, "error", err)
		}
	}
	return a, nil
}

// Archives lists stored archives, newest first. Without a local archive
// store the object storage listing is used.
func (s *Session) Archives(ctx context.Context, limit int) ([]models.Archive, error) {
	switch {
	case s.archives != nil:
		return s.archives.ListArchives(s.userID, limit)
	case s.objects != nil:
		out, err := s.objects.ListArchives(ctx, s.userID)
		if err != nil {
			return nil, fmt.Errorf("list archive objects: %w", err)
		}
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	default:
		return []models.Archive{}, nil
	}
}

// ArchiveURL returns a short-lived download link for an uploaded archive
func (s *Session) ArchiveURL(ctx context.Context, id string) (string, error) {
	if s.objects == nil {
		return "", ErrNoObjectStorage
	}
	return s.objects.ArchiveURL(ctx, s.userID, id, archiveURLExpiry)
}

// Close stops the utterance worker and sync, then flushes pending local writes
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.StopSync()
		s.ledger.Close()
		if s.cache != nil {
			s.cache.Close()
		}
	})
}

func (s *Session) addItem(name string, qty int) (models.ListChange, error) {
	change, err := s.store.Add(name, qty)
	if err != nil {
		return change, err
	}
	s.ledger.Record(models.HistoryAdd, name, qty)
	s.forgetRemoved(name)
	return change, nil
}

func (s *Session) removeItem(name string, qty int) (models.ListChange, []models.SuggestionCandidate, error) {
	change, err := s.store.Remove(name, qty)
	if err != nil {
		return change, nil, err
	}
	s.ledger.Record(models.HistoryRemove, change.Item.Name, qty)
	if change.Kind != models.ChangeDeleted {
		return change, nil, nil
	}
	s.rememberRemoved(change.Item.Name)
	return change, s.suggestions.SubstitutesFor(change.Item.Name, s.store.Items()), nil
}

// search matches list items against the item words of a search phrase,
// either way round: "milk" finds "Whole Milk" and "whole milk" finds "Milk".
func (s *Session) search(canonical, locale string) []models.ListItem {
	terms := services.SearchTerms(canonical, locale)
	var out []models.ListItem
	for _, it := range s.store.Items() {
		name := services.CanonicalName(it.Name)
		if strings.Contains(name, terms) || strings.Contains(" "+terms+" ", " "+name+" ") {
			out = append(out, it)
		}
	}
	return out
}

func (s *Session) suggestionInput() services.SuggestionInput {
	s.removedMu.Lock()
	removed := append([]string(nil), s.removed...)
	s.removedMu.Unlock()

	return services.SuggestionInput{
		Current: s.store.Items(),
		History: s.ledger.All(),
		Now:     s.now(),
		Cap:     s.cap,
		Removed: removed,
	}
}

const maxRemembered = 8

func (s *Session) rememberRemoved(name string) {
	s.removedMu.Lock()
	defer s.removedMu.Unlock()
	s.removed = append(s.removed, name)
	if len(s.removed) > maxRemembered {
		s.removed = s.removed[len(s.removed)-maxRemembered:]
	}
}

func (s *Session) forgetRemoved(name string) {
	key := services.CanonicalName(name)
	s.removedMu.Lock()
	defer s.removedMu.Unlock()
	kept := s.removed[:0]
	for _, r := range s.removed {
		if services.CanonicalName(r) != key {
			kept = append(kept, r)
		}
	}
	s.removed = kept
}
