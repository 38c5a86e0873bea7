package liststore

import (
	"sync"

	"github.com/foxxcyber/voicecart/internal/models"
)

// Listener observes every applied change together with the resulting list.
// Listeners run while the store is locked, in mutation order, and must not
// call back into the Store.
type Listener func(items []models.ListItem, change models.ListChange)

// Store is the single writable copy of one user's list.
// Every mutation reads the latest collection and replaces it atomically.
type Store struct {
	mu        sync.Mutex
	items     []models.ListItem
	t         Transformer
	listeners []Listener
}

// New creates a store seeded with items
func New(t Transformer, items []models.ListItem) *Store {
	return &Store{t: t, items: clone(items)}
}

// Subscribe registers a listener for applied changes
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Items returns a copy of the current list
func (s *Store) Items() []models.ListItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.items)
}

// Get returns the item with id
func (s *Store) Get(id string) (models.ListItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexByID(s.items, id); i >= 0 {
		return s.items[i], true
	}
	return models.ListItem{}, false
}

// Add adds qty of name
func (s *Store) Add(name string, qty int) (models.ListChange, error) {
	return s.apply(func(items []models.ListItem) ([]models.ListItem, models.ListChange, error) {
		return s.t.Add(items, name, qty)
	})
}

// Remove removes qty of name
func (s *Store) Remove(name string, qty int) (models.ListChange, error) {
	return s.apply(func(items []models.ListItem) ([]models.ListItem, models.ListChange, error) {
		return s.t.Remove(items, name, qty)
	})
}

// IncQty adds one to the item with id
func (s *Store) IncQty(id string) (models.ListChange, error) {
	return s.apply(func(items []models.ListItem) ([]models.ListItem, models.ListChange, error) {
		return s.t.IncQty(items, id)
	})
}

// DecQty subtracts one from the item with id, never below 1
func (s *Store) DecQty(id string) (models.ListChange, error) {
	return s.apply(func(items []models.ListItem) ([]models.ListItem, models.ListChange, error) {
		return s.t.DecQty(items, id)
	})
}

// ToggleBought flips the bought flag of the item with id
func (s *Store) ToggleBought(id string) (models.ListChange, error) {
	return s.apply(func(items []models.ListItem) ([]models.ListItem, models.ListChange, error) {
		return s.t.ToggleBought(items, id)
	})
}

// DeleteByID removes the item with id
func (s *Store) DeleteByID(id string) (models.ListChange, error) {
	return s.apply(func(items []models.ListItem) ([]models.ListItem, models.ListChange, error) {
		return s.t.DeleteByID(items, id)
	})
}

// MergeFilter decides whether one remote item is applied. local is the item
// under the same id, nil if there is none. It runs under the store lock.
type MergeFilter func(remote models.ListItem, local *models.ListItem) bool

// MergeResult describes a filtered merge
type MergeResult struct {
	Change models.ListChange
	// Applied holds the accepted remote items as normalized by the store
	Applied []models.ListItem
	// Skipped holds the ids the filter rejected
	Skipped []string
	// Removed holds local ids dropped because a remote item took their name
	Removed []string
	// Folded holds applied ids whose stored item now differs from the
	// remote copy because a removed duplicate was folded into them
	Folded []string
}

// Merge folds a remote batch into the list, remote winning per id
func (s *Store) Merge(remote []models.ListItem) models.ListChange {
	return s.MergeFiltered(remote, nil).Change
}

// MergeFiltered merges the remote items accepted by keep, or all of them
// when keep is nil. Filtering and merging happen in one atomic step.
func (s *Store) MergeFiltered(remote []models.ListItem, keep MergeFilter) MergeResult {
	var res MergeResult
	res.Change, _ = s.apply(func(items []models.ListItem) ([]models.ListItem, models.ListChange, error) {
		res.Applied, res.Skipped = nil, nil
		for _, r := range remote {
			r, ok := s.t.NormalizeRemote(r)
			if !ok {
				continue
			}
			if keep != nil {
				var local *models.ListItem
				if i := indexByID(items, r.ID); i >= 0 {
					it := items[i]
					local = &it
				}
				if !keep(r, local) {
					res.Skipped = append(res.Skipped, r.ID)
					continue
				}
			}
			res.Applied = append(res.Applied, r)
		}

		out, change := s.t.Merge(items, res.Applied)
		res.Removed, res.Folded = nil, nil
		if change.Changed() {
			for _, it := range items {
				if indexByID(out, it.ID) < 0 {
					res.Removed = append(res.Removed, it.ID)
				}
			}
			for _, a := range res.Applied {
				if i := indexByID(out, a.ID); i >= 0 && out[i] != a {
					res.Folded = append(res.Folded, a.ID)
				}
			}
		}
		return out, change, nil
	})
	return res
}

// Replace swaps the whole collection, e.g. after loading the local cache
func (s *Store) Replace(items []models.ListItem, origin models.ChangeOrigin) {
	_, _ = s.apply(func([]models.ListItem) ([]models.ListItem, models.ListChange, error) {
		return clone(items), models.ListChange{Kind: models.ChangeReplaced, Origin: origin}, nil
	})
}

func (s *Store) apply(fn func([]models.ListItem) ([]models.ListItem, models.ListChange, error)) (models.ListChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, change, err := fn(s.items)
	if err != nil {
		return change, err
	}
	if !change.Changed() {
		return change, nil
	}

	s.items = out
	snapshot := clone(out)
	for _, l := range s.listeners {
		l(snapshot, change)
	}
	return change, nil
}
