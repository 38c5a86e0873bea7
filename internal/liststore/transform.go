// Package liststore holds the in-memory shopping list.
//
// Mutations are pure transforms over an item slice: each takes the current
// collection and returns a new one plus a ListChange describing what
// happened. Store applies them atomically for concurrent callers.
package liststore

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
)

var (
	ErrItemNotFound  = errors.New("list item not found")
	ErrEmptyItemName = errors.New("item name is required")
)

// Transformer carries the inputs a mutation needs besides the collection
type Transformer struct {
	NewID      func() string
	Now        func() time.Time
	Categorize func(canonical string) string
}

// DefaultTransformer uses random UUIDs, wall clock time and the default category tables
func DefaultTransformer() Transformer {
	norm := services.NewNormalizer(nil)
	return Transformer{
		NewID:      uuid.NewString,
		Now:        time.Now,
		Categorize: norm.Category,
	}
}

// Add increments the quantity of the item with the same canonical name,
// or appends a new item.
func (t Transformer) Add(items []models.ListItem, name string, qty int) ([]models.ListItem, models.ListChange, error) {
	norm := services.NormalizeItem(name)
	if norm.Canonical == "" {
		return items, noChange(), ErrEmptyItemName
	}
	if qty < 1 {
		qty = 1
	}

	out := clone(items)
	if i := indexByName(out, norm.Canonical); i >= 0 {
		out[i].Quantity = max(1, out[i].Quantity+qty)
		out[i].UpdatedAt = t.Now()
		item := out[i]
		return out, models.ListChange{Kind: models.ChangeUpdated, Origin: models.OriginLocal, Item: &item, Delta: qty}, nil
	}

	item := models.ListItem{
		ID:        t.NewID(),
		Name:      norm.Display,
		Quantity:  qty,
		Category:  t.Categorize(norm.Canonical),
		Bought:    false,
		UpdatedAt: t.Now(),
	}
	out = append(out, item)
	return out, models.ListChange{Kind: models.ChangeCreated, Origin: models.OriginLocal, Item: &item, Delta: qty}, nil
}

// Remove decrements the named item by qty, or deletes it when its
// quantity does not exceed qty.
func (t Transformer) Remove(items []models.ListItem, name string, qty int) ([]models.ListItem, models.ListChange, error) {
	canonical := services.CanonicalName(name)
	if canonical == "" {
		return items, noChange(), ErrEmptyItemName
	}
	if qty < 1 {
		qty = 1
	}

	i := indexByName(items, canonical)
	if i < 0 {
		return items, noChange(), ErrItemNotFound
	}

	if items[i].Quantity > qty {
		out := clone(items)
		out[i].Quantity -= qty
		out[i].UpdatedAt = t.Now()
		item := out[i]
		return out, models.ListChange{Kind: models.ChangeUpdated, Origin: models.OriginLocal, Item: &item, Delta: -qty}, nil
	}

	removed := items[i]
	out := deleteAt(items, i)
	return out, models.ListChange{Kind: models.ChangeDeleted, Origin: models.OriginLocal, Item: &removed, Delta: -removed.Quantity}, nil
}

// IncQty adds one to the item's quantity
func (t Transformer) IncQty(items []models.ListItem, id string) ([]models.ListItem, models.ListChange, error) {
	return t.updateByID(items, id, func(it *models.ListItem) int {
		it.Quantity++
		return 1
	})
}

// DecQty subtracts one from the item's quantity; the floor is 1.
// Decrementing a quantity-1 item leaves the list unchanged.
func (t Transformer) DecQty(items []models.ListItem, id string) ([]models.ListItem, models.ListChange, error) {
	i := indexByID(items, id)
	if i < 0 {
		return items, noChange(), ErrItemNotFound
	}
	if items[i].Quantity <= 1 {
		item := items[i]
		return items, models.ListChange{Kind: models.ChangeNone, Origin: models.OriginLocal, Item: &item}, nil
	}
	return t.updateByID(items, id, func(it *models.ListItem) int {
		it.Quantity--
		return -1
	})
}

// ToggleBought flips the bought flag
func (t Transformer) ToggleBought(items []models.ListItem, id string) ([]models.ListItem, models.ListChange, error) {
	i := indexByID(items, id)
	if i < 0 {
		return items, noChange(), ErrItemNotFound
	}
	out := clone(items)
	out[i].Bought = !out[i].Bought
	out[i].UpdatedAt = t.Now()
	item := out[i]
	return out, models.ListChange{
		Kind:         models.ChangeUpdated,
		Origin:       models.OriginLocal,
		Item:         &item,
		BecameBought: item.Bought,
	}, nil
}

// DeleteByID removes the item regardless of quantity
func (t Transformer) DeleteByID(items []models.ListItem, id string) ([]models.ListItem, models.ListChange, error) {
	i := indexByID(items, id)
	if i < 0 {
		return items, noChange(), ErrItemNotFound
	}
	removed := items[i]
	return deleteAt(items, i), models.ListChange{Kind: models.ChangeDeleted, Origin: models.OriginLocal, Item: &removed, Delta: -removed.Quantity}, nil
}

// Merge applies a remote batch by identity: an id present in both takes the
// remote fields, unknown ids are appended, local-only ids are kept. A remote
// item whose name matches a local item under another id replaces it, so the
// one-item-per-name rule holds after every merge; the replaced item's larger
// quantity and bought flag are folded into the survivor.
func (t Transformer) Merge(items []models.ListItem, remote []models.ListItem) ([]models.ListItem, models.ListChange) {
	out := clone(items)
	changed := false

	for _, r := range remote {
		r, ok := t.NormalizeRemote(r)
		if !ok {
			continue
		}
		canonical := services.CanonicalName(r.Name)

		if i := indexByID(out, r.ID); i >= 0 {
			if out[i] != r {
				out[i] = r
				changed = true
			}
		} else {
			out = append(out, r)
			changed = true
		}

		// Enforce name uniqueness against other ids
		for j := 0; j < len(out); j++ {
			if out[j].ID != r.ID && services.CanonicalName(out[j].Name) == canonical {
				dup := out[j]
				out = deleteAt(out, j)
				j--
				changed = true
				if k := indexByID(out, r.ID); k >= 0 {
					out[k].Quantity = max(out[k].Quantity, dup.Quantity)
					out[k].Bought = out[k].Bought || dup.Bought
				}
			}
		}
	}

	if !changed {
		return items, models.ListChange{Kind: models.ChangeNone, Origin: models.OriginRemote}
	}
	return out, models.ListChange{Kind: models.ChangeMerged, Origin: models.OriginRemote}
}

// NormalizeRemote applies the store's rules to one remote item: quantity is
// at least 1 and a missing category is inferred. Items without an id or a
// usable name are rejected.
func (t Transformer) NormalizeRemote(r models.ListItem) (models.ListItem, bool) {
	if r.ID == "" {
		return r, false
	}
	canonical := services.CanonicalName(r.Name)
	if canonical == "" {
		return r, false
	}
	if r.Quantity < 1 {
		r.Quantity = 1
	}
	if r.Category == "" {
		r.Category = t.Categorize(canonical)
	}
	return r, true
}

func (t Transformer) updateByID(items []models.ListItem, id string, fn func(*models.ListItem) int) ([]models.ListItem, models.ListChange, error) {
	i := indexByID(items, id)
	if i < 0 {
		return items, noChange(), ErrItemNotFound
	}
	out := clone(items)
	delta := fn(&out[i])
	out[i].UpdatedAt = t.Now()
	item := out[i]
	return out, models.ListChange{Kind: models.ChangeUpdated, Origin: models.OriginLocal, Item: &item, Delta: delta}, nil
}

// FindByName returns the live item for a name, if any
func FindByName(items []models.ListItem, name string) (models.ListItem, bool) {
	if i := indexByName(items, services.CanonicalName(name)); i >= 0 {
		return items[i], true
	}
	return models.ListItem{}, false
}

// GroupByCategory groups items in the fixed category order
func GroupByCategory(items []models.ListItem) []models.CategoryGroup {
	byCat := make(map[string][]models.ListItem)
	for _, it := range items {
		cat := it.Category
		if cat == "" {
			cat = models.CategoryOther
		}
		byCat[cat] = append(byCat[cat], it)
	}

	var groups []models.CategoryGroup
	seen := make(map[string]bool)
	for _, cat := range models.Categories {
		if list, ok := byCat[cat]; ok {
			groups = append(groups, models.CategoryGroup{Category: cat, Items: list})
			seen[cat] = true
		}
	}
	// Categories from other clients that are not in the fixed set
	for _, it := range items {
		if it.Category != "" && !seen[it.Category] {
			groups = append(groups, models.CategoryGroup{Category: it.Category, Items: byCat[it.Category]})
			seen[it.Category] = true
		}
	}
	return groups
}

func indexByName(items []models.ListItem, canonical string) int {
	for i, it := range items {
		if services.CanonicalName(it.Name) == canonical {
			return i
		}
	}
	return -1
}

func indexByID(items []models.ListItem, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func clone(items []models.ListItem) []models.ListItem {
	out := make([]models.ListItem, len(items), len(items)+1)
	copy(out, items)
	return out
}

func deleteAt(items []models.ListItem, i int) []models.ListItem {
	out := make([]models.ListItem, 0, len(items))
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}

func noChange() models.ListChange {
	return models.ListChange{Kind: models.ChangeNone, Origin: models.OriginLocal}
}
