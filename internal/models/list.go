package models

import (
	"time"
)

// Category names used for display grouping of list items
const (
	CategoryProduce   = "produce"
	CategoryDairy     = "dairy"
	CategoryBakery    = "bakery"
	CategoryMeat      = "meat"
	CategorySeafood   = "seafood"
	CategoryPantry    = "pantry"
	CategorySnacks    = "snacks"
	CategoryBeverages = "beverages"
	CategoryFrozen    = "frozen"
	CategoryHousehold = "household"
	CategoryPersonal  = "personal care"
	CategoryOther     = "other"
)

// Categories is the fixed category set, in display order
var Categories = []string{
	CategoryProduce,
	CategoryDairy,
	CategoryBakery,
	CategoryMeat,
	CategorySeafood,
	CategoryPantry,
	CategorySnacks,
	CategoryBeverages,
	CategoryFrozen,
	CategoryHousehold,
	CategoryPersonal,
	CategoryOther,
}

// ListItem represents a single line on a user's shopping list
type ListItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Category  string    `json:"category"`
	Bought    bool      `json:"bought"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryGroup is a list section for category-grouped views
type CategoryGroup struct {
	Category string     `json:"category"`
	Items    []ListItem `json:"items"`
}

// ChangeKind identifies what a list mutation did
type ChangeKind string

const (
	ChangeNone     ChangeKind = "none"
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeMerged   ChangeKind = "merged"
	ChangeReplaced ChangeKind = "replaced"
)

// ChangeOrigin says where a mutation came from
type ChangeOrigin string

const (
	OriginLocal  ChangeOrigin = "local"
	OriginRemote ChangeOrigin = "remote"
)

// ListChange describes the outcome of one list mutation.
// Item holds the state after the change, or the removed item for deletes.
type ListChange struct {
	Kind   ChangeKind   `json:"kind"`
	Origin ChangeOrigin `json:"origin"`
	Item   *ListItem    `json:"item,omitempty"`
	// Delta is the signed quantity change applied to Item.
	Delta int `json:"delta"`
	// BecameBought is set when a toggle moved Item from not bought to bought.
	BecameBought bool `json:"became_bought,omitempty"`
}

// Changed reports whether the mutation modified the list
func (c ListChange) Changed() bool {
	return c.Kind != ChangeNone && c.Kind != ""
}

// Archive is a point-in-time copy of a list kept for later reference
type Archive struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	ArchivedAt time.Time  `json:"archived_at"`
	Items      []ListItem `json:"items"`
	Reason     string     `json:"reason,omitempty"`
}

// Snapshot reasons
const (
	SnapshotReasonAutosave = "autosave"
	SnapshotReasonArchive  = "archive"
)

// SnapshotMeta is attached to every remote point-in-time snapshot
type SnapshotMeta struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	ItemCount int       `json:"item_count"`
	TakenAt   time.Time `json:"taken_at"`
}

// Request types

// AddListItemRequest is the request body for adding an item directly
type AddListItemRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// UtteranceRequest is the request body for a finalized utterance
type UtteranceRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

// SuggestionFeedbackRequest is the request body for accepting or rejecting a suggestion
type SuggestionFeedbackRequest struct {
	Item string `json:"item"`
}

// ArchiveRequest is the request body for archiving the current list
type ArchiveRequest struct {
	Reason string `json:"reason,omitempty"`
}
