package models

import "time"

// HistoryKind is the type of a usage event recorded in the ledger
type HistoryKind string

const (
	HistoryAdd    HistoryKind = "add"
	HistoryRemove HistoryKind = "remove"
	HistoryBought HistoryKind = "bought"
	HistoryAccept HistoryKind = "accept-suggestion"
	HistoryReject HistoryKind = "reject-suggestion"
)

// HistoryAggregate holds the usage counters for one canonical item name
type HistoryAggregate struct {
	Name         string    `json:"name"`
	CountAdds    int       `json:"count_adds"`
	CountBought  int       `json:"count_bought"`
	Accepts      int       `json:"accepts"`
	Rejects      int       `json:"rejects"`
	LastAddedAt  time.Time `json:"last_added_at,omitempty"`
	LastBoughtAt time.Time `json:"last_bought_at,omitempty"`
}

// Frequency is the larger of the bought and added counters
func (a HistoryAggregate) Frequency() int {
	if a.CountBought > a.CountAdds {
		return a.CountBought
	}
	return a.CountAdds
}

// LastUsedAt prefers the last purchase and falls back to the last add
func (a HistoryAggregate) LastUsedAt() time.Time {
	if !a.LastBoughtAt.IsZero() {
		return a.LastBoughtAt
	}
	return a.LastAddedAt
}

// SuggestionSource identifies the strategy that produced a candidate
type SuggestionSource string

const (
	SourceHistory    SuggestionSource = "history"
	SourceSeasonal   SuggestionSource = "seasonal"
	SourceSubstitute SuggestionSource = "substitute"
	SourceAI         SuggestionSource = "ai"
)

// SuggestionCandidate is one ranked suggestion
type SuggestionCandidate struct {
	Item   string           `json:"item"`
	Reason string           `json:"reason"`
	Source SuggestionSource `json:"source"`
	Score  int              `json:"score"`
}

// SyncState is the lifecycle state of a sync session
type SyncState string

const (
	SyncDisconnected   SyncState = "disconnected"
	SyncAuthenticating SyncState = "authenticating"
	SyncSyncing        SyncState = "syncing"
	SyncError          SyncState = "error"
)

// SyncStatus is the externally visible sync indicator
type SyncStatus struct {
	State        SyncState  `json:"state"`
	UserID       string     `json:"user_id,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastPushedAt *time.Time `json:"last_pushed_at,omitempty"`
	LastMergedAt *time.Time `json:"last_merged_at,omitempty"`
	PendingPush  bool       `json:"pending_push"`
}
