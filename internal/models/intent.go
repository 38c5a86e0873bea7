package models

// Action is the interpreted verb of an utterance
type Action string

const (
	ActionAdd     Action = "add"
	ActionRemove  Action = "remove"
	ActionSearch  Action = "search"
	ActionUnknown Action = "unknown"
)

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionRemove, ActionSearch, ActionUnknown:
		return true
	}
	return false
}

// Intent is the structured interpretation of one utterance.
// Item fields are empty when no item could be extracted.
type Intent struct {
	Action        Action `json:"action"`
	CanonicalItem string `json:"canonical_item,omitempty"`
	DisplayItem   string `json:"display_item,omitempty"`
	Quantity      int    `json:"quantity"`
	Raw           string `json:"raw"`
	// Source names the parser that produced the intent ("rules" or "ai").
	Source string `json:"source"`
}

// HasItem reports whether an item name was extracted
func (i Intent) HasItem() bool {
	return i.CanonicalItem != ""
}

// UnknownIntent is the fail-closed result for raw text
func UnknownIntent(raw string) Intent {
	return Intent{Action: ActionUnknown, Quantity: 1, Raw: raw, Source: "rules"}
}

// OutcomeStatus classifies how an utterance was handled
type OutcomeStatus string

const (
	StatusApplied       OutcomeStatus = "applied"
	StatusNotUnderstood OutcomeStatus = "not_understood"
	StatusRejected      OutcomeStatus = "rejected"
	StatusSearch        OutcomeStatus = "search"
	StatusNoMatch       OutcomeStatus = "no_match"
)

// Outcome is what the core reports back for a single utterance.
// Presentation layers decide how to display it.
type Outcome struct {
	Intent      Intent                `json:"intent"`
	Status      OutcomeStatus         `json:"status"`
	Change      ListChange            `json:"change"`
	Substitutes []SuggestionCandidate `json:"substitutes,omitempty"`
	Suggestions []SuggestionCandidate `json:"suggestions,omitempty"`
	// Matches holds list items whose name contains a searched item
	Matches []ListItem `json:"matches,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}
