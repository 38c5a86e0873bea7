package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
)

const (
	aiSuggestionScore = 80
	aiHistoryRows     = 12
	aiSeasonalRows    = 12
)

const suggestSystemPrompt = `You are a shopping assistant. Suggest up to %d unique grocery items the user is likely to want next.
Return a JSON array only, no prose. Each element: {"item": string, "reason": string}.
Do not suggest anything already in current_list.
Prefer items the user frequently buys or recently bought.
If there is little history, prefer seasonal items for this month.
Avoid items the user often rejects.
Keep item names short and human-readable.`

// Suggester is an optional generative source of suggestions
type Suggester interface {
	Suggest(ctx context.Context, in SuggestionInput) ([]models.SuggestionCandidate, error)
}

// ClaudeSuggester asks the model for suggestions from a compressed view of
// the list, the month's seasonal items and the top history rows.
type ClaudeSuggester struct {
	gen  TextGenerator
	data *Datasets
}

// NewClaudeSuggester creates a generative suggester
func NewClaudeSuggester(gen TextGenerator, data *Datasets) *ClaudeSuggester {
	if data == nil {
		data = DefaultDatasets()
	}
	return &ClaudeSuggester{gen: gen, data: data}
}

type aiHistoryRow struct {
	Name         string     `json:"name"`
	Adds         int        `json:"adds"`
	Bought       int        `json:"bought"`
	Accepts      int        `json:"accepts"`
	Rejects      int        `json:"rejects"`
	LastAddedAt  *time.Time `json:"last_added_at,omitempty"`
	LastBoughtAt *time.Time `json:"last_bought_at,omitempty"`
	rank         int
}

type aiSuggestRequest struct {
	CurrentList        []string        `json:"current_list"`
	Month              string          `json:"month"`
	SeasonalCandidates []SeasonalEntry `json:"seasonal_candidates"`
	HistoryTop         []aiHistoryRow  `json:"history_top"`
}

type aiSuggestion struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// Suggest implements Suggester
func (s *ClaudeSuggester) Suggest(ctx context.Context, in SuggestionInput) ([]models.SuggestionCandidate, error) {
	limit := in.Cap
	if limit <= 0 {
		limit = DefaultSuggestionCap
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	present := presentNames(in.Current)
	req := aiSuggestRequest{
		CurrentList: make([]string, 0, len(present)),
		Month:       strconv.Itoa(int(now.Month())),
		HistoryTop:  topHistoryRows(in.History),
	}
	for name := range present {
		req.CurrentList = append(req.CurrentList, name)
	}
	sort.Strings(req.CurrentList)

	seasonal := s.data.Seasonal[int(now.Month())]
	if len(seasonal) > aiSeasonalRows {
		seasonal = seasonal[:aiSeasonalRows]
	}
	req.SeasonalCandidates = seasonal

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode suggestion request: %w", err)
	}

	out, err := s.gen.GenerateText(ctx, fmt.Sprintf(suggestSystemPrompt, limit), string(body))
	if err != nil {
		return nil, err
	}

	var raw []aiSuggestion
	if err := json.Unmarshal([]byte(stripCodeFence(out)), &raw); err != nil {
		return nil, fmt.Errorf("decode suggestions: %w", err)
	}

	var result []models.SuggestionCandidate
	seen := make(map[string]bool)
	for _, r := range raw {
		norm := NormalizeItem(r.Item)
		if norm.Canonical == "" || present[norm.Canonical] || seen[norm.Canonical] {
			continue
		}
		seen[norm.Canonical] = true
		reason := r.Reason
		if reason == "" {
			reason = "Recommended"
		}
		result = append(result, models.SuggestionCandidate{
			Item:   norm.Display,
			Reason: reason,
			Source: models.SourceAI,
			Score:  aiSuggestionScore,
		})
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func topHistoryRows(aggs map[string]models.HistoryAggregate) []aiHistoryRow {
	rows := make([]aiHistoryRow, 0, len(aggs))
	for _, key := range sortedKeys(aggs) {
		a := aggs[key]
		row := aiHistoryRow{
			Name:    a.Name,
			Adds:    a.CountAdds,
			Bought:  a.CountBought,
			Accepts: a.Accepts,
			Rejects: a.Rejects,
			rank:    a.CountBought*2 + a.CountAdds - a.Rejects + a.Accepts,
		}
		if !a.LastAddedAt.IsZero() {
			t := a.LastAddedAt
			row.LastAddedAt = &t
		}
		if !a.LastBoughtAt.IsZero() {
			t := a.LastBoughtAt
			row.LastBoughtAt = &t
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].rank > rows[j].rank })
	if len(rows) > aiHistoryRows {
		rows = rows[:aiHistoryRows]
	}
	return rows
}

// SuggestionService puts generative picks first and fills the remaining
// slots from the heuristic engine. Without a generative source, or when it
// fails or returns nothing, the heuristic output is returned unchanged.
type SuggestionService struct {
	engine  *SuggestionEngine
	ai      Suggester
	timeout time.Duration
	log     *logger.Logger
}

// NewSuggestionService composes the heuristic engine with an optional suggester
func NewSuggestionService(engine *SuggestionEngine, ai Suggester, timeout time.Duration, log *logger.Logger) *SuggestionService {
	if engine == nil {
		engine = NewSuggestionEngine(nil)
	}
	return &SuggestionService{
		engine:  engine,
		ai:      ai,
		timeout: timeout,
		log:     logger.OrNop(log).With("component", "suggestions"),
	}
}

// Engine returns the heuristic engine
func (s *SuggestionService) Engine() *SuggestionEngine {
	return s.engine
}

// Suggest returns at most in.Cap candidates
func (s *SuggestionService) Suggest(ctx context.Context, in SuggestionInput) []models.SuggestionCandidate {
	if in.Cap <= 0 {
		in.Cap = DefaultSuggestionCap
	}
	heuristic := s.engine.Generate(in)
	if s.ai == nil {
		return heuristic
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	picks, err := s.ai.Suggest(ctx, in)
	if err != nil {
		s.log.Warn("generative suggestions failed, using heuristics", "error", err)
		return heuristic
	}
	if len(picks) == 0 {
		return heuristic
	}

	out := make([]models.SuggestionCandidate, 0, in.Cap)
	seen := make(map[string]bool)
	for _, group := range [][]models.SuggestionCandidate{picks, heuristic} {
		for _, c := range group {
			if len(out) >= in.Cap {
				return out
			}
			key := CanonicalName(c.Item)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
		}
	}
	return out
}

// SubstitutesFor delegates to the heuristic engine
func (s *SuggestionService) SubstitutesFor(name string, current []models.ListItem) []models.SuggestionCandidate {
	return s.engine.SubstitutesFor(name, current)
}
