package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/foxxcyber/voicecart/internal/models"
)

const (
	DefaultSuggestionCap = 4

	historyMinFrequency = 2
	historyMinDays      = 5
	noHistoryDays       = 999

	maxHistoryPicks  = 2
	maxSeasonalPicks = 2

	substituteForScore = 60
)

// SuggestionInput is everything Generate reads; it is never mutated
type SuggestionInput struct {
	Current []models.ListItem
	History map[string]models.HistoryAggregate
	Now     time.Time
	Cap     int
	// Removed lists names just removed from the list, which still trigger substitutes
	Removed []string
}

// SuggestionEngine ranks candidates from history, the seasonal calendar
// and the substitution table. It holds no state between calls.
type SuggestionEngine struct {
	data *Datasets
}

// NewSuggestionEngine creates an engine over data; nil uses the embedded tables
func NewSuggestionEngine(data *Datasets) *SuggestionEngine {
	if data == nil {
		data = DefaultDatasets()
	}
	return &SuggestionEngine{data: data}
}

// Generate returns at most in.Cap candidates, none of which is already on the list
func (e *SuggestionEngine) Generate(in SuggestionInput) []models.SuggestionCandidate {
	limit := in.Cap
	if limit <= 0 {
		limit = DefaultSuggestionCap
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	present := presentNames(in.Current)
	seen := make(map[string]bool)

	history := e.historyBucket(in.History, now, present, seen)
	seasonal := e.seasonalBucket(in.History, now, present, seen)
	subs := e.substituteBucket(in, present, seen)

	sortByScore(history)
	sortByScore(seasonal)
	sortByScore(subs)

	picked := make(map[string]bool)
	out := make([]models.SuggestionCandidate, 0, limit)
	take := func(c models.SuggestionCandidate) {
		out = append(out, c)
		picked[CanonicalName(c.Item)] = true
	}

	for i := 0; i < len(history) && i < maxHistoryPicks && len(out) < limit; i++ {
		take(history[i])
	}
	for i := 0; i < len(seasonal) && i < maxSeasonalPicks && len(out) < limit; i++ {
		take(seasonal[i])
	}

	if len(out) < limit {
		pool := make([]models.SuggestionCandidate, 0, len(history)+len(seasonal)+len(subs))
		pool = append(pool, history...)
		pool = append(pool, seasonal...)
		pool = append(pool, subs...)
		sortByScore(pool)
		for _, c := range pool {
			if len(out) >= limit {
				break
			}
			if picked[CanonicalName(c.Item)] {
				continue
			}
			take(c)
		}
	}
	return out
}

// SubstitutesFor looks up alternatives for one item, skipping names on the list
func (e *SuggestionEngine) SubstitutesFor(name string, current []models.ListItem) []models.SuggestionCandidate {
	key := CanonicalName(name)
	alts := e.data.Substitutes[key]
	if len(alts) == 0 {
		return nil
	}
	present := presentNames(current)
	display := DisplayName(key)

	var out []models.SuggestionCandidate
	seen := make(map[string]bool)
	for _, alt := range alts {
		norm := NormalizeItem(alt)
		if norm.Canonical == "" || present[norm.Canonical] || seen[norm.Canonical] {
			continue
		}
		seen[norm.Canonical] = true
		out = append(out, models.SuggestionCandidate{
			Item:   norm.Display,
			Reason: fmt.Sprintf("Instead of %s", display),
			Source: models.SourceSubstitute,
			Score:  substituteForScore,
		})
	}
	return out
}

func (e *SuggestionEngine) historyBucket(aggs map[string]models.HistoryAggregate, now time.Time, present, seen map[string]bool) []models.SuggestionCandidate {
	var out []models.SuggestionCandidate
	for _, key := range sortedKeys(aggs) {
		agg := aggs[key]
		canonical := CanonicalName(key)
		if canonical == "" || present[canonical] || seen[canonical] {
			continue
		}
		freq := agg.Frequency()
		days := daysSince(agg.LastUsedAt(), now)
		if freq < historyMinFrequency || days < historyMinDays {
			continue
		}
		seen[canonical] = true

		name := agg.Name
		if name == "" {
			name = DisplayName(canonical)
		}
		out = append(out, models.SuggestionCandidate{
			Item:   name,
			Reason: historyReason(freq, days),
			Source: models.SourceHistory,
			Score:  50 + min(30, freq*5) + min(20, days),
		})
	}
	return out
}

func (e *SuggestionEngine) seasonalBucket(aggs map[string]models.HistoryAggregate, now time.Time, present, seen map[string]bool) []models.SuggestionCandidate {
	var out []models.SuggestionCandidate
	for _, entry := range e.data.Seasonal[int(now.Month())] {
		norm := NormalizeItem(entry.Item)
		if norm.Canonical == "" || present[norm.Canonical] || seen[norm.Canonical] {
			continue
		}
		seen[norm.Canonical] = true

		reason := entry.Reason
		if reason == "" {
			reason = "In season"
		}
		out = append(out, models.SuggestionCandidate{
			Item:   norm.Display,
			Reason: reason,
			Source: models.SourceSeasonal,
			Score:  40 + feedbackAdjustment(aggs[norm.Canonical]),
		})
	}
	return out
}

func (e *SuggestionEngine) substituteBucket(in SuggestionInput, present, seen map[string]bool) []models.SuggestionCandidate {
	var triggers []string
	for _, it := range in.Current {
		triggers = append(triggers, it.Name)
	}
	triggers = append(triggers, in.Removed...)

	var out []models.SuggestionCandidate
	for _, trigger := range triggers {
		key := CanonicalName(trigger)
		for _, alt := range e.data.Substitutes[key] {
			norm := NormalizeItem(alt)
			if norm.Canonical == "" || present[norm.Canonical] || seen[norm.Canonical] {
				continue
			}
			seen[norm.Canonical] = true
			out = append(out, models.SuggestionCandidate{
				Item:   norm.Display,
				Reason: fmt.Sprintf("Alternative to %s", DisplayName(key)),
				Source: models.SourceSubstitute,
				Score:  25 + feedbackAdjustment(in.History[norm.Canonical]),
			})
		}
	}
	return out
}

// feedbackAdjustment rewards accepted and penalizes rejected suggestions
func feedbackAdjustment(agg models.HistoryAggregate) int {
	return min(20, agg.Accepts*5) - min(20, agg.Rejects*5)
}

func daysSince(last, now time.Time) int {
	if last.IsZero() {
		return noHistoryDays
	}
	d := int(now.Sub(last).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func historyReason(freq, days int) string {
	if days >= noHistoryDays {
		return fmt.Sprintf("Added %d times", freq)
	}
	return fmt.Sprintf("Bought %d times, last %d days ago", freq, days)
}

func presentNames(items []models.ListItem) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[CanonicalName(it.Name)] = true
	}
	return out
}

// sortByScore orders candidates by descending score, keeping input order on ties
func sortByScore(cs []models.SuggestionCandidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Score > cs[j].Score })
}

func sortedKeys(m map[string]models.HistoryAggregate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
