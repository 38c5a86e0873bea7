package services_test

import (
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
)

var june = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

// testDatasets has one seasonal month and a small substitution table
func testDatasets() *services.Datasets {
	return &services.Datasets{
		Seasonal: map[int][]services.SeasonalEntry{
			6: {
				{Item: "Cherries"},
				{Item: "Peaches", Reason: "Stone fruit season"},
				{Item: "Apricots"},
			},
		},
		Substitutes: map[string][]string{
			"milk":  {"almond milk", "soy milk", "oat milk"},
			"chips": {"popcorn", "nuts"},
		},
	}
}

func daysAgo(n int) time.Time {
	return june.Add(-time.Duration(n) * 24 * time.Hour)
}

func items(names ...string) []models.ListItem {
	out := make([]models.ListItem, 0, len(names))
	for i, n := range names {
		out = append(out, models.ListItem{ID: fmt.Sprintf("id-%d", i), Name: n, Quantity: 1})
	}
	return out
}

func itemNames(cs []models.SuggestionCandidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Item)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGenerate_SelectionOrder(t *testing.T) {
	e := services.NewSuggestionEngine(testDatasets())
	history := map[string]models.HistoryAggregate{
		// 50 + 10 + 20 = 80
		"bread": {Name: "Bread", CountAdds: 2, LastAddedAt: daysAgo(20)},
		// 50 + 10 + 10 = 70
		"eggs": {Name: "Eggs", CountAdds: 2, LastAddedAt: daysAgo(10)},
		// seasonal scores 50, 60, 55
		"cherries": {Name: "Cherries", Accepts: 2},
		"peaches":  {Name: "Peaches", Accepts: 4},
		"apricots": {Name: "Apricots", Accepts: 3},
	}

	got := e.Generate(services.SuggestionInput{History: history, Now: june, Cap: 4})

	want := []string{"Bread", "Eggs", "Peaches", "Apricots"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Generate() = %v, want %v", itemNames(got), want)
	}
	wantScores := []int{80, 70, 60, 55}
	for i, c := range got {
		if c.Score != wantScores[i] {
			t.Errorf("%s score = %d, want %d", c.Item, c.Score, wantScores[i])
		}
	}
	if got[0].Source != models.SourceHistory || got[2].Source != models.SourceSeasonal {
		t.Errorf("sources = %s, %s", got[0].Source, got[2].Source)
	}
	if got[2].Reason != "Stone fruit season" {
		t.Errorf("seasonal reason = %q", got[2].Reason)
	}
}

func TestGenerate_FillsFromHighestRemaining(t *testing.T) {
	e := services.NewSuggestionEngine(testDatasets())
	history := map[string]models.HistoryAggregate{
		"bread":  {Name: "Bread", CountAdds: 2, LastAddedAt: daysAgo(20)},
		"eggs":   {Name: "Eggs", CountAdds: 2, LastAddedAt: daysAgo(10)},
		"butter": {Name: "Butter", CountBought: 6, LastBoughtAt: daysAgo(30)},
	}

	got := e.Generate(services.SuggestionInput{History: history, Now: june, Cap: 5})

	// Two history picks, two seasonal picks, then the best leftover
	want := []string{"Butter", "Bread", "Cherries", "Peaches", "Eggs"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Generate() = %v, want %v", itemNames(got), want)
	}
}

func TestGenerate_HistoryEligibility(t *testing.T) {
	e := services.NewSuggestionEngine(&services.Datasets{})
	history := map[string]models.HistoryAggregate{
		"recent":   {Name: "Recent", CountAdds: 5, LastAddedAt: daysAgo(2)},
		"once":     {Name: "Once", CountAdds: 1, LastAddedAt: daysAgo(30)},
		"untimed":  {Name: "Untimed", CountAdds: 3},
		"eligible": {Name: "Eligible", CountBought: 2, LastBoughtAt: daysAgo(5)},
	}

	got := e.Generate(services.SuggestionInput{History: history, Now: june, Cap: 4})

	want := []string{"Untimed", "Eligible"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Generate() = %v, want %v", itemNames(got), want)
	}
	// No timestamp counts as long ago: 50 + 15 + 20
	if got[0].Score != 85 {
		t.Errorf("untimed score = %d, want 85", got[0].Score)
	}
	if got[1].Score != 65 {
		t.Errorf("eligible score = %d, want 65", got[1].Score)
	}
}

func TestGenerate_Substitutes(t *testing.T) {
	e := services.NewSuggestionEngine(testDatasets())
	may := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	got := e.Generate(services.SuggestionInput{
		Current: items("Milk", "Oat Milk"),
		History: map[string]models.HistoryAggregate{
			"soy milk": {Name: "Soy Milk", Accepts: 1},
		},
		Now: may,
		Cap: 4,
	})

	want := []string{"Soy Milk", "Almond Milk"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Generate() = %v, want %v", itemNames(got), want)
	}
	if got[0].Score != 30 || got[1].Score != 25 {
		t.Errorf("scores = %d, %d, want 30, 25", got[0].Score, got[1].Score)
	}
	if got[1].Reason != "Alternative to Milk" {
		t.Errorf("reason = %q", got[1].Reason)
	}
}

func TestGenerate_RemovedNamesTriggerSubstitutes(t *testing.T) {
	e := services.NewSuggestionEngine(testDatasets())
	may := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	got := e.Generate(services.SuggestionInput{Removed: []string{"Chips"}, Now: may, Cap: 4})

	want := []string{"Popcorn", "Nuts"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Generate() = %v, want %v", itemNames(got), want)
	}
}

func TestGenerate_RejectsLowerSeasonalScore(t *testing.T) {
	e := services.NewSuggestionEngine(testDatasets())
	got := e.Generate(services.SuggestionInput{
		History: map[string]models.HistoryAggregate{
			"cherries": {Name: "Cherries", Rejects: 10},
		},
		Now: june,
		Cap: 3,
	})

	want := []string{"Peaches", "Apricots", "Cherries"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Generate() = %v, want %v", itemNames(got), want)
	}
	if got[2].Score != 20 {
		t.Errorf("rejected score = %d, want 20", got[2].Score)
	}
}

func TestGenerate_DefaultCap(t *testing.T) {
	e := services.NewSuggestionEngine(nil)
	history := make(map[string]models.HistoryAggregate)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("item %c", 'a'+i)
		history[name] = models.HistoryAggregate{Name: name, CountAdds: 3, LastAddedAt: daysAgo(10)}
	}

	got := e.Generate(services.SuggestionInput{History: history, Now: june})
	if len(got) != services.DefaultSuggestionCap {
		t.Errorf("len = %d, want %d", len(got), services.DefaultSuggestionCap)
	}
}

func TestGenerate_CapAndExclusion(t *testing.T) {
	vocab := []string{"milk", "bread", "eggs", "chips", "popcorn", "nuts", "almond milk", "cherries", "peaches", "apricots", "rice"}
	e := services.NewSuggestionEngine(testDatasets())

	rapid.Check(t, func(t *rapid.T) {
		current := rapid.SliceOfDistinct(rapid.SampledFrom(vocab), func(s string) string { return s }).Draw(t, "current")
		histNames := rapid.SliceOfDistinct(rapid.SampledFrom(vocab), func(s string) string { return s }).Draw(t, "history")
		limit := rapid.IntRange(1, 6).Draw(t, "cap")

		history := make(map[string]models.HistoryAggregate, len(histNames))
		for _, n := range histNames {
			history[n] = models.HistoryAggregate{
				Name:        services.DisplayName(n),
				CountAdds:   rapid.IntRange(0, 10).Draw(t, "adds"),
				CountBought: rapid.IntRange(0, 10).Draw(t, "bought"),
				Accepts:     rapid.IntRange(0, 5).Draw(t, "accepts"),
				Rejects:     rapid.IntRange(0, 5).Draw(t, "rejects"),
				LastAddedAt: daysAgo(rapid.IntRange(0, 40).Draw(t, "days")),
			}
		}

		got := e.Generate(services.SuggestionInput{
			Current: items(current...),
			History: history,
			Now:     june,
			Cap:     limit,
		})

		if len(got) > limit {
			t.Fatalf("len = %d, cap %d", len(got), limit)
		}
		onList := make(map[string]bool)
		for _, n := range current {
			onList[services.CanonicalName(n)] = true
		}
		seen := make(map[string]bool)
		for _, c := range got {
			key := services.CanonicalName(c.Item)
			if onList[key] {
				t.Fatalf("suggested %q which is on the list", c.Item)
			}
			if seen[key] {
				t.Fatalf("suggested %q twice", c.Item)
			}
			seen[key] = true
		}
	})
}

func TestSubstitutesFor(t *testing.T) {
	e := services.NewSuggestionEngine(testDatasets())

	got := e.SubstitutesFor("MILK", items("oat milk"))
	want := []string{"Almond Milk", "Soy Milk"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("SubstitutesFor() = %v, want %v", itemNames(got), want)
	}
	for _, c := range got {
		if c.Score != 60 || c.Source != models.SourceSubstitute || c.Reason != "Instead of Milk" {
			t.Errorf("candidate = %+v", c)
		}
	}

	if got := e.SubstitutesFor("widget", nil); got != nil {
		t.Errorf("SubstitutesFor(widget) = %v, want nil", got)
	}
}
