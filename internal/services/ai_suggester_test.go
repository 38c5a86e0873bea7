package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
)

// fakeGenerator returns a canned completion and records the prompts it saw
type fakeGenerator struct {
	reply  string
	err    error
	system string
	user   string
}

func (g *fakeGenerator) GenerateText(_ context.Context, system, user string) (string, error) {
	g.system = system
	g.user = user
	return g.reply, g.err
}

type fakeSuggester struct {
	picks []models.SuggestionCandidate
	err   error
	calls int
}

func (s *fakeSuggester) Suggest(context.Context, services.SuggestionInput) ([]models.SuggestionCandidate, error) {
	s.calls++
	return s.picks, s.err
}

func TestClaudeSuggester_FiltersAndScores(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n" + `[
		{"item": "Milk", "reason": "already listed"},
		{"item": "Bananas", "reason": "You buy these weekly"},
		{"item": "bananas", "reason": "duplicate"},
		{"item": "Greek Yogurt"},
		{"item": "Honey", "reason": "over cap"}
	]` + "\n```"}
	s := services.NewClaudeSuggester(gen, testDatasets())

	got, err := s.Suggest(context.Background(), services.SuggestionInput{
		Current: items("milk"),
		History: map[string]models.HistoryAggregate{
			"bananas": {Name: "Bananas", CountAdds: 3, CountBought: 2},
		},
		Now: june,
		Cap: 2,
	})
	if err != nil {
		t.Fatalf("Suggest() error: %v", err)
	}

	want := []string{"Bananas", "Greek Yogurt"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Suggest() = %v, want %v", itemNames(got), want)
	}
	for _, c := range got {
		if c.Score != 80 || c.Source != models.SourceAI {
			t.Errorf("candidate = %+v, want score 80 from ai", c)
		}
	}
	if got[1].Reason != "Recommended" {
		t.Errorf("default reason = %q", got[1].Reason)
	}

	if !strings.Contains(gen.system, "up to 2 unique") {
		t.Errorf("system prompt does not carry the cap: %q", gen.system)
	}
	var req struct {
		CurrentList []string `json:"current_list"`
		Month       string   `json:"month"`
		HistoryTop  []struct {
			Name string `json:"name"`
		} `json:"history_top"`
		SeasonalCandidates []services.SeasonalEntry `json:"seasonal_candidates"`
	}
	if err := json.Unmarshal([]byte(gen.user), &req); err != nil {
		t.Fatalf("user prompt is not JSON: %v", err)
	}
	if req.Month != "6" || len(req.CurrentList) != 1 || req.CurrentList[0] != "milk" {
		t.Errorf("request = %+v", req)
	}
	if len(req.HistoryTop) != 1 || req.HistoryTop[0].Name != "Bananas" {
		t.Errorf("history_top = %+v", req.HistoryTop)
	}
	if len(req.SeasonalCandidates) != 3 {
		t.Errorf("seasonal_candidates = %d, want 3", len(req.SeasonalCandidates))
	}
}

func TestClaudeSuggester_Errors(t *testing.T) {
	s := services.NewClaudeSuggester(&fakeGenerator{reply: "sure, here you go"}, testDatasets())
	if _, err := s.Suggest(context.Background(), services.SuggestionInput{Now: june}); err == nil {
		t.Error("expected decode error for prose reply")
	}

	boom := errors.New("boom")
	s = services.NewClaudeSuggester(&fakeGenerator{err: boom}, testDatasets())
	if _, err := s.Suggest(context.Background(), services.SuggestionInput{Now: june}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestSuggestionService_NoSuggesterReturnsHeuristics(t *testing.T) {
	engine := services.NewSuggestionEngine(testDatasets())
	svc := services.NewSuggestionService(engine, nil, 0, nil)
	in := services.SuggestionInput{Current: items("milk"), Now: june, Cap: 4}

	got := svc.Suggest(context.Background(), in)
	want := engine.Generate(in)
	if !equalStrings(itemNames(got), itemNames(want)) {
		t.Errorf("Suggest() = %v, want %v", itemNames(got), itemNames(want))
	}
}

func TestSuggestionService_FallsBackOnFailure(t *testing.T) {
	engine := services.NewSuggestionEngine(testDatasets())
	in := services.SuggestionInput{Now: june, Cap: 3}
	want := itemNames(engine.Generate(in))

	for name, ai := range map[string]*fakeSuggester{
		"error": {err: errors.New("rate limited")},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			svc := services.NewSuggestionService(engine, ai, time.Second, nil)
			got := svc.Suggest(context.Background(), in)
			if !equalStrings(itemNames(got), want) {
				t.Errorf("Suggest() = %v, want %v", itemNames(got), want)
			}
			if ai.calls != 1 {
				t.Errorf("suggester calls = %d, want 1", ai.calls)
			}
		})
	}
}

func TestSuggestionService_AIFirstThenHeuristicFill(t *testing.T) {
	engine := services.NewSuggestionEngine(testDatasets())
	ai := &fakeSuggester{picks: []models.SuggestionCandidate{
		{Item: "Lemonade", Reason: "Hot week", Source: models.SourceAI, Score: 80},
		{Item: "Peaches", Reason: "In season", Source: models.SourceAI, Score: 80},
	}}
	svc := services.NewSuggestionService(engine, ai, time.Second, nil)

	got := svc.Suggest(context.Background(), services.SuggestionInput{Now: june, Cap: 3})

	want := []string{"Lemonade", "Peaches", "Cherries"}
	if !equalStrings(itemNames(got), want) {
		t.Fatalf("Suggest() = %v, want %v", itemNames(got), want)
	}
	if got[1].Source != models.SourceAI {
		t.Errorf("duplicate kept heuristic copy: %+v", got[1])
	}
}
