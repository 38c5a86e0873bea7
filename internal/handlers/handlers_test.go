package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/voicecart/internal/config"
	"github.com/foxxcyber/voicecart/internal/handlers"
	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/session"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    *handlers.Meta  `json:"meta"`
}

type testServer struct {
	app   *fiber.App
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour, DefaultLocale: "en", SuggestionCap: 4}
	registry := session.NewRegistry(func(string) (session.Config, error) {
		return session.Config{}, nil
	})
	t.Cleanup(registry.Close)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	handlers.New(registry, cfg, nil).Register(app)

	srv := &testServer{app: app}
	var auth handlers.AuthResponse
	srv.do(t, "POST", "/api/auth/anonymous", nil, fiber.StatusCreated, &auth)
	if auth.Token == "" || auth.UserID == "" {
		t.Fatalf("anonymous sign-in returned %+v", auth)
	}
	srv.token = auth.Token
	return srv
}

// do sends a request and decodes the envelope's data into out
func (s *testServer) do(t *testing.T, method, path string, body interface{}, wantStatus int, out interface{}) envelope {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s status = %d, want %d: %s", method, path, resp.StatusCode, wantStatus, raw)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("%s %s: decode: %v: %s", method, path, err, raw)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
	return env
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("app.Test() error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestUtteranceFlow(t *testing.T) {
	srv := newTestServer(t)

	var out models.Outcome
	srv.do(t, "POST", "/api/utterances", models.UtteranceRequest{Text: "add 2 milk"}, fiber.StatusOK, &out)
	if out.Status != models.StatusApplied || out.Change.Item == nil || out.Change.Item.Quantity != 2 {
		t.Fatalf("outcome = %+v", out)
	}

	srv.do(t, "POST", "/api/utterances", models.UtteranceRequest{Text: "remove chips"}, fiber.StatusOK, &out)
	if out.Status != models.StatusNoMatch {
		t.Errorf("remove chips = %s, want no_match", out.Status)
	}

	srv.do(t, "POST", "/api/utterances", models.UtteranceRequest{Text: "  "}, fiber.StatusBadRequest, nil)

	var items []models.ListItem
	env := srv.do(t, "GET", "/api/list", nil, fiber.StatusOK, &items)
	if len(items) != 1 || items[0].Name != "Milk" || env.Meta == nil || env.Meta.Total != 1 {
		t.Errorf("list = %+v, meta = %+v", items, env.Meta)
	}
}

func TestItemMutations(t *testing.T) {
	srv := newTestServer(t)

	var added handlers.ItemMutationResponse
	srv.do(t, "POST", "/api/list/items", models.AddListItemRequest{Name: "Chips", Quantity: 2}, fiber.StatusCreated, &added)
	id := added.Change.Item.ID

	var res handlers.ItemMutationResponse
	srv.do(t, "POST", "/api/list/items/"+id+"/inc", nil, fiber.StatusOK, &res)
	if res.Items[0].Quantity != 3 {
		t.Errorf("after inc = %d, want 3", res.Items[0].Quantity)
	}
	srv.do(t, "POST", "/api/list/items/"+id+"/toggle", nil, fiber.StatusOK, &res)
	if !res.Items[0].Bought {
		t.Error("toggle did not mark bought")
	}
	srv.do(t, "POST", "/api/list/items/missing/dec", nil, fiber.StatusNotFound, nil)
	srv.do(t, "POST", "/api/list/items", models.AddListItemRequest{Name: "@@"}, fiber.StatusUnprocessableEntity, nil)

	srv.do(t, "DELETE", "/api/list/items/"+id, nil, fiber.StatusOK, &res)
	if len(res.Items) != 0 || len(res.Substitutes) == 0 {
		t.Errorf("delete = %+v", res)
	}

	var groups []models.CategoryGroup
	srv.do(t, "POST", "/api/list/items", models.AddListItemRequest{Name: "bananas"}, fiber.StatusCreated, nil)
	srv.do(t, "GET", "/api/list?group=category", nil, fiber.StatusOK, &groups)
	if len(groups) != 1 || groups[0].Category != models.CategoryProduce {
		t.Errorf("groups = %+v", groups)
	}
}

func TestSuggestionEndpoints(t *testing.T) {
	srv := newTestServer(t)

	var suggestions []models.SuggestionCandidate
	env := srv.do(t, "GET", "/api/suggestions", nil, fiber.StatusOK, &suggestions)
	if env.Meta == nil || env.Meta.Limit != 4 || len(suggestions) > 4 {
		t.Errorf("suggestions = %+v, meta = %+v", suggestions, env.Meta)
	}

	var subs []models.SuggestionCandidate
	srv.do(t, "GET", "/api/suggestions/substitutes?item=milk", nil, fiber.StatusOK, &subs)
	if len(subs) == 0 {
		t.Error("no substitutes for milk")
	}
	srv.do(t, "GET", "/api/suggestions/substitutes", nil, fiber.StatusBadRequest, nil)

	srv.do(t, "POST", "/api/suggestions/accept", models.SuggestionFeedbackRequest{Item: "oat milk"}, fiber.StatusOK, nil)
	srv.do(t, "POST", "/api/suggestions/reject", models.SuggestionFeedbackRequest{Item: "soy milk"}, fiber.StatusOK, nil)

	var hist map[string]models.HistoryAggregate
	srv.do(t, "GET", "/api/history", nil, fiber.StatusOK, &hist)
	if hist["oat milk"].Accepts != 1 || hist["soy milk"].Rejects != 1 {
		t.Errorf("history = %+v", hist)
	}

	srv.do(t, "DELETE", "/api/history", nil, fiber.StatusOK, nil)
	hist = nil
	srv.do(t, "GET", "/api/history", nil, fiber.StatusOK, &hist)
	if len(hist) != 0 {
		t.Errorf("history after reset = %+v", hist)
	}
}

func TestSyncWithoutRemote(t *testing.T) {
	srv := newTestServer(t)
	srv.do(t, "POST", "/api/sync/start", nil, fiber.StatusServiceUnavailable, nil)

	var st models.SyncStatus
	srv.do(t, "GET", "/api/sync/status", nil, fiber.StatusOK, &st)
	if st.State != models.SyncDisconnected {
		t.Errorf("state = %s", st.State)
	}
}

func TestArchiveEndpoints(t *testing.T) {
	srv := newTestServer(t)
	var archive models.Archive
	srv.do(t, "POST", "/api/archives", models.ArchiveRequest{Reason: "weekly"}, fiber.StatusCreated, &archive)
	if archive.ID == "" || archive.Reason != "weekly" {
		t.Errorf("archive = %+v", archive)
	}

	var archives []models.Archive
	srv.do(t, "GET", "/api/archives", nil, fiber.StatusOK, &archives)
	if archives == nil {
		t.Error("archives = nil, want empty list")
	}

	srv.do(t, "GET", "/api/archives/"+archive.ID+"/url", nil, fiber.StatusServiceUnavailable, nil)
}

func TestRequiresAuth(t *testing.T) {
	srv := newTestServer(t)
	srv.token = ""
	srv.do(t, "GET", "/api/list", nil, fiber.StatusUnauthorized, nil)
}
