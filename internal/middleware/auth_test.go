package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/foxxcyber/voicecart/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour}
}

func TestIssueAndParseToken(t *testing.T) {
	cfg := testConfig()
	token, err := IssueToken(cfg, "user-42", true)
	if err != nil {
		t.Fatalf("IssueToken() error: %v", err)
	}

	claims, err := ParseToken(cfg, token)
	if err != nil {
		t.Fatalf("ParseToken() error: %v", err)
	}
	if claims.UserID != "user-42" || !claims.Anonymous || claims.Subject != "user-42" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	cfg := testConfig()
	token, _ := IssueToken(cfg, "user-42", false)

	other := testConfig()
	other.JWTSecret = "different"
	if _, err := ParseToken(other, token); err == nil {
		t.Error("token signed with another secret accepted")
	}

	expired := testConfig()
	expired.JWTExpiry = -time.Minute
	old, _ := IssueToken(expired, "user-42", false)
	if _, err := ParseToken(cfg, old); err == nil {
		t.Error("expired token accepted")
	}

	if _, err := ParseToken(cfg, "not.a.token"); err == nil {
		t.Error("garbage accepted")
	}
}

func TestAuthRequired(t *testing.T) {
	cfg := testConfig()
	app := fiber.New()
	app.Get("/me", AuthRequired(cfg), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})

	token, _ := IssueToken(cfg, "user-7", true)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", fiber.StatusUnauthorized},
		{"wrong scheme", "Basic abc", fiber.StatusUnauthorized},
		{"bad token", "Bearer nope", fiber.StatusUnauthorized},
		{"valid", "Bearer " + token, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
