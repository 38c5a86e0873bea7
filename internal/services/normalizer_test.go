package services_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/services"
)

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Milk", "milk"},
		{"  Whole   MILK! ", "whole milk"},
		{"org apples", "organic apples"},
		{"PB", "peanut butter"},
		{"ben & jerry's", "ben & jerry's"},
		{"-eggs-", "eggs"},
		{"chkn brst, bnls", "chicken breast boneless"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := services.CanonicalName(tt.in); got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeItem_Display(t *testing.T) {
	got := services.NormalizeItem("  peanut   BUTTER ")
	if got.Canonical != "peanut butter" {
		t.Errorf("Canonical = %q, want %q", got.Canonical, "peanut butter")
	}
	if got.Display != "Peanut Butter" {
		t.Errorf("Display = %q, want %q", got.Display, "Peanut Butter")
	}
}

func TestCanonicalName_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[A-Za-z0-9 '&!.,\-]{0,40}`).Draw(t, "raw")
		once := services.CanonicalName(raw)
		if twice := services.CanonicalName(once); twice != once {
			t.Fatalf("CanonicalName(%q) = %q, second pass %q", raw, once, twice)
		}
	})
}

func TestCanonicalName_CaseInsensitive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.StringMatching(`[a-z ]{1,20}`).Draw(t, "raw")
		upper := []rune(raw)
		for i, r := range upper {
			if r >= 'a' && r <= 'z' && rapid.Bool().Draw(t, "flip") {
				upper[i] = r - 'a' + 'A'
			}
		}
		if a, b := services.CanonicalName(raw), services.CanonicalName(string(upper)); a != b {
			t.Fatalf("CanonicalName(%q) = %q, CanonicalName(%q) = %q", raw, a, string(upper), b)
		}
	})
}

func TestNormalizer_Category(t *testing.T) {
	n := services.NewNormalizer(nil)
	tests := []struct {
		name string
		want string
	}{
		{"Milk", models.CategoryDairy},
		{"bananas", models.CategoryProduce},
		{"greek yogurt", models.CategoryDairy},
		{"sourdough bread", models.CategoryBakery},
		{"toothpaste", models.CategoryPersonal},
		{"frozen pizza", models.CategoryFrozen},
		{"chips", models.CategorySnacks},
		{"widget", models.CategoryOther},
		{"", models.CategoryOther},
	}
	for _, tt := range tests {
		if got := n.Category(tt.name); got != tt.want {
			t.Errorf("Category(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalizer_CategoryNeverChangesIdentity(t *testing.T) {
	n := services.NewNormalizer(nil)
	a := n.Normalize("Almond Milk")
	b := n.Normalize("almond milk")
	if a != b {
		t.Errorf("Normalize differs by case: %+v vs %+v", a, b)
	}
}
