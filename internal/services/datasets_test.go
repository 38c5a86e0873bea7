package services_test

import (
	"testing"

	"github.com/foxxcyber/voicecart/internal/services"
)

func TestLoadDatasets(t *testing.T) {
	ds, err := services.LoadDatasets()
	if err != nil {
		t.Fatalf("LoadDatasets() error: %v", err)
	}
	for month := 1; month <= 12; month++ {
		if len(ds.Seasonal[month]) == 0 {
			t.Errorf("no seasonal items for month %d", month)
		}
	}
	for key := range ds.Substitutes {
		if key != services.CanonicalName(key) {
			t.Errorf("substitute key %q is not canonical", key)
		}
	}
	if got := ds.ExactCategories["milk"]; got != "dairy" {
		t.Errorf("ExactCategories[milk] = %q, want dairy", got)
	}
}
