package liststore_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/foxxcyber/voicecart/internal/liststore"
	"github.com/foxxcyber/voicecart/internal/models"
)

var fixedNow = time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

// testTransformer issues sequential ids and a fixed clock
func testTransformer() liststore.Transformer {
	n := 0
	return liststore.Transformer{
		NewID: func() string {
			n++
			return fmt.Sprintf("item-%d", n)
		},
		Now:        func() time.Time { return fixedNow },
		Categorize: func(string) string { return models.CategoryOther },
	}
}

func TestAdd_DedupsByCanonicalName(t *testing.T) {
	tr := testTransformer()

	items, change, err := tr.Add(nil, "Milk", 1)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if change.Kind != models.ChangeCreated || change.Item.Name != "Milk" {
		t.Errorf("first change = %+v", change)
	}

	items, change, err = tr.Add(items, "  milk ", 1)
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1", len(items))
	}
	if items[0].Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", items[0].Quantity)
	}
	if change.Kind != models.ChangeUpdated || change.Delta != 1 {
		t.Errorf("second change = %+v", change)
	}
	if items[0].ID != "item-1" {
		t.Errorf("ID = %q, want the existing id", items[0].ID)
	}
}

func TestAdd_DoesNotMutateInput(t *testing.T) {
	tr := testTransformer()
	items, _, _ := tr.Add(nil, "eggs", 2)
	before := items[0].Quantity

	_, _, _ = tr.Add(items, "eggs", 5)
	if items[0].Quantity != before {
		t.Errorf("input mutated: Quantity = %d, want %d", items[0].Quantity, before)
	}
}

func TestAdd_EmptyName(t *testing.T) {
	tr := testTransformer()
	if _, _, err := tr.Add(nil, " ?! ", 1); !errors.Is(err, liststore.ErrEmptyItemName) {
		t.Errorf("err = %v, want ErrEmptyItemName", err)
	}
}

func TestAdd_ClampsQuantity(t *testing.T) {
	tr := testTransformer()
	items, _, _ := tr.Add(nil, "bread", -4)
	if items[0].Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", items[0].Quantity)
	}
}

func TestRemove(t *testing.T) {
	tr := testTransformer()
	items, _, _ := tr.Add(nil, "apples", 5)

	items, change, err := tr.Remove(items, "APPLES", 2)
	if err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if change.Kind != models.ChangeUpdated || items[0].Quantity != 3 || change.Delta != -2 {
		t.Errorf("partial remove: change %+v, quantity %d", change, items[0].Quantity)
	}

	items, change, err = tr.Remove(items, "apples", 3)
	if err != nil {
		t.Fatalf("Remove() error: %v", err)
	}
	if change.Kind != models.ChangeDeleted || len(items) != 0 {
		t.Errorf("full remove: change %+v, len %d", change, len(items))
	}
	if change.Item == nil || change.Item.Name != "Apples" {
		t.Errorf("removed item = %+v", change.Item)
	}

	if _, _, err := tr.Remove(items, "apples", 1); !errors.Is(err, liststore.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestDecQty_FloorIsOne(t *testing.T) {
	tr := testTransformer()
	items, _, _ := tr.Add(nil, "soap", 2)
	id := items[0].ID

	items, change, _ := tr.DecQty(items, id)
	if items[0].Quantity != 1 || change.Kind != models.ChangeUpdated {
		t.Fatalf("first dec: quantity %d, change %+v", items[0].Quantity, change)
	}

	items, change, err := tr.DecQty(items, id)
	if err != nil {
		t.Fatalf("DecQty() error: %v", err)
	}
	if items[0].Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", items[0].Quantity)
	}
	if change.Changed() {
		t.Errorf("change at floor = %+v, want no change", change)
	}
}

func TestIncQtyAndToggle(t *testing.T) {
	tr := testTransformer()
	items, _, _ := tr.Add(nil, "rice", 1)
	id := items[0].ID

	items, _, _ = tr.IncQty(items, id)
	if items[0].Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", items[0].Quantity)
	}

	items, change, _ := tr.ToggleBought(items, id)
	if !items[0].Bought || !change.BecameBought {
		t.Errorf("toggle on: bought %v, change %+v", items[0].Bought, change)
	}
	items, change, _ = tr.ToggleBought(items, id)
	if items[0].Bought || change.BecameBought {
		t.Errorf("toggle off: bought %v, change %+v", items[0].Bought, change)
	}

	if _, _, err := tr.IncQty(items, "missing"); !errors.Is(err, liststore.ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestDeleteByID(t *testing.T) {
	tr := testTransformer()
	items, _, _ := tr.Add(nil, "tea", 4)
	items, _, _ = tr.Add(items, "coffee", 1)

	items, change, err := tr.DeleteByID(items, "item-1")
	if err != nil {
		t.Fatalf("DeleteByID() error: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Coffee" {
		t.Errorf("items = %+v", items)
	}
	if change.Delta != -4 {
		t.Errorf("Delta = %d, want -4", change.Delta)
	}
}

func TestMerge(t *testing.T) {
	tr := testTransformer()
	local := []models.ListItem{
		{ID: "a", Name: "Milk", Quantity: 1, Category: "dairy"},
		{ID: "b", Name: "Bread", Quantity: 1, Category: "bakery"},
	}
	remote := []models.ListItem{
		{ID: "a", Name: "Milk", Quantity: 3, Category: "dairy"},
		{ID: "c", Name: "Eggs", Quantity: 12, Category: "dairy"},
	}

	out, change := tr.Merge(local, remote)
	if change.Kind != models.ChangeMerged || change.Origin != models.OriginRemote {
		t.Errorf("change = %+v", change)
	}
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(out), out)
	}
	byID := make(map[string]models.ListItem)
	for _, it := range out {
		byID[it.ID] = it
	}
	if byID["a"].Quantity != 3 {
		t.Errorf("remote update not applied: %+v", byID["a"])
	}
	if _, ok := byID["b"]; !ok {
		t.Error("local-only item was dropped")
	}
	if byID["c"].Quantity != 12 {
		t.Errorf("remote-only item not added: %+v", byID["c"])
	}
	if local[0].Quantity != 1 {
		t.Error("input mutated")
	}
}

func TestMerge_NameCollisionRemoteWins(t *testing.T) {
	tr := testTransformer()
	local := []models.ListItem{{ID: "local-milk", Name: "Milk", Quantity: 2}}
	remote := []models.ListItem{{ID: "remote-milk", Name: "milk", Quantity: 5}}

	out, _ := tr.Merge(local, remote)
	if len(out) != 1 || out[0].ID != "remote-milk" {
		t.Errorf("out = %+v, want only remote-milk", out)
	}
	if out[0].Category != models.CategoryOther {
		t.Errorf("Category = %q, want inferred category", out[0].Category)
	}
}

func TestMerge_NameCollisionFoldsLocalEdits(t *testing.T) {
	tr := testTransformer()
	local := []models.ListItem{{ID: "local-milk", Name: "Milk", Quantity: 7, Bought: true}}
	remote := []models.ListItem{{ID: "remote-milk", Name: "Milk", Quantity: 2}}

	out, _ := tr.Merge(local, remote)
	if len(out) != 1 || out[0].ID != "remote-milk" {
		t.Fatalf("out = %+v, want only remote-milk", out)
	}
	if out[0].Quantity != 7 || !out[0].Bought {
		t.Errorf("survivor = %+v, want quantity 7 and bought", out[0])
	}
}

func TestMerge_Unchanged(t *testing.T) {
	tr := testTransformer()
	local := []models.ListItem{{ID: "a", Name: "Milk", Quantity: 1, Category: "dairy"}}

	_, change := tr.Merge(local, local)
	if change.Changed() {
		t.Errorf("change = %+v, want none", change)
	}
	_, change = tr.Merge(local, []models.ListItem{{Name: "no id"}, {ID: "x", Name: "!!"}})
	if change.Changed() {
		t.Errorf("invalid remote items changed the list: %+v", change)
	}
}

func TestGroupByCategory(t *testing.T) {
	items := []models.ListItem{
		{ID: "1", Name: "Chips", Category: models.CategorySnacks},
		{ID: "2", Name: "Apples", Category: models.CategoryProduce},
		{ID: "3", Name: "Widget"},
		{ID: "4", Name: "Pears", Category: models.CategoryProduce},
		{ID: "5", Name: "Candles", Category: "decor"},
	}

	groups := liststore.GroupByCategory(items)
	want := []string{models.CategoryProduce, models.CategorySnacks, models.CategoryOther, "decor"}
	if len(groups) != len(want) {
		t.Fatalf("groups = %+v", groups)
	}
	for i, g := range groups {
		if g.Category != want[i] {
			t.Errorf("group %d = %q, want %q", i, g.Category, want[i])
		}
	}
	if len(groups[0].Items) != 2 {
		t.Errorf("produce items = %d, want 2", len(groups[0].Items))
	}
}

func TestRemoveThenAddRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tr := testTransformer()
		name := rapid.StringMatching(`[a-z]{2,8}( [a-z]{2,8})?`).Draw(t, "name")
		q := rapid.IntRange(1, 50).Draw(t, "q")

		items, _, err := tr.Remove(nil, name, 1)
		if !errors.Is(err, liststore.ErrItemNotFound) {
			t.Fatalf("Remove on empty list err = %v", err)
		}
		items, _, err = tr.Add(items, name, q)
		if err != nil {
			t.Fatalf("Add() error: %v", err)
		}
		if len(items) != 1 || items[0].Quantity != q {
			t.Fatalf("items = %+v, want one item with quantity %d", items, q)
		}
	})
}

func TestAtMostOneItemPerName(t *testing.T) {
	names := []string{"milk", "Milk", "MILK ", "eggs", "oj", "orange juice", "bread"}
	rapid.Check(t, func(t *rapid.T) {
		tr := testTransformer()
		var items []models.ListItem
		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			name := rapid.SampledFrom(names).Draw(t, "name")
			qty := rapid.IntRange(1, 4).Draw(t, "qty")
			if rapid.Bool().Draw(t, "add") {
				items, _, _ = tr.Add(items, name, qty)
			} else {
				items, _, _ = tr.Remove(items, name, qty)
			}
		}

		seen := make(map[string]bool)
		for _, it := range items {
			key := it.Name
			if seen[key] {
				t.Fatalf("duplicate item %q in %+v", key, items)
			}
			seen[key] = true
			if it.Quantity < 1 {
				t.Fatalf("quantity %d < 1", it.Quantity)
			}
		}
	})
}
