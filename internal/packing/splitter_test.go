package packing

import (
	"errors"
	"testing"

	"github.com/okoshkina/benefit-system/internal/model"
)

func testOrders() []model.Order {
	return []model.Order{
		{
			ID:         1,
			TotalCents: 5000,
			Items: []model.LineItem{
				{Product: "milk", Category: "Dairy", Quantity: 2, PriceCents: 1000},
				{Product: "soap", Category: "Hygiene", Quantity: 3, PriceCents: 1000},
			},
		},
		{
			ID:         2,
			TotalCents: 3000,
			Items: []model.LineItem{
				{Product: "bread", Category: "Bakery", Quantity: 3, PriceCents: 1000},
			},
		},
		{
			ID:         3,
			TotalCents: 2000,
			Items: []model.LineItem{
				{Product: "cheese", Category: "Dairy", Subcategory: "Hard Cheese", Quantity: 1, PriceCents: 2000},
			},
		},
	}
}

func countLines(lists []model.PackingList) int {
	n := 0
	for _, l := range lists {
		n += len(l.Lines)
	}
	return n
}

func TestSplit_NoPackers(t *testing.T) {
	_, err := Split(testOrders(), StrategyNone, nil, Options{})
	if !errors.Is(err, ErrNoPackers) {
		t.Fatalf("expected ErrNoPackers, got %v", err)
	}
}

func TestSplit_UnknownStrategy(t *testing.T) {
	_, err := Split(testOrders(), Strategy("zigzag"), []string{"alice"}, Options{})
	if !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestSplit_None(t *testing.T) {
	lists, err := Split(testOrders(), StrategyNone, []string{"alice", "bob"}, Options{})
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if len(lists) != 1 {
		t.Fatalf("lists = %d, want 1", len(lists))
	}
	if lists[0].Packer != "alice" {
		t.Fatalf("packer = %q, want alice", lists[0].Packer)
	}
	if len(lists[0].Lines) != 4 {
		t.Fatalf("lines = %d, want 4", len(lists[0].Lines))
	}
}

func TestSplit_FiftyFifty_BalancesByTotal(t *testing.T) {
	lists, err := Split(testOrders(), StrategyFiftyFifty, []string{"alice", "bob"}, Options{})
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("lists = %d, want 2", len(lists))
	}

	// Самый тяжёлый заказ (5000) уходит одному, два оставшихся
	// (3000 + 2000) — другому.
	var totals []int64
	for _, l := range lists {
		var sum int64
		for _, it := range l.Lines {
			sum += it.TotalCents()
		}
		totals = append(totals, sum)
	}
	if totals[0] != 5000 || totals[1] != 5000 {
		t.Fatalf("totals = %v, want [5000 5000]", totals)
	}

	if got := countLines(lists); got != 4 {
		t.Fatalf("total lines = %d, want 4", got)
	}
}

func TestSplit_RoundRobin_WeightByItems(t *testing.T) {
	lists, err := Split(testOrders(), StrategyRoundRobin, []string{"alice", "bob"}, Options{WeightByItems: true})
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}

	// Веса заказов в единицах товара: 5, 3, 1. Тяжёлый уходит первому,
	// остальные — второму.
	counts := make(map[string]int)
	for _, l := range lists {
		for _, it := range l.Lines {
			counts[l.Packer] += it.Quantity
		}
	}
	if counts["alice"] != 5 || counts["bob"] != 4 {
		t.Fatalf("item counts = %v, want alice:5 bob:4", counts)
	}
}

func TestSplit_ByCategory_Partition(t *testing.T) {
	owners := map[string][]string{
		"alice": {"Dairy"},
		"bob":   {"Hygiene", "Bakery"},
	}

	lists, err := Split(testOrders(), StrategyByCategory, []string{"alice", "bob"}, Options{CategoryOwners: owners})
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}

	// Каждая позиция исходных заказов попадает ровно в один список.
	if got := countLines(lists); got != 4 {
		t.Fatalf("total lines = %d, want 4", got)
	}

	for _, l := range lists {
		for _, it := range l.Lines {
			switch l.Packer {
			case "alice":
				if it.Category != "Dairy" {
					t.Fatalf("alice got %q from category %q", it.Product, it.Category)
				}
			case "bob":
				if it.Category != "Hygiene" && it.Category != "Bakery" {
					t.Fatalf("bob got %q from category %q", it.Product, it.Category)
				}
			}
		}
	}
}

func TestSplit_ByCategory_SubcategoryOwnership(t *testing.T) {
	owners := map[string][]string{
		"alice": {"Dairy"},
		"bob":   {"Hard Cheese"},
	}

	lists, err := Split(testOrders(), StrategyByCategory, []string{"alice", "bob"}, Options{CategoryOwners: owners})
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}

	// Закрепление подкатегории сильнее закрепления категории.
	for _, it := range lists[1].Lines {
		if it.Product == "cheese" {
			return
		}
	}
	t.Fatalf("hard cheese must go to its subcategory owner, lists: %+v", lists)
}

func TestSplit_ByCategory_UnownedGoesFirst(t *testing.T) {
	owners := map[string][]string{
		"bob": {"Dairy"},
	}

	lists, err := Split(testOrders(), StrategyByCategory, []string{"alice", "bob"}, Options{CategoryOwners: owners})
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}

	for _, it := range lists[0].Lines {
		if it.Category == "Dairy" {
			t.Fatalf("dairy is owned by bob, alice got %q", it.Product)
		}
	}
	// Никем не закреплённые категории достаются первому упаковщику.
	found := false
	for _, it := range lists[0].Lines {
		if it.Category == "Bakery" || it.Category == "Hygiene" {
			found = true
		}
	}
	if !found {
		t.Fatalf("unowned categories must go to the first packer")
	}
}

func TestSummarize(t *testing.T) {
	lines := []model.LineItem{
		{Product: "milk", Category: "Dairy", Quantity: 2},
		{Product: "milk", Category: "Dairy", Quantity: 1},
		{Product: "soap", Category: "Hygiene", Quantity: 3},
	}

	summary := Summarize(lines)
	if summary["Dairy"]["milk"] != 3 {
		t.Fatalf("milk quantity = %d, want 3", summary["Dairy"]["milk"])
	}
	if summary["Hygiene"]["soap"] != 3 {
		t.Fatalf("soap quantity = %d, want 3", summary["Hygiene"]["soap"])
	}
}

func TestAggregate_MatchesAllLines(t *testing.T) {
	lists, err := Split(testOrders(), StrategyFiftyFifty, []string{"alice", "bob"}, Options{})
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}

	total := Aggregate(lists)
	if total["Dairy"]["milk"] != 2 || total["Dairy"]["cheese"] != 1 {
		t.Fatalf("unexpected aggregate: %+v", total)
	}
}
