package calculator

import (
	"math"
	"testing"

	"github.com/mmynk/splitclaim/internal/models"
)

func claim(itemID, userID string) models.Claim {
	return models.Claim{ID: itemID + "-" + userID, ItemID: itemID, UserID: userID, UserName: userID}
}

func TestAllocate(t *testing.T) {
	alice := &models.User{ID: "alice", Name: "Alice"}

	tests := []struct {
		name         string
		items        []models.Item
		claims       []models.Claim
		bill         *models.Bill
		user         *models.User
		validateFunc func(t *testing.T, got models.Totals)
	}{
		{
			name: "tax and tip diluted by unclaimed item",
			items: []models.Item{
				{ID: "i1", Name: "Curry", UnitPrice: 100},
				{ID: "i2", Name: "Noodles", UnitPrice: 100},
			},
			claims: []models.Claim{claim("i1", "alice")},
			bill:   &models.Bill{ID: "b1", TaxAmount: 20, TipAmount: 10},
			user:   alice,
			validateFunc: func(t *testing.T, got models.Totals) {
				// ratio = 100/200 = 0.5 -> tax 10, tip 5, total 115
				if math.Abs(got.Subtotal-100) > 0.01 {
					t.Errorf("subtotal = %v, want 100", got.Subtotal)
				}
				if math.Abs(got.Tax-10) > 0.01 {
					t.Errorf("tax = %v, want 10", got.Tax)
				}
				if math.Abs(got.Tip-5) > 0.01 {
					t.Errorf("tip = %v, want 5", got.Tip)
				}
				if math.Abs(got.Total-115) > 0.01 {
					t.Errorf("total = %v, want 115", got.Total)
				}
			},
		},
		{
			name:  "shared item split three ways",
			items: []models.Item{{ID: "i1", Name: "Pizza", UnitPrice: 90}},
			claims: []models.Claim{
				claim("i1", "alice"),
				claim("i1", "bob"),
				claim("i1", "carol"),
			},
			bill: &models.Bill{ID: "b1", TaxAmount: 9},
			user: alice,
			validateFunc: func(t *testing.T, got models.Totals) {
				if math.Abs(got.Subtotal-30) > 0.01 {
					t.Errorf("subtotal = %v, want 30", got.Subtotal)
				}
				if math.Abs(got.Tax-3) > 0.01 {
					t.Errorf("tax = %v, want 3", got.Tax)
				}
				if math.Abs(got.Total-33) > 0.01 {
					t.Errorf("total = %v, want 33", got.Total)
				}
			},
		},
		{
			name:   "no user yields zero totals",
			items:  []models.Item{{ID: "i1", UnitPrice: 50}},
			claims: []models.Claim{claim("i1", "alice")},
			bill:   &models.Bill{ID: "b1", TaxAmount: 5, TipAmount: 5},
			user:   nil,
			validateFunc: func(t *testing.T, got models.Totals) {
				if got != (models.Totals{}) {
					t.Errorf("got %+v, want zero totals", got)
				}
			},
		},
		{
			name:   "no bill yields zero totals",
			items:  []models.Item{{ID: "i1", UnitPrice: 50}},
			claims: []models.Claim{claim("i1", "alice")},
			bill:   nil,
			user:   alice,
			validateFunc: func(t *testing.T, got models.Totals) {
				if got != (models.Totals{}) {
					t.Errorf("got %+v, want zero totals", got)
				}
			},
		},
		{
			name: "zero priced items do not divide by zero",
			items: []models.Item{
				{ID: "i1", UnitPrice: 0},
				{ID: "i2", UnitPrice: 0},
			},
			claims: []models.Claim{claim("i1", "alice")},
			bill:   &models.Bill{ID: "b1", TaxAmount: 7, TipAmount: 3},
			user:   alice,
			validateFunc: func(t *testing.T, got models.Totals) {
				if got.Tax != 0 || got.Tip != 0 || got.Total != 0 {
					t.Errorf("got %+v, want zero totals", got)
				}
				if math.IsNaN(got.Total) {
					t.Error("total is NaN")
				}
			},
		},
		{
			name:   "user with no claims owes nothing",
			items:  []models.Item{{ID: "i1", UnitPrice: 40}},
			claims: []models.Claim{claim("i1", "bob")},
			bill:   &models.Bill{ID: "b1", TaxAmount: 4, TipAmount: 2},
			user:   alice,
			validateFunc: func(t *testing.T, got models.Totals) {
				if got != (models.Totals{}) {
					t.Errorf("got %+v, want zero totals", got)
				}
			},
		},
		{
			name: "claims on other bills are ignored",
			items: []models.Item{
				{ID: "i1", UnitPrice: 60},
			},
			claims: []models.Claim{claim("i1", "alice"), claim("other", "alice")},
			bill:   &models.Bill{ID: "b1"},
			user:   alice,
			validateFunc: func(t *testing.T, got models.Totals) {
				if math.Abs(got.Subtotal-60) > 0.01 {
					t.Errorf("subtotal = %v, want 60", got.Subtotal)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allocate(tt.items, tt.claims, tt.bill, tt.user)
			tt.validateFunc(t, got)
		})
	}
}

func TestAllocate_Idempotent(t *testing.T) {
	items := []models.Item{
		{ID: "i1", UnitPrice: 33.33},
		{ID: "i2", UnitPrice: 17.17},
		{ID: "i3", UnitPrice: 9.99},
	}
	claims := []models.Claim{
		claim("i1", "alice"), claim("i1", "bob"), claim("i1", "carol"),
		claim("i2", "alice"),
	}
	bill := &models.Bill{ID: "b1", TaxAmount: 4.21, TipAmount: 6.66}
	user := &models.User{ID: "alice"}

	first := Allocate(items, claims, bill, user)
	second := Allocate(items, claims, bill, user)
	if first != second {
		t.Errorf("Allocate not idempotent: %+v != %+v", first, second)
	}
}

func TestItemShares(t *testing.T) {
	item := models.Item{ID: "i1", UnitPrice: 90}
	claims := []models.Claim{claim("i1", "alice"), claim("i1", "bob"), claim("i1", "carol"), claim("i2", "dave")}

	shares := ItemShares(item, claims)
	if len(shares) != 3 {
		t.Fatalf("expected 3 shares, got %d", len(shares))
	}

	sum := 0.0
	for user, share := range shares {
		if math.Abs(share-30) > 0.01 {
			t.Errorf("%s share = %v, want 30", user, share)
		}
		sum += share
	}
	if math.Abs(sum-item.UnitPrice) > 1e-9 {
		t.Errorf("sum of shares = %v, want %v", sum, item.UnitPrice)
	}

	if got := ItemShares(models.Item{ID: "lonely", UnitPrice: 10}, claims); len(got) != 0 {
		t.Errorf("expected no shares for unclaimed item, got %v", got)
	}
}

func TestSplitCount(t *testing.T) {
	claims := []models.Claim{claim("i1", "alice"), claim("i1", "bob"), claim("i2", "alice")}
	if got := SplitCount("i1", claims); got != 2 {
		t.Errorf("SplitCount(i1) = %d, want 2", got)
	}
	if got := SplitCount("i3", claims); got != 0 {
		t.Errorf("SplitCount(i3) = %d, want 0", got)
	}
}
