// Package calculator derives each claimant's share of a bill from the current
// items, claims and bill. Every function here is pure: the same inputs always
// produce the same output and nothing is cached between calls.
package calculator

import (
	"github.com/mmynk/splitclaim/internal/models"
)

// Allocate computes the user's subtotal, tax share, tip share and total.
//
// Each item is split equally among the claims referencing it, so a user's
// share of an item is unit_price / split_count. Tax and tip are prorated by
// the user's share of the whole bill's item subtotal, claimed or not, so
// unclaimed items dilute every claimant's tax and tip.
//
// A nil bill or nil user yields zero totals.
func Allocate(items []models.Item, claims []models.Claim, bill *models.Bill, user *models.User) models.Totals {
	if bill == nil || user == nil {
		return models.Totals{}
	}

	billSubtotal := 0.0
	mySubtotal := 0.0
	for _, item := range items {
		billSubtotal += item.UnitPrice

		count := 0
		mine := false
		for _, c := range claims {
			if c.ItemID != item.ID {
				continue
			}
			count++
			if c.UserID == user.ID {
				mine = true
			}
		}
		// count >= 1 whenever mine is true
		if mine {
			mySubtotal += item.UnitPrice / float64(count)
		}
	}

	return prorate(mySubtotal, billSubtotal, bill)
}

// prorate applies the bill's tax and tip to a claimed subtotal.
func prorate(subtotal, billSubtotal float64, bill *models.Bill) models.Totals {
	ratio := 0.0
	if billSubtotal > 0 {
		ratio = subtotal / billSubtotal
	}
	tax := bill.TaxAmount * ratio
	tip := bill.TipAmount * ratio
	return models.Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Tip:      tip,
		Total:    subtotal + tax + tip,
	}
}

// SplitCount returns the number of claims referencing the item.
func SplitCount(itemID string, claims []models.Claim) int {
	count := 0
	for _, c := range claims {
		if c.ItemID == itemID {
			count++
		}
	}
	return count
}

// ItemShares returns each claimant's implicit share of one item, keyed by user
// ID. Duplicate claims by the same user accumulate. An unclaimed item yields an
// empty map.
func ItemShares(item models.Item, claims []models.Claim) map[string]float64 {
	shares := make(map[string]float64)
	count := SplitCount(item.ID, claims)
	if count == 0 {
		return shares
	}

	perClaim := item.UnitPrice / float64(count)
	for _, c := range claims {
		if c.ItemID == item.ID {
			shares[c.UserID] += perClaim
		}
	}
	return shares
}
