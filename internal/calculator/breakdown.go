package calculator

import (
	"math"

	"github.com/mmynk/splitclaim/internal/models"
)

// driftTolerance absorbs float noise between the stored percentage and 1/count.
const driftTolerance = 1e-6

// Claimant is one user's line in the bill summary.
type Claimant struct {
	UserID   string
	UserName string
	Totals   models.Totals
}

// AllocateAll computes totals for every user that appears in claims.
// Each entry equals Allocate for that user. Returns nil when bill is nil.
func AllocateAll(items []models.Item, claims []models.Claim, bill *models.Bill) map[string]*Claimant {
	if bill == nil {
		return nil
	}

	billSubtotal := 0.0
	subtotals := make(map[string]float64)
	names := make(map[string]string)
	for _, c := range claims {
		if _, seen := names[c.UserID]; !seen {
			names[c.UserID] = c.UserName
			subtotals[c.UserID] = 0
		}
	}

	for _, item := range items {
		billSubtotal += item.UnitPrice

		count := SplitCount(item.ID, claims)
		if count == 0 {
			continue
		}
		// A user holding several rows on one item is charged once, as in Allocate.
		seen := make(map[string]bool)
		for _, c := range claims {
			if c.ItemID != item.ID || seen[c.UserID] {
				continue
			}
			seen[c.UserID] = true
			subtotals[c.UserID] += item.UnitPrice / float64(count)
		}
	}

	result := make(map[string]*Claimant, len(subtotals))
	for userID, subtotal := range subtotals {
		result[userID] = &Claimant{
			UserID:   userID,
			UserName: names[userID],
			Totals:   prorate(subtotal, billSubtotal, bill),
		}
	}
	return result
}

// Drift is a claim whose stored percentage disagrees with the equal split
// implied by the current claim count.
type Drift struct {
	ClaimID  string
	ItemID   string
	UserID   string
	Stored   float64
	Expected float64
}

// PercentageDrift reports claims whose Percentage is not 1/split-count.
// Claims on items outside the given list are ignored.
func PercentageDrift(items []models.Item, claims []models.Claim) []Drift {
	var drifts []Drift
	for _, item := range items {
		expected := Rebalance(SplitCount(item.ID, claims))
		for _, c := range claims {
			if c.ItemID != item.ID {
				continue
			}
			if math.Abs(c.Percentage-expected) > driftTolerance {
				drifts = append(drifts, Drift{
					ClaimID:  c.ID,
					ItemID:   c.ItemID,
					UserID:   c.UserID,
					Stored:   c.Percentage,
					Expected: expected,
				})
			}
		}
	}
	return drifts
}

// Rebalance returns the equal-split fraction for count claimants, or 0 when
// there are none.
func Rebalance(count int) float64 {
	if count <= 0 {
		return 0
	}
	return 1.0 / float64(count)
}
