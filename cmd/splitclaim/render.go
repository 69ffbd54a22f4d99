package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/mmynk/splitclaim/internal/calculator"
	"github.com/mmynk/splitclaim/internal/models"
	"github.com/mmynk/splitclaim/internal/snapshot"
)

// render prints the bill, who is on each item, the caller's share and a
// per-person summary.
func render(w io.Writer, s snapshot.Snapshot, user *models.User) {
	if s.Bill == nil {
		fmt.Fprintf(w, "Bill %s: not loaded\n", s.BillID)
		return
	}

	currency := s.Bill.Currency
	fmt.Fprintf(w, "Bill %s [%s]\n", s.Bill.ID, s.Bill.Status)
	switch s.Bill.Status {
	case models.BillStatusProcessing:
		fmt.Fprintln(w, "Receipt is still being processed; items may be incomplete")
	case models.BillStatusError:
		fmt.Fprintln(w, "Receipt could not be processed; items may be missing")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tNAME\tPRICE\tCLAIMED BY")
	for _, item := range s.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			item.ID, item.Name, money(item.UnitPrice, currency), claimants(item.ID, s.Claims, user))
	}
	tw.Flush()

	fmt.Fprintf(w, "Tax %s  Tip %s\n", money(s.Bill.TaxAmount, currency), money(s.Bill.TipAmount, currency))

	if user != nil {
		t := s.Totals
		fmt.Fprintf(w, "You (%s): subtotal %s + tax %s + tip %s = %s\n",
			user.Name, money(t.Subtotal, currency), money(t.Tax, currency), money(t.Tip, currency), money(t.Total, currency))
	} else {
		fmt.Fprintln(w, "Not registered: run `splitclaim register <name>` to see your share")
	}

	all := calculator.AllocateAll(s.Items, s.Claims, s.Bill)
	if len(all) == 0 {
		return
	}
	people := make([]*calculator.Claimant, 0, len(all))
	for _, c := range all {
		people = append(people, c)
	}
	sort.Slice(people, func(i, j int) bool {
		if people[i].UserName != people[j].UserName {
			return people[i].UserName < people[j].UserName
		}
		return people[i].UserID < people[j].UserID
	})

	fmt.Fprintln(w, "Everyone:")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range people {
		fmt.Fprintf(tw, "  %s\t%s\n", displayName(c.UserName, c.UserID), money(c.Totals.Total, currency))
	}
	tw.Flush()
}

func claimants(itemID string, claims []models.Claim, user *models.User) string {
	var names []string
	for _, c := range claims {
		if c.ItemID != itemID {
			continue
		}
		name := displayName(c.UserName, c.UserID)
		if user != nil && c.UserID == user.ID {
			name += " (you)"
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func money(amount float64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%.2f", amount)
	}
	return fmt.Sprintf("%.2f %s", amount, currency)
}
