// Package bills derives periodic bill payment instances from bill templates
// and transaction history, and auto-detects payments by matching
// transactions against pending instances.
//
// All functions are pure over their inputs. Generation is idempotent by
// (billID, cycleKey): re-running it over the same state produces nothing
// new, so a lost advisory-lock race cannot double-generate.
package bills

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SrirammananS/finday/internal/domain"
)

// Config holds the auto-detection heuristics. The tolerance and window are
// best-effort knobs, not guarantees; callers may tune them.
type Config struct {
	// AmountTolerance is the relative variance allowed when matching a
	// transaction amount against a pending instance.
	AmountTolerance decimal.Decimal

	// DetectWindowBefore and DetectWindowAfter bound the search window in
	// days around the due date.
	DetectWindowBefore int
	DetectWindowAfter  int
}

// DefaultConfig returns the stock heuristics: 10% variance, [-15,+20] days.
func DefaultConfig() Config {
	return Config{
		AmountTolerance:    decimal.NewFromFloat(0.10),
		DetectWindowBefore: 15,
		DetectWindowAfter:  20,
	}
}

// CycleKey identifies the billing period a bill is currently in. Flat bills
// cycle on calendar months. Credit-card bills anchor to the billing day: on
// or after it the cycle belongs to the current month, before it to the
// previous month's statement.
func CycleKey(b *domain.Bill, now time.Time) string {
	return domain.PeriodKeyFor(cycleAnchor(b, now))
}

// cycleAnchor returns the billing date the current cycle anchors to.
func cycleAnchor(b *domain.Bill, now time.Time) time.Time {
	if b.BillType != domain.BillTypeCreditCard || b.BillingDay == 0 {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}

	anchor := time.Date(now.Year(), now.Month(), b.BillingDay, 0, 0, 0, 0, now.Location())
	if now.Day() < b.BillingDay {
		anchor = anchor.AddDate(0, -1, 0)
	}
	return anchor
}

// CycleWindow returns the half-open statement window [previous billing
// date, current billing date) the cycle's spend is summed over.
func CycleWindow(b *domain.Bill, now time.Time) (start, end time.Time) {
	end = cycleAnchor(b, now)
	start = end.AddDate(0, -1, 0)
	return start, end
}

// DueDate computes when the current cycle's payment is due. When the due
// day is numerically less than the billing day the statement crosses a
// month boundary and the due date rolls into the next month.
func DueDate(b *domain.Bill, now time.Time) time.Time {
	anchor := cycleAnchor(b, now)
	due := time.Date(anchor.Year(), anchor.Month(), b.DueDay, 0, 0, 0, 0, now.Location())
	if b.BillType == domain.BillTypeCreditCard && b.DueDay < b.BillingDay {
		due = due.AddDate(0, 1, 0)
	}
	return due
}

// CardCycleAmount sums the absolute value of expense transactions on the
// bill's linked account whose description matches the bill's first name
// token, dated within [start, end).
func CardCycleAmount(b *domain.Bill, txs []*domain.Transaction, start, end time.Time) decimal.Decimal {
	token := firstToken(b.Name)
	total := decimal.Zero

	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		if b.AccountID != "" && tx.AccountID != b.AccountID {
			continue
		}
		if tx.Date.Before(start) || !tx.Date.Before(end) {
			continue
		}
		if token != "" && !containsFold(tx.Description, token) {
			continue
		}
		total = total.Add(tx.Amount.Abs())
	}
	return total
}

// Generate derives the payment instances due for the current cycle of every
// active bill. It never produces a second instance for a (billID, cycleKey)
// already present in existing, nor a duplicate within the same call.
//
// Credit-card bills with zero computed spend are skipped entirely: no
// signal yet.
func Generate(templates []*domain.Bill, existing []*domain.BillPayment, txs []*domain.Transaction, now time.Time, cfg Config) []*domain.BillPayment {
	seen := make(map[string]bool, len(existing))
	for _, p := range existing {
		seen[p.CycleID()] = true
	}

	var out []*domain.BillPayment
	for _, b := range templates {
		if b.Status != domain.BillStatusActive {
			continue
		}

		key := CycleKey(b, now)
		cycleID := b.ID + "|" + key
		if seen[cycleID] {
			continue
		}

		amount := b.Amount
		if b.BillType == domain.BillTypeCreditCard {
			start, end := CycleWindow(b, now)
			amount = CardCycleAmount(b, txs, start, end)
			if amount.IsZero() {
				continue
			}
		}

		seen[cycleID] = true
		out = append(out, &domain.BillPayment{
			ID:      uuid.NewString(),
			BillID:  b.ID,
			Name:    b.Name,
			Cycle:   key,
			Amount:  amount,
			DueDate: DueDate(b, now),
			Status:  domain.PaymentStatusPending,
		})
	}
	return out
}

// firstToken returns the first whitespace-delimited token of a bill name,
// the key used for description matching.
func firstToken(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
