package bills

import (
	"time"

	"github.com/SrirammananS/finday/internal/domain"
)

// Match links a pending bill payment to the transaction that settled it.
type Match struct {
	PaymentID     string
	TransactionID string
	PaidDate      time.Time
}

// DetectPayments scans pending instances for settling transactions. A
// transaction qualifies when it is an expense on the bill's linked account,
// dated within the configured window around the due date, and either its
// absolute amount is within the tolerance of the instance amount or its
// description contains the bill's first name token (case-insensitive).
// The first qualifying transaction wins; a transaction settles at most one
// instance per pass.
func DetectPayments(payments []*domain.BillPayment, templates []*domain.Bill, txs []*domain.Transaction, cfg Config) []Match {
	byID := make(map[string]*domain.Bill, len(templates))
	for _, b := range templates {
		byID[b.ID] = b
	}

	claimed := make(map[string]bool)
	var out []Match

	for _, p := range payments {
		if p.Status != domain.PaymentStatusPending {
			continue
		}
		bill := byID[p.BillID]

		windowStart := p.DueDate.AddDate(0, 0, -cfg.DetectWindowBefore)
		windowEnd := p.DueDate.AddDate(0, 0, cfg.DetectWindowAfter)

		for _, tx := range txs {
			if claimed[tx.ID] || !tx.IsExpense() {
				continue
			}
			if tx.Date.Before(windowStart) || tx.Date.After(windowEnd) {
				continue
			}
			if bill != nil && bill.AccountID != "" && tx.AccountID != bill.AccountID {
				continue
			}
			if !amountWithinTolerance(tx, p, cfg) && !nameMatches(tx, p) {
				continue
			}

			claimed[tx.ID] = true
			out = append(out, Match{
				PaymentID:     p.ID,
				TransactionID: tx.ID,
				PaidDate:      tx.Date,
			})
			break
		}
	}
	return out
}

func amountWithinTolerance(tx *domain.Transaction, p *domain.BillPayment, cfg Config) bool {
	if p.Amount.IsZero() {
		return false
	}
	diff := tx.Amount.Abs().Sub(p.Amount).Abs()
	return diff.LessThanOrEqual(p.Amount.Mul(cfg.AmountTolerance))
}

func nameMatches(tx *domain.Transaction, p *domain.BillPayment) bool {
	token := firstToken(p.Name)
	return token != "" && containsFold(tx.Description, token)
}
