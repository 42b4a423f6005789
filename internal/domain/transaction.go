package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents one ledger entry. The sign of Amount is the single
// source of truth for classification: negative is an expense, positive is
// income. Category and Type are denormalized hints kept for display and
// auto-categorization; they never override the sign.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	AccountID   string          `json:"accountId"`
	Type        string          `json:"type"`
	CreatedAt   time.Time       `json:"createdAt"`

	// Friend is the optional counterparty name; transactions carrying one are
	// folded into the derived friend ledger.
	Friend string `json:"friend,omitempty"`

	// BillID links the transaction to the bill payment it settled, if any.
	// It lives in the local cache only; the remote table has no column for it.
	BillID string `json:"billId,omitempty"`

	// Synced reports whether the row is known to exist in the remote store.
	Synced bool `json:"synced"`
}

// IsExpense reports whether the transaction reduces the account balance.
func (t *Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// PeriodKey returns the YYYY-MM key of the period the transaction falls in.
func (t *Transaction) PeriodKey() string {
	return PeriodKeyFor(t.Date)
}

// PeriodKeyFor derives the YYYY-MM period key for a date.
func PeriodKeyFor(d time.Time) string {
	return d.Format("2006-01")
}
