package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType distinguishes how an account behaves.
type AccountType string

const (
	AccountTypeBank   AccountType = "bank"
	AccountTypeCash   AccountType = "cash"
	AccountTypeCredit AccountType = "credit"
)

// Account holds a running balance maintained incrementally: after any
// sequence of mutations the balance equals the initial balance plus the sum
// of signed amounts posted against the account. It is never recomputed from
// scratch outside of a forced refresh.
type Account struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    AccountType     `json:"type"`
	Balance decimal.Decimal `json:"balance"`

	// BillingDay and DueDay only apply to credit accounts; zero means unset.
	BillingDay int `json:"billingDay,omitempty"`
	DueDay     int `json:"dueDay,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	IsSecret  bool      `json:"isSecret"`
}

// Category groups transactions and drives keyword auto-categorization.
// Name is the unique key.
type Category struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords,omitempty"`
	Color    string   `json:"color,omitempty"`
	Icon     string   `json:"icon,omitempty"`
}

// FriendBalance is derived, never stored: the fold of all transactions
// carrying a counterparty name. Positive means the friend owes the owner.
type FriendBalance struct {
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}
