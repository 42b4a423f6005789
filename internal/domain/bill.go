package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillType selects how bill payment instances are derived.
type BillType string

const (
	// BillTypeFlat is a fixed recurring bill cycling on calendar months.
	BillTypeFlat BillType = "flat"
	// BillTypeCreditCard is a statement-cycle bill whose amount is computed
	// from card spend between billing dates.
	BillTypeCreditCard BillType = "credit_card"
)

// BillStatus marks whether a bill template still generates instances.
type BillStatus string

const (
	BillStatusActive   BillStatus = "active"
	BillStatusInactive BillStatus = "inactive"
)

// PaymentStatus is the lifecycle of one generated bill payment instance.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Bill is a recurring bill template. Instances are derived from it by the
// cycle generator; the template itself carries no per-cycle state beyond
// Cycle, which records the last cycle key generated for it.
type Bill struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	DueDay     int             `json:"dueDay"`
	BillingDay int             `json:"billingDay,omitempty"`
	Category   string          `json:"category"`
	Status     BillStatus      `json:"status"`
	BillType   BillType        `json:"billType"`
	Cycle      string          `json:"cycle,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`

	// AccountID links credit-card bills to the account whose spend is summed.
	AccountID string `json:"accountId,omitempty"`
}

// BillPayment is one generated instance of a bill for one cycle. The
// (BillID, Cycle) pair is unique: the generator never produces a second
// instance for the same cycle no matter how often it runs.
type BillPayment struct {
	ID      string          `json:"id"`
	BillID  string          `json:"billId"`
	Name    string          `json:"name"`
	Cycle   string          `json:"cycle"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"dueDate"`
	Status  PaymentStatus   `json:"status"`

	// PaidDate and TransactionID are set when a settling transaction is
	// matched, either by the auditor or a manual status update.
	PaidDate      time.Time `json:"paidDate,omitzero"`
	TransactionID string    `json:"transactionId,omitempty"`
}

// CycleID returns the compound uniqueness key of the instance.
func (p *BillPayment) CycleID() string {
	return p.BillID + "|" + p.Cycle
}
