package remote

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SrirammananS/finday/internal/domain"
)

// Logical table names. The adapter resolves each to its on-sheet variant
// (with or without the system marker prefix).
const (
	TableTransactions = "Transactions"
	TableAccounts     = "Accounts"
	TableCategories   = "Categories"
	TableBills        = "Bills"
	TableBillPayments = "BillPayments"
	TableConfig       = "Config"
)

// Canonical header rows, written when a table is created. AccountID on Bills
// is a trailing addition; legacy stores without the column decode with an
// empty account link.
var tableHeaders = map[string][]string{
	TableTransactions: {"ID", "Date", "Description", "Amount", "Category", "AccountID", "Type", "CreatedAt", "Friend"},
	TableAccounts:     {"ID", "Name", "Type", "Balance", "BillingDay", "DueDay", "CreatedAt", "IsSecret"},
	TableCategories:   {"Name", "Keywords", "Color", "Icon"},
	TableBills:        {"ID", "Name", "Amount", "DueDay", "BillingDay", "Category", "Status", "BillType", "Cycle", "CreatedAt", "AccountID"},
	TableBillPayments: {"ID", "BillID", "Name", "Cycle", "Amount", "DueDate", "Status", "PaidDate", "TransactionID"},
	TableConfig:       {"Key", "Value"},
}

const (
	dateFormat      = "2006-01-02"
	timestampFormat = time.RFC3339
)

func encodeTransaction(t *domain.Transaction) []interface{} {
	return []interface{}{
		t.ID,
		t.Date.Format(dateFormat),
		t.Description,
		t.Amount.String(),
		t.Category,
		t.AccountID,
		t.Type,
		t.CreatedAt.Format(timestampFormat),
		t.Friend,
	}
}

func decodeTransaction(row []interface{}) (*domain.Transaction, error) {
	if cellString(row, 0) == "" {
		return nil, fmt.Errorf("decodeTransaction: empty id")
	}

	date, err := cellDate(row, 1)
	if err != nil {
		return nil, fmt.Errorf("decodeTransaction: date: %w", err)
	}
	amount, err := cellDecimal(row, 3)
	if err != nil {
		return nil, fmt.Errorf("decodeTransaction: amount: %w", err)
	}

	return &domain.Transaction{
		ID:          cellString(row, 0),
		Date:        date,
		Description: cellString(row, 2),
		Amount:      amount,
		Category:    cellString(row, 4),
		AccountID:   cellString(row, 5),
		Type:        cellString(row, 6),
		CreatedAt:   cellTimestamp(row, 7),
		Friend:      cellString(row, 8),
		Synced:      true,
	}, nil
}

func encodeAccount(a *domain.Account) []interface{} {
	return []interface{}{
		a.ID,
		a.Name,
		string(a.Type),
		a.Balance.String(),
		strconv.Itoa(a.BillingDay),
		strconv.Itoa(a.DueDay),
		a.CreatedAt.Format(timestampFormat),
		strconv.FormatBool(a.IsSecret),
	}
}

func decodeAccount(row []interface{}) (*domain.Account, error) {
	if cellString(row, 0) == "" {
		return nil, fmt.Errorf("decodeAccount: empty id")
	}

	balance, err := cellDecimal(row, 3)
	if err != nil {
		return nil, fmt.Errorf("decodeAccount: balance: %w", err)
	}

	return &domain.Account{
		ID:         cellString(row, 0),
		Name:       cellString(row, 1),
		Type:       domain.AccountType(cellString(row, 2)),
		Balance:    balance,
		BillingDay: cellInt(row, 4),
		DueDay:     cellInt(row, 5),
		CreatedAt:  cellTimestamp(row, 6),
		IsSecret:   cellBool(row, 7),
	}, nil
}

func encodeCategory(c *domain.Category) []interface{} {
	return []interface{}{
		c.Name,
		strings.Join(c.Keywords, ","),
		c.Color,
		c.Icon,
	}
}

func decodeCategory(row []interface{}) (*domain.Category, error) {
	name := cellString(row, 0)
	if name == "" {
		return nil, fmt.Errorf("decodeCategory: empty name")
	}

	var keywords []string
	for _, kw := range strings.Split(cellString(row, 1), ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}

	return &domain.Category{
		Name:     name,
		Keywords: keywords,
		Color:    cellString(row, 2),
		Icon:     cellString(row, 3),
	}, nil
}

func encodeBill(b *domain.Bill) []interface{} {
	return []interface{}{
		b.ID,
		b.Name,
		b.Amount.String(),
		strconv.Itoa(b.DueDay),
		strconv.Itoa(b.BillingDay),
		b.Category,
		string(b.Status),
		string(b.BillType),
		b.Cycle,
		b.CreatedAt.Format(timestampFormat),
		b.AccountID,
	}
}

func decodeBill(row []interface{}) (*domain.Bill, error) {
	if cellString(row, 0) == "" {
		return nil, fmt.Errorf("decodeBill: empty id")
	}

	amount, err := cellDecimal(row, 2)
	if err != nil {
		return nil, fmt.Errorf("decodeBill: amount: %w", err)
	}

	return &domain.Bill{
		ID:         cellString(row, 0),
		Name:       cellString(row, 1),
		Amount:     amount,
		DueDay:     cellInt(row, 3),
		BillingDay: cellInt(row, 4),
		Category:   cellString(row, 5),
		Status:     domain.BillStatus(cellString(row, 6)),
		BillType:   domain.BillType(cellString(row, 7)),
		Cycle:      cellString(row, 8),
		CreatedAt:  cellTimestamp(row, 9),
		AccountID:  cellString(row, 10),
	}, nil
}

func encodeBillPayment(p *domain.BillPayment) []interface{} {
	paid := ""
	if !p.PaidDate.IsZero() {
		paid = p.PaidDate.Format(dateFormat)
	}

	return []interface{}{
		p.ID,
		p.BillID,
		p.Name,
		p.Cycle,
		p.Amount.String(),
		p.DueDate.Format(dateFormat),
		string(p.Status),
		paid,
		p.TransactionID,
	}
}

func decodeBillPayment(row []interface{}) (*domain.BillPayment, error) {
	if cellString(row, 0) == "" {
		return nil, fmt.Errorf("decodeBillPayment: empty id")
	}

	amount, err := cellDecimal(row, 4)
	if err != nil {
		return nil, fmt.Errorf("decodeBillPayment: amount: %w", err)
	}
	due, err := cellDate(row, 5)
	if err != nil {
		return nil, fmt.Errorf("decodeBillPayment: due date: %w", err)
	}

	p := &domain.BillPayment{
		ID:            cellString(row, 0),
		BillID:        cellString(row, 1),
		Name:          cellString(row, 2),
		Cycle:         cellString(row, 3),
		Amount:        amount,
		DueDate:       due,
		Status:        domain.PaymentStatus(cellString(row, 6)),
		TransactionID: cellString(row, 8),
	}
	if raw := cellString(row, 7); raw != "" {
		if paid, err := time.Parse(dateFormat, raw); err == nil {
			p.PaidDate = paid
		}
	}
	return p, nil
}

// Cell readers. The API returns unformatted values, so a cell may arrive as
// string, float64 or bool depending on how the sheet stores it.

func cellString(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func cellDecimal(row []interface{}, i int) (decimal.Decimal, error) {
	raw := cellString(row, i)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func cellInt(row []interface{}, i int) int {
	n, _ := strconv.Atoi(cellString(row, i))
	return n
}

func cellBool(row []interface{}, i int) bool {
	b, _ := strconv.ParseBool(cellString(row, i))
	return b
}

// sheetSerialEpoch is day zero of the spreadsheet serial date system.
// Date cells read with UNFORMATTED_VALUE arrive as float64 days since
// this epoch, with the fraction carrying the time of day.
var sheetSerialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

func serialToTime(v float64) time.Time {
	days := int(v)
	frac := v - float64(days)
	return sheetSerialEpoch.AddDate(0, 0, days).
		Add(time.Duration(frac * 24 * float64(time.Hour)))
}

func cellDate(row []interface{}, i int) (time.Time, error) {
	if i < len(row) {
		if v, ok := row[i].(float64); ok {
			return sheetSerialEpoch.AddDate(0, 0, int(v)), nil
		}
	}
	return time.Parse(dateFormat, cellString(row, i))
}

func cellTimestamp(row []interface{}, i int) time.Time {
	if i < len(row) {
		if v, ok := row[i].(float64); ok {
			return serialToTime(v)
		}
	}
	ts, err := time.Parse(timestampFormat, cellString(row, i))
	if err != nil {
		return time.Time{}
	}
	return ts
}
