package remote

import (
	"context"
	"strings"
	"time"

	"github.com/SrirammananS/finday/internal/domain"
)

// ListTransactions reads the flat transactions table and merges in any
// legacy per-month sub-tables ("Mon YYYY"), deduplicating by id. Rows that
// fail to decode are skipped and logged rather than failing the load.
func (a *Adapter) ListTransactions(ctx context.Context) ([]*domain.Transaction, error) {
	rows, err := a.readTable(ctx, TableTransactions)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []*domain.Transaction
	appendRows := func(rows [][]interface{}, source string) {
		for _, row := range rows {
			if len(row) == 0 || cellString(row, 0) == "" {
				continue // blank row left by a delete
			}
			tx, err := decodeTransaction(row)
			if err != nil {
				a.log.Warn().Err(err).Str("table", source).Msg("Skipping undecodable transaction row")
				continue
			}
			if seen[tx.ID] {
				continue
			}
			seen[tx.ID] = true
			out = append(out, tx)
		}
	}
	appendRows(rows, TableTransactions)

	monthly, err := a.monthlyTableTitles(ctx)
	if err != nil {
		return nil, err
	}
	for _, title := range monthly {
		rows, err := a.readRowsOf(ctx, title)
		if err != nil {
			return nil, err
		}
		appendRows(rows, title)
	}

	return out, nil
}

// monthlyTableTitles returns sheet titles matching the legacy "Mon YYYY"
// per-month transaction layout, with or without the system marker.
func (a *Adapter) monthlyTableTitles(ctx context.Context) ([]string, error) {
	if _, err := a.resolveNaming(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var titles []string
	for title := range a.known {
		name := strings.TrimPrefix(title, tableMarker)
		if _, err := time.Parse("Jan 2006", name); err == nil {
			titles = append(titles, title)
		}
	}
	return titles, nil
}

// AppendTransaction writes a new transaction row.
func (a *Adapter) AppendTransaction(ctx context.Context, t *domain.Transaction) error {
	return a.appendRow(ctx, TableTransactions, encodeTransaction(t))
}

// UpdateTransaction overwrites the row matching the transaction id.
func (a *Adapter) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	return a.updateRowByID(ctx, TableTransactions, t.ID, encodeTransaction(t))
}

// DeleteTransaction removes the row matching id.
func (a *Adapter) DeleteTransaction(ctx context.Context, id string) error {
	return a.deleteRowByID(ctx, TableTransactions, id)
}

// ListAccounts reads every account row.
func (a *Adapter) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := a.readTable(ctx, TableAccounts)
	if err != nil {
		return nil, err
	}

	var out []*domain.Account
	for _, row := range rows {
		if len(row) == 0 || cellString(row, 0) == "" {
			continue
		}
		acc, err := decodeAccount(row)
		if err != nil {
			a.log.Warn().Err(err).Msg("Skipping undecodable account row")
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

// AppendAccount writes a new account row.
func (a *Adapter) AppendAccount(ctx context.Context, acc *domain.Account) error {
	return a.appendRow(ctx, TableAccounts, encodeAccount(acc))
}

// UpdateAccount overwrites the row matching the account id.
func (a *Adapter) UpdateAccount(ctx context.Context, acc *domain.Account) error {
	return a.updateRowByID(ctx, TableAccounts, acc.ID, encodeAccount(acc))
}

// DeleteAccount removes the row matching id.
func (a *Adapter) DeleteAccount(ctx context.Context, id string) error {
	return a.deleteRowByID(ctx, TableAccounts, id)
}

// ListCategories reads every category row. Name is the key column.
func (a *Adapter) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	rows, err := a.readTable(ctx, TableCategories)
	if err != nil {
		return nil, err
	}

	var out []*domain.Category
	for _, row := range rows {
		if len(row) == 0 || cellString(row, 0) == "" {
			continue
		}
		cat, err := decodeCategory(row)
		if err != nil {
			a.log.Warn().Err(err).Msg("Skipping undecodable category row")
			continue
		}
		out = append(out, cat)
	}
	return out, nil
}

// AppendCategory writes a new category row.
func (a *Adapter) AppendCategory(ctx context.Context, c *domain.Category) error {
	return a.appendRow(ctx, TableCategories, encodeCategory(c))
}

// UpdateCategory overwrites the row matching the category name.
func (a *Adapter) UpdateCategory(ctx context.Context, c *domain.Category) error {
	return a.updateRowByID(ctx, TableCategories, c.Name, encodeCategory(c))
}

// DeleteCategory removes the row matching name.
func (a *Adapter) DeleteCategory(ctx context.Context, name string) error {
	return a.deleteRowByID(ctx, TableCategories, name)
}

// ListBills reads every bill template row.
func (a *Adapter) ListBills(ctx context.Context) ([]*domain.Bill, error) {
	rows, err := a.readTable(ctx, TableBills)
	if err != nil {
		return nil, err
	}

	var out []*domain.Bill
	for _, row := range rows {
		if len(row) == 0 || cellString(row, 0) == "" {
			continue
		}
		b, err := decodeBill(row)
		if err != nil {
			a.log.Warn().Err(err).Msg("Skipping undecodable bill row")
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// AppendBill writes a new bill row.
func (a *Adapter) AppendBill(ctx context.Context, b *domain.Bill) error {
	return a.appendRow(ctx, TableBills, encodeBill(b))
}

// UpdateBill overwrites the row matching the bill id.
func (a *Adapter) UpdateBill(ctx context.Context, b *domain.Bill) error {
	return a.updateRowByID(ctx, TableBills, b.ID, encodeBill(b))
}

// DeleteBill removes the row matching id.
func (a *Adapter) DeleteBill(ctx context.Context, id string) error {
	return a.deleteRowByID(ctx, TableBills, id)
}

// ListBillPayments reads every generated bill payment instance.
func (a *Adapter) ListBillPayments(ctx context.Context) ([]*domain.BillPayment, error) {
	rows, err := a.readTable(ctx, TableBillPayments)
	if err != nil {
		return nil, err
	}

	var out []*domain.BillPayment
	for _, row := range rows {
		if len(row) == 0 || cellString(row, 0) == "" {
			continue
		}
		p, err := decodeBillPayment(row)
		if err != nil {
			a.log.Warn().Err(err).Msg("Skipping undecodable bill payment row")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// AppendBillPayment writes a new bill payment row.
func (a *Adapter) AppendBillPayment(ctx context.Context, p *domain.BillPayment) error {
	return a.appendRow(ctx, TableBillPayments, encodeBillPayment(p))
}

// UpdateBillPayment overwrites the row matching the payment id.
func (a *Adapter) UpdateBillPayment(ctx context.Context, p *domain.BillPayment) error {
	return a.updateRowByID(ctx, TableBillPayments, p.ID, encodeBillPayment(p))
}

// GetConfig reads one key from the Config table. The second return reports
// whether the key exists.
func (a *Adapter) GetConfig(ctx context.Context, key string) (string, bool, error) {
	rows, err := a.readTable(ctx, TableConfig)
	if err != nil {
		return "", false, err
	}

	for _, row := range rows {
		if cellString(row, 0) == key {
			return cellString(row, 1), true, nil
		}
	}
	return "", false, nil
}

// SetConfig writes a key-value pair, updating in place when the key exists.
func (a *Adapter) SetConfig(ctx context.Context, key, value string) error {
	title, err := a.ensureTable(ctx, TableConfig)
	if err != nil {
		return err
	}

	sheetRow, err := a.locateRow(ctx, title, key)
	if err != nil {
		return err
	}

	row := []interface{}{key, value}
	if sheetRow == 0 {
		return a.appendRow(ctx, TableConfig, row)
	}
	return a.updateRowByID(ctx, TableConfig, key, row)
}
