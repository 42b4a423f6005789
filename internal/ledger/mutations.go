package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SrirammananS/finday/internal/domain"
)

// guardPeriodLocked rejects mutations dated inside a closed period before
// any side effect happens. Caller holds mu.
func (o *Orchestrator) guardPeriodLocked(date time.Time) error {
	period := domain.PeriodKeyFor(date)
	if o.closed[period] {
		return fmt.Errorf("%w: %s", domain.ErrClosedPeriod, period)
	}
	return nil
}

// AddTransaction applies a new transaction optimistically: balance and
// in-memory state first, local cache second, remote write last. On remote
// failure the optimistic state stays and the classified error is returned;
// the transaction remains unsynced until a later write succeeds.
func (o *Orchestrator) AddTransaction(ctx context.Context, tx *domain.Transaction) error {
	o.mu.Lock()
	if err := o.guardPeriodLocked(tx.Date); err != nil {
		o.mu.Unlock()
		return err
	}

	acc, ok := o.accounts[tx.AccountID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: account %q: %w", domain.ErrValidation, tx.AccountID, domain.ErrNotFound)
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = o.now()
	}
	if tx.Category == "" {
		tx.Category = o.categorizeLocked(tx.Description)
	}
	tx.Synced = false

	acc.Balance = acc.Balance.Add(tx.Amount)
	o.transactions = append(o.transactions, tx)
	o.mu.Unlock()

	if err := o.cache.PutTransactionWithAccounts(ctx, tx, acc); err != nil {
		o.revertAdd(tx)
		return fmt.Errorf("AddTransaction: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.AppendTransaction(ctx, tx); err != nil {
		o.log.Warn().Err(err).Str("transaction_id", tx.ID).Msg("Remote append failed, keeping local state")
		return fmt.Errorf("AddTransaction: remote: %w", err)
	}

	o.mu.Lock()
	tx.Synced = true
	o.mu.Unlock()
	if err := o.cache.PutTransaction(ctx, tx); err != nil {
		return fmt.Errorf("AddTransaction: cache synced flag: %w", err)
	}
	return nil
}

// revertAdd undoes an optimistic add whose cache write failed.
func (o *Orchestrator) revertAdd(tx *domain.Transaction) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, t := range o.transactions {
		if t.ID == tx.ID {
			o.transactions = append(o.transactions[:i], o.transactions[i+1:]...)
			break
		}
	}
	if acc, ok := o.accounts[tx.AccountID]; ok {
		acc.Balance = acc.Balance.Sub(tx.Amount)
	}
}

// UpdateTransaction replaces an existing transaction, adjusting the running
// balances of the affected accounts by the delta. Both the old and the new
// date are guarded against closed periods.
func (o *Orchestrator) UpdateTransaction(ctx context.Context, updated *domain.Transaction) error {
	o.mu.Lock()
	var old *domain.Transaction
	idx := -1
	for i, t := range o.transactions {
		if t.ID == updated.ID {
			old, idx = t, i
			break
		}
	}
	if old == nil {
		o.mu.Unlock()
		return fmt.Errorf("UpdateTransaction %q: %w", updated.ID, domain.ErrNotFound)
	}
	if err := o.guardPeriodLocked(old.Date); err != nil {
		o.mu.Unlock()
		return err
	}
	if err := o.guardPeriodLocked(updated.Date); err != nil {
		o.mu.Unlock()
		return err
	}

	if oldAcc, ok := o.accounts[old.AccountID]; ok {
		oldAcc.Balance = oldAcc.Balance.Sub(old.Amount)
	}
	newAcc, ok := o.accounts[updated.AccountID]
	if !ok {
		// restore before rejecting
		if oldAcc, ok := o.accounts[old.AccountID]; ok {
			oldAcc.Balance = oldAcc.Balance.Add(old.Amount)
		}
		o.mu.Unlock()
		return fmt.Errorf("%w: account %q: %w", domain.ErrValidation, updated.AccountID, domain.ErrNotFound)
	}
	newAcc.Balance = newAcc.Balance.Add(updated.Amount)

	updated.CreatedAt = old.CreatedAt
	updated.Synced = false
	o.transactions[idx] = updated
	touched := []*domain.Account{newAcc}
	if old.AccountID != updated.AccountID {
		if oldAcc, ok := o.accounts[old.AccountID]; ok {
			touched = append(touched, oldAcc)
		}
	}
	o.mu.Unlock()

	if err := o.cache.PutTransactionWithAccounts(ctx, updated, touched...); err != nil {
		return fmt.Errorf("UpdateTransaction: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.UpdateTransaction(ctx, updated); err != nil {
		o.log.Warn().Err(err).Str("transaction_id", updated.ID).Msg("Remote update failed, keeping local state")
		return fmt.Errorf("UpdateTransaction: remote: %w", err)
	}

	o.mu.Lock()
	updated.Synced = true
	o.mu.Unlock()
	if err := o.cache.PutTransaction(ctx, updated); err != nil {
		return fmt.Errorf("UpdateTransaction: cache synced flag: %w", err)
	}
	return nil
}

// DeleteTransaction removes locally first and then remotely. Deletion is
// the one mutation requiring rollback: when the remote delete fails, the
// record is restored unchanged and the error surfaces as a delete conflict.
func (o *Orchestrator) DeleteTransaction(ctx context.Context, id string) error {
	o.mu.Lock()
	var tx *domain.Transaction
	idx := -1
	for i, t := range o.transactions {
		if t.ID == id {
			tx, idx = t, i
			break
		}
	}
	if tx == nil {
		o.mu.Unlock()
		return fmt.Errorf("DeleteTransaction %q: %w", id, domain.ErrNotFound)
	}
	if err := o.guardPeriodLocked(tx.Date); err != nil {
		o.mu.Unlock()
		return err
	}

	o.transactions = append(o.transactions[:idx], o.transactions[idx+1:]...)
	acc := o.accounts[tx.AccountID]
	if acc != nil {
		acc.Balance = acc.Balance.Sub(tx.Amount)
	}
	o.mu.Unlock()

	var touched []*domain.Account
	if acc != nil {
		touched = append(touched, acc)
	}
	if err := o.cache.DeleteTransactionWithAccounts(ctx, id, touched...); err != nil {
		o.restoreTransaction(tx, idx)
		return fmt.Errorf("DeleteTransaction: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.DeleteTransaction(ctx, id); err != nil {
		o.restoreTransaction(tx, idx)
		_ = o.cache.PutTransactionWithAccounts(ctx, tx, touched...)
		o.log.Warn().Err(err).Str("transaction_id", id).Msg("Remote delete failed, restored locally")
		return fmt.Errorf("%w: transaction %s: %v", domain.ErrConflictOnDelete, id, err)
	}
	return nil
}

// restoreTransaction reinserts a removed transaction at its original
// position and re-applies its balance contribution.
func (o *Orchestrator) restoreTransaction(tx *domain.Transaction, idx int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if idx < 0 || idx > len(o.transactions) {
		idx = len(o.transactions)
	}
	o.transactions = append(o.transactions[:idx],
		append([]*domain.Transaction{tx}, o.transactions[idx:]...)...)
	if acc, ok := o.accounts[tx.AccountID]; ok {
		acc.Balance = acc.Balance.Add(tx.Amount)
	}
}

// AddAccount creates an account.
func (o *Orchestrator) AddAccount(ctx context.Context, acc *domain.Account) error {
	if acc.Name == "" {
		return fmt.Errorf("%w: account name required", domain.ErrValidation)
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = o.now()
	}

	o.mu.Lock()
	o.accounts[acc.ID] = acc
	o.mu.Unlock()

	if err := o.cache.PutAccount(ctx, acc); err != nil {
		return fmt.Errorf("AddAccount: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.AppendAccount(ctx, acc); err != nil {
		return fmt.Errorf("AddAccount: remote: %w", err)
	}
	return nil
}

// UpdateAccount replaces an account's fields. The balance passed in wins;
// callers normally mutate everything but the balance.
func (o *Orchestrator) UpdateAccount(ctx context.Context, acc *domain.Account) error {
	o.mu.Lock()
	if _, ok := o.accounts[acc.ID]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("UpdateAccount %q: %w", acc.ID, domain.ErrNotFound)
	}
	o.accounts[acc.ID] = acc
	o.mu.Unlock()

	if err := o.cache.PutAccount(ctx, acc); err != nil {
		return fmt.Errorf("UpdateAccount: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.UpdateAccount(ctx, acc); err != nil {
		return fmt.Errorf("UpdateAccount: remote: %w", err)
	}
	return nil
}

// DeleteAccount removes an account, restoring it when the remote delete
// fails. Transactions referencing it are left in place.
func (o *Orchestrator) DeleteAccount(ctx context.Context, id string) error {
	o.mu.Lock()
	acc, ok := o.accounts[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("DeleteAccount %q: %w", id, domain.ErrNotFound)
	}
	delete(o.accounts, id)
	o.mu.Unlock()

	if err := o.cache.DeleteAccount(ctx, id); err != nil {
		o.mu.Lock()
		o.accounts[id] = acc
		o.mu.Unlock()
		return fmt.Errorf("DeleteAccount: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.DeleteAccount(ctx, id); err != nil {
		o.mu.Lock()
		o.accounts[id] = acc
		o.mu.Unlock()
		_ = o.cache.PutAccount(ctx, acc)
		return fmt.Errorf("%w: account %s: %v", domain.ErrConflictOnDelete, id, err)
	}
	return nil
}

// AddCategory creates a category keyed by name.
func (o *Orchestrator) AddCategory(ctx context.Context, c *domain.Category) error {
	if c.Name == "" {
		return fmt.Errorf("%w: category name required", domain.ErrValidation)
	}

	o.mu.Lock()
	if _, exists := o.categories[c.Name]; exists {
		o.mu.Unlock()
		return fmt.Errorf("%w: category %q already exists", domain.ErrValidation, c.Name)
	}
	o.categories[c.Name] = c
	o.mu.Unlock()

	if err := o.cache.PutCategory(ctx, c); err != nil {
		return fmt.Errorf("AddCategory: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.AppendCategory(ctx, c); err != nil {
		return fmt.Errorf("AddCategory: remote: %w", err)
	}
	return nil
}

// UpdateCategory replaces a category's keyword list and display fields.
func (o *Orchestrator) UpdateCategory(ctx context.Context, c *domain.Category) error {
	o.mu.Lock()
	if _, ok := o.categories[c.Name]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("UpdateCategory %q: %w", c.Name, domain.ErrNotFound)
	}
	o.categories[c.Name] = c
	o.mu.Unlock()

	if err := o.cache.PutCategory(ctx, c); err != nil {
		return fmt.Errorf("UpdateCategory: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.UpdateCategory(ctx, c); err != nil {
		return fmt.Errorf("UpdateCategory: remote: %w", err)
	}
	return nil
}

// DeleteCategory removes a category by name with restore-on-failure.
func (o *Orchestrator) DeleteCategory(ctx context.Context, name string) error {
	o.mu.Lock()
	c, ok := o.categories[name]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("DeleteCategory %q: %w", name, domain.ErrNotFound)
	}
	delete(o.categories, name)
	o.mu.Unlock()

	if err := o.cache.DeleteCategory(ctx, name); err != nil {
		o.mu.Lock()
		o.categories[name] = c
		o.mu.Unlock()
		return fmt.Errorf("DeleteCategory: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.DeleteCategory(ctx, name); err != nil {
		o.mu.Lock()
		o.categories[name] = c
		o.mu.Unlock()
		_ = o.cache.PutCategory(ctx, c)
		return fmt.Errorf("%w: category %s: %v", domain.ErrConflictOnDelete, name, err)
	}
	return nil
}

// AddBill creates a bill template.
func (o *Orchestrator) AddBill(ctx context.Context, b *domain.Bill) error {
	if b.Name == "" {
		return fmt.Errorf("%w: bill name required", domain.ErrValidation)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = o.now()
	}
	if b.Status == "" {
		b.Status = domain.BillStatusActive
	}

	o.mu.Lock()
	o.bills[b.ID] = b
	o.mu.Unlock()

	if err := o.cache.PutBill(ctx, b); err != nil {
		return fmt.Errorf("AddBill: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.AppendBill(ctx, b); err != nil {
		return fmt.Errorf("AddBill: remote: %w", err)
	}
	return nil
}

// UpdateBill replaces a bill template.
func (o *Orchestrator) UpdateBill(ctx context.Context, b *domain.Bill) error {
	o.mu.Lock()
	if _, ok := o.bills[b.ID]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("UpdateBill %q: %w", b.ID, domain.ErrNotFound)
	}
	o.bills[b.ID] = b
	o.mu.Unlock()

	if err := o.cache.PutBill(ctx, b); err != nil {
		return fmt.Errorf("UpdateBill: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.UpdateBill(ctx, b); err != nil {
		return fmt.Errorf("UpdateBill: remote: %w", err)
	}
	return nil
}

// DeleteBill removes a bill template with restore-on-failure. Generated
// payment instances are kept for history.
func (o *Orchestrator) DeleteBill(ctx context.Context, id string) error {
	o.mu.Lock()
	b, ok := o.bills[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("DeleteBill %q: %w", id, domain.ErrNotFound)
	}
	delete(o.bills, id)
	o.mu.Unlock()

	if err := o.cache.DeleteBill(ctx, id); err != nil {
		o.mu.Lock()
		o.bills[id] = b
		o.mu.Unlock()
		return fmt.Errorf("DeleteBill: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.DeleteBill(ctx, id); err != nil {
		o.mu.Lock()
		o.bills[id] = b
		o.mu.Unlock()
		_ = o.cache.PutBill(ctx, b)
		return fmt.Errorf("%w: bill %s: %v", domain.ErrConflictOnDelete, id, err)
	}
	return nil
}

// MarkBillPaymentPaid settles a generated instance, linking the settling
// transaction. This is the only user-facing mutation of instances.
func (o *Orchestrator) MarkBillPaymentPaid(ctx context.Context, paymentID, transactionID string) error {
	o.mu.Lock()
	p, ok := o.payments[paymentID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("MarkBillPaymentPaid %q: %w", paymentID, domain.ErrNotFound)
	}
	p.Status = domain.PaymentStatusPaid
	p.PaidDate = o.now()
	p.TransactionID = transactionID

	if transactionID != "" {
		for _, tx := range o.transactions {
			if tx.ID == transactionID {
				tx.BillID = p.BillID
				break
			}
		}
	}
	o.mu.Unlock()

	if err := o.cache.PutBillPayment(ctx, p); err != nil {
		return fmt.Errorf("MarkBillPaymentPaid: cache: %w", err)
	}
	o.markDirty()

	if o.remote == nil {
		return nil
	}
	if err := o.remote.UpdateBillPayment(ctx, p); err != nil {
		return fmt.Errorf("MarkBillPaymentPaid: remote: %w", err)
	}
	return nil
}

// ClosePeriod marks a YYYY-MM period immutable.
func (o *Orchestrator) ClosePeriod(ctx context.Context, period string) error {
	if !validPeriod(period) {
		return fmt.Errorf("%w: bad period %q, want YYYY-MM", domain.ErrValidation, period)
	}

	o.mu.Lock()
	o.closed[period] = true
	o.mu.Unlock()

	if err := o.cache.AddClosedPeriod(ctx, period); err != nil {
		return fmt.Errorf("ClosePeriod: cache: %w", err)
	}
	o.markDirty()
	return nil
}

// ReopenPeriod lifts the immutability mark from a period.
func (o *Orchestrator) ReopenPeriod(ctx context.Context, period string) error {
	o.mu.Lock()
	delete(o.closed, period)
	o.mu.Unlock()

	if err := o.cache.RemoveClosedPeriod(ctx, period); err != nil {
		return fmt.Errorf("ReopenPeriod: cache: %w", err)
	}
	o.markDirty()
	return nil
}

func validPeriod(period string) bool {
	_, err := time.Parse("2006-01", period)
	return err == nil
}
