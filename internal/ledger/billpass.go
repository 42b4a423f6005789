package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/SrirammananS/finday/internal/bills"
	"github.com/SrirammananS/finday/internal/domain"
)

// scheduleBillPass defers a generation pass until state has settled after a
// refresh, so it never runs against a half-loaded ledger.
func (o *Orchestrator) scheduleBillPass() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	if o.billTimer != nil {
		o.billTimer.Stop()
	}
	o.billTimer = time.AfterFunc(billPassDelay, func() {
		o.mu.Lock()
		if o.stopped {
			o.mu.Unlock()
			return
		}
		o.mu.Unlock()

		if err := o.RunBillPass(context.Background()); err != nil {
			o.log.Warn().Err(err).Msg("Scheduled bill pass failed")
		}
	})
}

// RunBillPass generates due bill payment instances and audits pending ones
// against the transaction stream. Cross-session double generation is held
// off by the advisory lock; idempotence by (billID, cycleKey) covers the
// races the lock cannot.
func (o *Orchestrator) RunBillPass(ctx context.Context) error {
	if o.remote != nil {
		release, ok, err := bills.AcquireLock(ctx, o.remote, o.now())
		if err != nil {
			return fmt.Errorf("RunBillPass: %w", err)
		}
		if !ok {
			o.log.Debug().Msg("Bill generation lock held elsewhere, skipping pass")
			return nil
		}
		defer func() {
			if err := release(ctx); err != nil {
				o.log.Warn().Err(err).Msg("Failed to release bill generation lock")
			}
		}()
	}

	if err := o.generatePayments(ctx); err != nil {
		return err
	}
	return o.auditPayments(ctx)
}

// generatePayments derives and persists new instances for the current
// cycle of every active bill.
func (o *Orchestrator) generatePayments(ctx context.Context) error {
	o.mu.Lock()
	templates := make([]*domain.Bill, 0, len(o.bills))
	for _, b := range o.bills {
		templates = append(templates, b)
	}
	existing := make([]*domain.BillPayment, 0, len(o.payments))
	for _, p := range o.payments {
		existing = append(existing, p)
	}
	txs := append([]*domain.Transaction(nil), o.transactions...)
	now := o.now()
	o.mu.Unlock()

	generated := bills.Generate(templates, existing, txs, now, o.billCfg)
	if len(generated) == 0 {
		return nil
	}

	for _, p := range generated {
		o.mu.Lock()
		o.payments[p.ID] = p
		if b, ok := o.bills[p.BillID]; ok {
			b.Cycle = p.Cycle
		}
		bill := o.bills[p.BillID]
		o.mu.Unlock()

		if err := o.cache.PutBillPayment(ctx, p); err != nil {
			return fmt.Errorf("generatePayments: cache: %w", err)
		}
		if bill != nil {
			if err := o.cache.PutBill(ctx, bill); err != nil {
				return fmt.Errorf("generatePayments: cache bill: %w", err)
			}
		}

		if o.remote != nil {
			if err := o.remote.AppendBillPayment(ctx, p); err != nil {
				o.log.Warn().Err(err).
					Str("bill_id", p.BillID).
					Str("cycle", p.Cycle).
					Msg("Remote bill payment write failed, keeping local instance")
			} else if bill != nil {
				if err := o.remote.UpdateBill(ctx, bill); err != nil {
					o.log.Warn().Err(err).Str("bill_id", bill.ID).Msg("Remote bill cycle update failed")
				}
			}
		}

		o.log.Info().
			Str("bill", p.Name).
			Str("cycle", p.Cycle).
			Str("amount", p.Amount.String()).
			Time("due", p.DueDate).
			Msg("Generated bill payment")
	}

	o.markDirty()
	return nil
}

// auditPayments matches pending instances against transactions and marks
// the settled ones paid.
func (o *Orchestrator) auditPayments(ctx context.Context) error {
	o.mu.Lock()
	templates := make([]*domain.Bill, 0, len(o.bills))
	for _, b := range o.bills {
		templates = append(templates, b)
	}
	pending := make([]*domain.BillPayment, 0, len(o.payments))
	for _, p := range o.payments {
		pending = append(pending, p)
	}
	txs := append([]*domain.Transaction(nil), o.transactions...)
	o.mu.Unlock()

	matches := bills.DetectPayments(pending, templates, txs, o.billCfg)
	for _, m := range matches {
		o.mu.Lock()
		p, ok := o.payments[m.PaymentID]
		if !ok {
			o.mu.Unlock()
			continue
		}
		p.Status = domain.PaymentStatusPaid
		p.PaidDate = m.PaidDate
		p.TransactionID = m.TransactionID
		for _, tx := range o.transactions {
			if tx.ID == m.TransactionID {
				tx.BillID = p.BillID
				break
			}
		}
		o.mu.Unlock()

		if err := o.cache.PutBillPayment(ctx, p); err != nil {
			return fmt.Errorf("auditPayments: cache: %w", err)
		}
		if o.remote != nil {
			if err := o.remote.UpdateBillPayment(ctx, p); err != nil {
				o.log.Warn().Err(err).Str("payment_id", p.ID).Msg("Remote payment update failed")
			}
		}

		o.log.Info().
			Str("bill", p.Name).
			Str("cycle", p.Cycle).
			Str("transaction_id", m.TransactionID).
			Msg("Auto-detected bill payment")
	}

	if len(matches) > 0 {
		o.markDirty()
	}
	return nil
}
