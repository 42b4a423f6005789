package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SrirammananS/finday/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Version: domain.SnapshotVersion,
		Transactions: []*domain.Transaction{
			{ID: "t1", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
				Description: "coffee", Amount: decimal.NewFromFloat(-4.50),
				AccountID: "a1", Type: "expense", Synced: true},
			{ID: "t2", Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
				Description: "salary", Amount: decimal.NewFromInt(3000),
				AccountID: "a1", Type: "income", Synced: true},
		},
		Accounts: []*domain.Account{
			{ID: "a1", Name: "Checking", Type: domain.AccountTypeBank, Balance: decimal.NewFromInt(1000)},
		},
		Categories: []*domain.Category{
			{Name: "Food", Keywords: []string{"coffee", "lunch"}},
		},
		Bills: []*domain.Bill{
			{ID: "b1", Name: "Rent", Amount: decimal.NewFromInt(1200), DueDay: 1,
				BillType: domain.BillTypeFlat, Status: domain.BillStatusActive},
		},
		BillPayments: []*domain.BillPayment{
			{ID: "p1", BillID: "b1", Name: "Rent", Cycle: "2024-03",
				Amount: decimal.NewFromInt(1200), Status: domain.PaymentStatusPending,
				DueDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
		ClosedPeriods: []string{"2024-01"},
	}
}

func TestSaveAllLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveAll(ctx, testSnapshot()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	snap, meta, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(snap.Transactions) != 2 {
		t.Errorf("transactions = %d, want 2", len(snap.Transactions))
	}
	if snap.Transactions[0].ID != "t1" {
		t.Errorf("transaction order not preserved: first id = %s", snap.Transactions[0].ID)
	}
	if !snap.Transactions[0].Amount.Equal(decimal.NewFromFloat(-4.50)) {
		t.Errorf("amount = %s, want -4.5", snap.Transactions[0].Amount)
	}
	if len(snap.Accounts) != 1 || len(snap.Categories) != 1 ||
		len(snap.Bills) != 1 || len(snap.BillPayments) != 1 {
		t.Errorf("collections incomplete: %+v", snap)
	}
	if len(snap.ClosedPeriods) != 1 || snap.ClosedPeriods[0] != "2024-01" {
		t.Errorf("closed periods = %v", snap.ClosedPeriods)
	}

	if !meta.HasData {
		t.Error("HasData = false after SaveAll")
	}
	if meta.IsStale {
		t.Error("IsStale = true immediately after SaveAll")
	}
	if meta.LastSync.IsZero() {
		t.Error("LastSync not stamped")
	}
}

func TestSaveAllReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveAll(ctx, testSnapshot()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	small := &domain.Snapshot{
		Version: domain.SnapshotVersion,
		Transactions: []*domain.Transaction{
			{ID: "t9", Date: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
				Amount: decimal.NewFromInt(-10)},
		},
	}
	if err := s.SaveAll(ctx, small); err != nil {
		t.Fatalf("SaveAll replace: %v", err)
	}

	snap, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Transactions) != 1 || snap.Transactions[0].ID != "t9" {
		t.Errorf("old rows survived the replace: %+v", snap.Transactions)
	}
	if len(snap.Accounts) != 0 || len(snap.ClosedPeriods) != 0 {
		t.Error("other collections not replaced")
	}
}

func TestLoadEmptyIsStale(t *testing.T) {
	s := openTestStore(t)

	snap, meta, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.HasData {
		t.Error("HasData = true on empty cache")
	}
	if !meta.IsStale {
		t.Error("IsStale = false with no sync stamp")
	}
	if len(snap.Transactions) != 0 {
		t.Errorf("transactions = %d, want 0", len(snap.Transactions))
	}
}

func TestPointWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx := &domain.Transaction{ID: "t1", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromInt(-20), Synced: false}
	if err := s.PutTransaction(ctx, tx); err != nil {
		t.Fatalf("PutTransaction: %v", err)
	}

	// Put again with updated fields replaces, not duplicates.
	tx.Synced = true
	if err := s.PutTransaction(ctx, tx); err != nil {
		t.Fatalf("PutTransaction update: %v", err)
	}

	snap, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(snap.Transactions))
	}
	if !snap.Transactions[0].Synced {
		t.Error("Synced flag not updated")
	}

	if err := s.DeleteTransaction(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	snap, _, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Transactions) != 0 {
		t.Error("transaction survived delete")
	}
}

// A transaction and the account balance it adjusted land in one write, so a
// reload never sees one without the other.
func TestTransactionWritesCarryAccounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tx := &domain.Transaction{ID: "t1", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromInt(-20), AccountID: "a1"}
	acc := &domain.Account{ID: "a1", Name: "Checking", Type: domain.AccountTypeBank,
		Balance: decimal.NewFromInt(980)}
	if err := s.PutTransactionWithAccounts(ctx, tx, acc); err != nil {
		t.Fatalf("PutTransactionWithAccounts: %v", err)
	}

	snap, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Transactions) != 1 || len(snap.Accounts) != 1 {
		t.Fatalf("loaded %d transactions, %d accounts, want 1 each",
			len(snap.Transactions), len(snap.Accounts))
	}
	if !snap.Accounts[0].Balance.Equal(decimal.NewFromInt(980)) {
		t.Errorf("balance = %s, want 980", snap.Accounts[0].Balance)
	}

	acc.Balance = decimal.NewFromInt(1000)
	if err := s.DeleteTransactionWithAccounts(ctx, "t1", acc); err != nil {
		t.Fatalf("DeleteTransactionWithAccounts: %v", err)
	}
	snap, _, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Transactions) != 0 {
		t.Error("transaction survived delete")
	}
	if !snap.Accounts[0].Balance.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("balance = %s, want 1000 after delete", snap.Accounts[0].Balance)
	}
}

func TestClosedPeriods(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddClosedPeriod(ctx, "2024-02"); err != nil {
		t.Fatalf("AddClosedPeriod: %v", err)
	}
	if err := s.AddClosedPeriod(ctx, "2024-02"); err != nil {
		t.Fatalf("AddClosedPeriod duplicate: %v", err)
	}

	snap, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.ClosedPeriods) != 1 {
		t.Errorf("closed periods = %v, want one entry", snap.ClosedPeriods)
	}

	if err := s.RemoveClosedPeriod(ctx, "2024-02"); err != nil {
		t.Fatalf("RemoveClosedPeriod: %v", err)
	}
	snap, _, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.ClosedPeriods) != 0 {
		t.Error("closed period survived removal")
	}
}

func TestClearAll(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveAll(ctx, testSnapshot()); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	snap, meta, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.HasData {
		t.Error("HasData = true after ClearAll")
	}
	if !meta.IsStale {
		t.Error("sync stamp survived ClearAll")
	}
	if len(snap.Transactions) != 0 || len(snap.ClosedPeriods) != 0 {
		t.Error("rows survived ClearAll")
	}
}
