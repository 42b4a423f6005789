package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SrirammananS/finday/internal/domain"
)

func TestDedupeTransactions(t *testing.T) {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	a := &domain.Transaction{ID: "t1", Date: d, Amount: decimal.NewFromInt(-10)}
	b := &domain.Transaction{ID: "t1", Date: d, Amount: decimal.NewFromInt(-10)}
	// Same id on a different day is a distinct record, not a duplicate.
	c := &domain.Transaction{ID: "t1", Date: d.AddDate(0, 0, 1), Amount: decimal.NewFromInt(-10)}

	out := dedupeTransactions([]*domain.Transaction{a, b, c})
	if len(out) != 2 {
		t.Fatalf("dedupe = %d rows, want 2", len(out))
	}
	if out[0] != a {
		t.Error("first occurrence not kept")
	}

	// Idempotent: a second pass changes nothing.
	if again := dedupeTransactions(out); len(again) != 2 {
		t.Errorf("second pass = %d rows, want 2", len(again))
	}
}

func TestFriendBalances(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	seedAccount(t, o, "a1", 1000)
	ctx := context.Background()

	add := func(amount int64, friend string) {
		t.Helper()
		tx := &domain.Transaction{
			Date: testNow, Amount: decimal.NewFromInt(amount),
			AccountID: "a1", Friend: friend,
		}
		if err := o.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}

	add(-50, "alice") // paid 50 for alice: she owes 50
	add(-30, "alice") // and 30 more
	add(20, "alice")  // she paid 20 back
	add(-10, "bob")
	add(-99, "") // no counterparty, excluded

	balances := o.FriendBalances()
	if len(balances) != 2 {
		t.Fatalf("balances = %d entries, want 2", len(balances))
	}
	if balances[0].Name != "alice" || !balances[0].Balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("alice = %s, want 60", balances[0].Balance)
	}
	if balances[1].Name != "bob" || !balances[1].Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("bob = %s, want 10", balances[1].Balance)
	}
}

func TestSummary(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	seedAccount(t, o, "a1", 1000)
	ctx := context.Background()

	add := func(date time.Time, amount int64, typ string) {
		t.Helper()
		tx := &domain.Transaction{Date: date, Amount: decimal.NewFromInt(amount), AccountID: "a1", Type: typ}
		if err := o.AddTransaction(ctx, tx); err != nil {
			t.Fatalf("AddTransaction: %v", err)
		}
	}

	march := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	add(march, 3000, "income")
	add(march, -1200, "expense")
	add(march, -300, "expense")
	add(march.AddDate(0, 1, 0), -999, "expense") // april, outside

	s := o.Summary(2024, 3)
	if s.Count != 3 {
		t.Errorf("count = %d, want 3", s.Count)
	}
	if !s.TotalIncome.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("income = %s, want 3000", s.TotalIncome)
	}
	if !s.TotalExpense.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("expense = %s, want 1500", s.TotalExpense)
	}
	if !s.Net.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("net = %s, want 1500", s.Net)
	}
}

func TestQueryAccessorsReturnCopies(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	seedAccount(t, o, "a1", 100)

	txs := o.Transactions()
	txs = append(txs, &domain.Transaction{ID: "rogue"})
	if len(o.Transactions()) != 0 {
		t.Error("appending to the returned slice mutated internal state")
	}
	_ = txs
}
