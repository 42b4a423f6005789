package ledger

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SrirammananS/finday/internal/domain"
)

func TestExportImportRoundTrip(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	seedAccount(t, o, "a1", 1000)

	ctx := context.Background()
	if err := o.AddCategory(ctx, &domain.Category{Name: "Food", Keywords: []string{"coffee"}}); err != nil {
		t.Fatalf("AddCategory: %v", err)
	}
	tx := &domain.Transaction{Date: testNow, Description: "coffee", Amount: decimal.NewFromInt(-4), AccountID: "a1"}
	if err := o.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if err := o.ClosePeriod(ctx, "2024-01"); err != nil {
		t.Fatalf("ClosePeriod: %v", err)
	}

	var buf bytes.Buffer
	if err := o.Export(&buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	other, fc := newTestOrchestrator(t, nil)
	if err := other.Import(ctx, &buf); err != nil {
		t.Fatalf("Import: %v", err)
	}

	if got := len(other.Transactions()); got != 1 {
		t.Errorf("transactions = %d, want 1", got)
	}
	if _, ok := other.Account("a1"); !ok {
		t.Error("account not imported")
	}
	if got := len(other.Categories()); got != 1 {
		t.Errorf("categories = %d, want 1", got)
	}
	if got := other.ClosedPeriods(); len(got) != 1 || got[0] != "2024-01" {
		t.Errorf("closed periods = %v", got)
	}
	if fc.saved == nil {
		t.Error("import did not re-seed the cache")
	}
}

func TestImport_RejectsNewerVersion(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	snap := `{"version": 99, "transactions": []}`
	err := o.Import(context.Background(), bytes.NewBufferString(snap))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Import = %v, want validation error", err)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	path := filepath.Join(t.TempDir(), "ledger.bak")

	fc := newFakeCache()
	o := New(fc, nil, zerolog.Nop(), Options{
		Now:        func() time.Time { return testNow },
		BackupPath: path,
		BackupKey:  key,
	})
	defer o.Close()
	seedAccount(t, o, "a1", 1000)

	ctx := context.Background()
	tx := &domain.Transaction{Date: testNow, Description: "coffee", Amount: decimal.NewFromInt(-4), AccountID: "a1"}
	if err := o.AddTransaction(ctx, tx); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	if err := o.WriteBackup(); err != nil {
		t.Fatalf("WriteBackup: %v", err)
	}

	snap, err := ReadBackup(path, key)
	if err != nil {
		t.Fatalf("ReadBackup: %v", err)
	}
	if len(snap.Transactions) != 1 || len(snap.Accounts) != 1 {
		t.Errorf("restored snapshot = %d txs, %d accounts", len(snap.Transactions), len(snap.Accounts))
	}
	if !snap.ExportedAt.Equal(testNow) {
		t.Errorf("ExportedAt = %v, want %v", snap.ExportedAt, testNow)
	}

	if _, err := ReadBackup(path, []byte("ffffffffffffffffffffffffffffffff")); err == nil {
		t.Error("ReadBackup succeeded with the wrong key")
	}
}

func TestWriteBackup_NotConfigured(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	if err := o.WriteBackup(); err == nil {
		t.Error("WriteBackup succeeded without path and key")
	}
}
