// Package cache is the embedded local mirror of every entity collection.
// It is the durability boundary: the orchestrator persists each accepted
// mutation here synchronously before any remote call, so offline sessions
// never lose data the user believes is saved.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/SrirammananS/finday/internal/domain"
)

// StaleTTL is how old cached data may be before it is flagged stale.
// Stale data is still served, just marked possibly outdated.
const StaleTTL = 24 * time.Hour

const lastSyncKey = "last_sync"

// Store is a SQLite-backed collection store. One table per entity type plus
// a metadata table holding the last successful sync timestamp.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the cache database and ensures the schema exists.
// WAL mode keeps readers unblocked during the bulk replace in SaveAll.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("Open: open db: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS transactions (id TEXT PRIMARY KEY, data TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS accounts (id TEXT PRIMARY KEY, data TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS categories (name TEXT PRIMARY KEY, data TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS bills (id TEXT PRIMARY KEY, data TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS bill_payments (id TEXT PRIMARY KEY, data TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS closed_periods (period TEXT PRIMARY KEY)`,
		`CREATE TABLE IF NOT EXISTS metadata (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("Open: create schema: %w", err)
		}
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAll replaces every collection with the snapshot's contents inside one
// transaction and stamps the last-sync timestamp.
func (s *Store) SaveAll(ctx context.Context, snap *domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("SaveAll: begin: %w", err)
	}
	defer tx.Rollback()

	tables := []string{"transactions", "accounts", "categories", "bills", "bill_payments", "closed_periods"}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("SaveAll: clear %s: %w", table, err)
		}
	}

	for _, t := range snap.Transactions {
		if err := insertJSON(ctx, tx, "transactions", t.ID, t); err != nil {
			return err
		}
	}
	for _, a := range snap.Accounts {
		if err := insertJSON(ctx, tx, "accounts", a.ID, a); err != nil {
			return err
		}
	}
	for _, c := range snap.Categories {
		if err := insertJSON(ctx, tx, "categories", c.Name, c); err != nil {
			return err
		}
	}
	for _, b := range snap.Bills {
		if err := insertJSON(ctx, tx, "bills", b.ID, b); err != nil {
			return err
		}
	}
	for _, p := range snap.BillPayments {
		if err := insertJSON(ctx, tx, "bill_payments", p.ID, p); err != nil {
			return err
		}
	}
	for _, period := range snap.ClosedPeriods {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO closed_periods (period) VALUES (?)", period); err != nil {
			return fmt.Errorf("SaveAll: insert closed period: %w", err)
		}
	}

	stamp := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", lastSyncKey, stamp); err != nil {
		return fmt.Errorf("SaveAll: stamp sync time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("SaveAll: commit: %w", err)
	}
	return nil
}

// Load reads every collection plus the freshness summary. Data is stale
// when no sync timestamp is recorded or it is older than StaleTTL.
func (s *Store) Load(ctx context.Context) (*domain.Snapshot, domain.SyncMetadata, error) {
	snap := &domain.Snapshot{Version: domain.SnapshotVersion}
	var meta domain.SyncMetadata

	if err := loadJSON(ctx, s.db, "transactions", func() interface{} {
		t := &domain.Transaction{}
		snap.Transactions = append(snap.Transactions, t)
		return t
	}); err != nil {
		return nil, meta, err
	}
	if err := loadJSON(ctx, s.db, "accounts", func() interface{} {
		a := &domain.Account{}
		snap.Accounts = append(snap.Accounts, a)
		return a
	}); err != nil {
		return nil, meta, err
	}
	if err := loadJSON(ctx, s.db, "categories", func() interface{} {
		c := &domain.Category{}
		snap.Categories = append(snap.Categories, c)
		return c
	}); err != nil {
		return nil, meta, err
	}
	if err := loadJSON(ctx, s.db, "bills", func() interface{} {
		b := &domain.Bill{}
		snap.Bills = append(snap.Bills, b)
		return b
	}); err != nil {
		return nil, meta, err
	}
	if err := loadJSON(ctx, s.db, "bill_payments", func() interface{} {
		p := &domain.BillPayment{}
		snap.BillPayments = append(snap.BillPayments, p)
		return p
	}); err != nil {
		return nil, meta, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT period FROM closed_periods ORDER BY period")
	if err != nil {
		return nil, meta, fmt.Errorf("Load: closed periods: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, meta, fmt.Errorf("Load: scan closed period: %w", err)
		}
		snap.ClosedPeriods = append(snap.ClosedPeriods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, meta, fmt.Errorf("Load: closed periods: %w", err)
	}

	meta.HasData = len(snap.Transactions) > 0 || len(snap.Accounts) > 0 ||
		len(snap.Categories) > 0 || len(snap.Bills) > 0

	meta.IsStale = true
	var stamp string
	err = s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = ?", lastSyncKey).Scan(&stamp)
	switch {
	case err == sql.ErrNoRows:
		// never synced
	case err != nil:
		return nil, meta, fmt.Errorf("Load: sync stamp: %w", err)
	default:
		if ts, perr := time.Parse(time.RFC3339, stamp); perr == nil {
			meta.LastSync = ts
			meta.IsStale = time.Since(ts) > StaleTTL
		}
	}

	return snap, meta, nil
}

// ClearAll purges every collection and the metadata. Used on sign-out and
// forced refresh.
func (s *Store) ClearAll(ctx context.Context) error {
	tables := []string{"transactions", "accounts", "categories", "bills", "bill_payments", "closed_periods", "metadata"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("ClearAll: %s: %w", table, err)
		}
	}
	return nil
}

// Point writes. Each accepted mutation lands here before any remote call.

func (s *Store) PutTransaction(ctx context.Context, t *domain.Transaction) error {
	return putJSON(ctx, s.db, "transactions", t.ID, t)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return deleteKey(ctx, s.db, "transactions", "id", id)
}

// PutTransactionWithAccounts writes a transaction and the accounts whose
// balances it adjusted in one database transaction, so the cached rows
// cannot diverge when a write fails partway.
func (s *Store) PutTransactionWithAccounts(ctx context.Context, t *domain.Transaction, accs ...*domain.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("PutTransactionWithAccounts: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertJSON(ctx, tx, "transactions", t.ID, t); err != nil {
		return err
	}
	for _, a := range accs {
		if err := insertJSON(ctx, tx, "accounts", a.ID, a); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("PutTransactionWithAccounts: commit: %w", err)
	}
	return nil
}

// DeleteTransactionWithAccounts removes a transaction and rewrites the
// adjusted accounts atomically, mirroring PutTransactionWithAccounts.
func (s *Store) DeleteTransactionWithAccounts(ctx context.Context, id string, accs ...*domain.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("DeleteTransactionWithAccounts: begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteKey(ctx, tx, "transactions", "id", id); err != nil {
		return err
	}
	for _, a := range accs {
		if err := insertJSON(ctx, tx, "accounts", a.ID, a); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("DeleteTransactionWithAccounts: commit: %w", err)
	}
	return nil
}

func (s *Store) PutAccount(ctx context.Context, a *domain.Account) error {
	return putJSON(ctx, s.db, "accounts", a.ID, a)
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return deleteKey(ctx, s.db, "accounts", "id", id)
}

func (s *Store) PutCategory(ctx context.Context, c *domain.Category) error {
	return putJSON(ctx, s.db, "categories", c.Name, c)
}

func (s *Store) DeleteCategory(ctx context.Context, name string) error {
	return deleteKey(ctx, s.db, "categories", "name", name)
}

func (s *Store) PutBill(ctx context.Context, b *domain.Bill) error {
	return putJSON(ctx, s.db, "bills", b.ID, b)
}

func (s *Store) DeleteBill(ctx context.Context, id string) error {
	return deleteKey(ctx, s.db, "bills", "id", id)
}

func (s *Store) PutBillPayment(ctx context.Context, p *domain.BillPayment) error {
	return putJSON(ctx, s.db, "bill_payments", p.ID, p)
}

func (s *Store) AddClosedPeriod(ctx context.Context, period string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO closed_periods (period) VALUES (?)", period)
	if err != nil {
		return fmt.Errorf("AddClosedPeriod: %w", err)
	}
	return nil
}

func (s *Store) RemoveClosedPeriod(ctx context.Context, period string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM closed_periods WHERE period = ?", period)
	if err != nil {
		return fmt.Errorf("RemoveClosedPeriod: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Table names below are compile-time constants from this package, never
// user input.

func insertJSON(ctx context.Context, db execer, table, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("insert %s: marshal: %w", table, err)
	}
	keyCol := "id"
	if table == "categories" {
		keyCol = "name"
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf("INSERT OR REPLACE INTO %s (%s, data) VALUES (?, ?)", table, keyCol),
		key, string(data))
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func putJSON(ctx context.Context, db execer, table, key string, v interface{}) error {
	return insertJSON(ctx, db, table, key, v)
}

func deleteKey(ctx context.Context, db execer, table, keyCol, key string) error {
	_, err := db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, keyCol), key)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return nil
}

func loadJSON(ctx context.Context, db *sql.DB, table string, next func() interface{}) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s ORDER BY rowid", table))
	if err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("load %s: scan: %w", table, err)
		}
		if err := json.Unmarshal([]byte(data), next()); err != nil {
			return fmt.Errorf("load %s: unmarshal: %w", table, err)
		}
	}
	return rows.Err()
}
