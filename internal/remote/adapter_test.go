package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"

	"github.com/SrirammananS/finday/internal/domain"
)

// fakeRowAPI is an in-memory spreadsheet honoring the subset of A1 ranges
// the adapter uses.
type fakeRowAPI struct {
	mu     sync.Mutex
	grids  map[string][][]interface{} // title -> rows, index 0 is the header
	errs   map[string][]error         // method -> errors returned before succeeding
	titles int                        // SheetTitles call count
}

func newFakeRowAPI() *fakeRowAPI {
	return &fakeRowAPI{
		grids: make(map[string][][]interface{}),
		errs:  make(map[string][]error),
	}
}

func (f *fakeRowAPI) failNext(method string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = append(f.errs[method], errs...)
}

func (f *fakeRowAPI) nextErr(method string) error {
	if queue := f.errs[method]; len(queue) > 0 {
		f.errs[method] = queue[1:]
		return queue[0]
	}
	return nil
}

func (f *fakeRowAPI) SheetTitles(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles++
	if err := f.nextErr("SheetTitles"); err != nil {
		return nil, err
	}

	var out []string
	for title := range f.grids {
		out = append(out, title)
	}
	return out, nil
}

func (f *fakeRowAPI) AddSheet(ctx context.Context, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr("AddSheet"); err != nil {
		return err
	}
	f.grids[title] = [][]interface{}{}
	return nil
}

func splitRange(rng string) (title, ref string) {
	parts := strings.SplitN(rng, "!", 2)
	return parts[0], parts[1]
}

// refRow parses the row number off a cell reference like "A5".
func refRow(ref string) int {
	ref = strings.SplitN(ref, ":", 2)[0]
	n, _ := strconv.Atoi(strings.TrimLeft(ref, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	return n
}

func (f *fakeRowAPI) GetValues(ctx context.Context, rng string) ([][]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr("GetValues"); err != nil {
		return nil, err
	}

	title, ref := splitRange(rng)
	grid, ok := f.grids[title]
	if !ok {
		return nil, fmt.Errorf("%w: no sheet %q", domain.ErrTableMissing, title)
	}

	start := refRow(ref)
	if start < 1 {
		start = 1
	}
	if start > len(grid) {
		return nil, nil
	}
	rows := grid[start-1:]

	if strings.HasSuffix(ref, ":A") {
		var col [][]interface{}
		for _, row := range rows {
			if len(row) > 0 {
				col = append(col, row[:1])
			} else {
				col = append(col, []interface{}{})
			}
		}
		return col, nil
	}
	return rows, nil
}

func (f *fakeRowAPI) AppendValues(ctx context.Context, rng string, rows [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr("AppendValues"); err != nil {
		return err
	}

	title, _ := splitRange(rng)
	grid, ok := f.grids[title]
	if !ok {
		return fmt.Errorf("%w: no sheet %q", domain.ErrTableMissing, title)
	}
	f.grids[title] = append(grid, rows...)
	return nil
}

func (f *fakeRowAPI) UpdateValues(ctx context.Context, rng string, rows [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr("UpdateValues"); err != nil {
		return err
	}

	title, ref := splitRange(rng)
	grid, ok := f.grids[title]
	if !ok {
		return fmt.Errorf("%w: no sheet %q", domain.ErrTableMissing, title)
	}

	start := refRow(ref)
	for i, row := range rows {
		idx := start - 1 + i
		for idx >= len(grid) {
			grid = append(grid, []interface{}{})
		}
		grid[idx] = row
	}
	f.grids[title] = grid
	return nil
}

func (f *fakeRowAPI) ClearValues(ctx context.Context, rng string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr("ClearValues"); err != nil {
		return err
	}

	title, ref := splitRange(rng)
	grid, ok := f.grids[title]
	if !ok {
		return fmt.Errorf("%w: no sheet %q", domain.ErrTableMissing, title)
	}
	if n := refRow(ref); n >= 1 && n <= len(grid) {
		grid[n-1] = []interface{}{}
	}
	return nil
}

// fakeCreds counts refreshes.
type fakeCreds struct {
	refreshes  int
	refreshErr error
}

func (f *fakeCreds) Token(ctx context.Context) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "token"}, nil
}

func (f *fakeCreds) Refresh(ctx context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeCreds) Notify() <-chan struct{} { return nil }

func newTestAdapter(api RowAPI) *Adapter {
	return NewAdapter(api, &fakeCreds{}, zerolog.Nop())
}

func seedTransactionsTable(api *fakeRowAPI, title string, rows ...[]interface{}) {
	grid := [][]interface{}{rowOfStrings(tableHeaders[TableTransactions])}
	grid = append(grid, rows...)
	api.grids[title] = grid
}

func txRow(id, date, desc, amount, account string) []interface{} {
	return []interface{}{id, date, desc, amount, "Food", account, "expense", "2024-01-01T00:00:00Z", ""}
}

func TestResolveNaming(t *testing.T) {
	tests := []struct {
		name   string
		tables []string
		want   NamingStyle
	}{
		{"marked store", []string{"_Transactions", "_Accounts"}, NamingMarked},
		{"plain legacy store", []string{"Transactions", "Accounts"}, NamingPlain},
		{"both present prefers marked", []string{"Transactions", "_Transactions"}, NamingMarked},
		{"empty store defaults to marked", nil, NamingMarked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeRowAPI()
			for _, title := range tt.tables {
				api.grids[title] = [][]interface{}{}
			}

			a := newTestAdapter(api)
			got, err := a.resolveNaming(context.Background())
			if err != nil {
				t.Fatalf("resolveNaming: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveNaming() = %v, want %v", got, tt.want)
			}

			// The result is cached: no second probe.
			before := api.titles
			if _, err := a.resolveNaming(context.Background()); err != nil {
				t.Fatalf("resolveNaming (cached): %v", err)
			}
			if api.titles != before {
				t.Error("cached naming resolution issued another probe")
			}
		})
	}
}

func TestEnsureTable_CreatesWithHeader(t *testing.T) {
	api := newFakeRowAPI()
	a := newTestAdapter(api)

	title, err := a.ensureTable(context.Background(), TableAccounts)
	if err != nil {
		t.Fatalf("ensureTable: %v", err)
	}
	if title != "_Accounts" {
		t.Errorf("title = %q, want _Accounts", title)
	}

	grid := api.grids["_Accounts"]
	if len(grid) != 1 || cellString(grid[0], 0) != "ID" {
		t.Errorf("created table missing canonical header: %v", grid)
	}
}

func TestReadTable_MissingIsEmpty(t *testing.T) {
	api := newFakeRowAPI()
	api.grids["_Transactions"] = [][]interface{}{rowOfStrings(tableHeaders[TableTransactions])}
	a := newTestAdapter(api)

	// Accounts table does not exist yet; a read is an empty result.
	accounts, err := a.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 0 {
		t.Errorf("ListAccounts() = %d rows, want 0", len(accounts))
	}
}

func TestListTransactions_MergesMonthlyTables(t *testing.T) {
	api := newFakeRowAPI()
	seedTransactionsTable(api, "_Transactions",
		txRow("t1", "2024-03-05", "coffee", "-4.50", "a1"),
	)
	seedTransactionsTable(api, "Mar 2024",
		txRow("t1", "2024-03-05", "coffee", "-4.50", "a1"), // duplicate of the flat row
		txRow("t2", "2024-03-06", "lunch", "-12.00", "a1"),
	)
	seedTransactionsTable(api, "Feb 2024",
		txRow("t3", "2024-02-10", "books", "-30.00", "a1"),
	)
	a := newTestAdapter(api)

	txs, err := a.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("ListTransactions() = %d rows, want 3 (merged, deduped)", len(txs))
	}

	ids := make(map[string]bool)
	for _, tx := range txs {
		if ids[tx.ID] {
			t.Errorf("duplicate id %s survived the merge", tx.ID)
		}
		ids[tx.ID] = true
	}
}

// Rows whose date cell was coerced into an actual spreadsheet date come back
// as serial numbers under unformatted reads. They must decode, not be
// skipped, or a refresh would persist an emptied collection over the cache.
func TestListTransactions_SerialDateCell(t *testing.T) {
	api := newFakeRowAPI()
	row := txRow("t1", "", "coffee", "-4.50", "a1")
	row[1] = float64(45356) // 2024-03-05
	seedTransactionsTable(api, "_Transactions", row)
	a := newTestAdapter(api)

	txs, err := a.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("ListTransactions() = %d rows, want 1", len(txs))
	}
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if !txs[0].Date.Equal(want) {
		t.Errorf("Date = %v, want %v", txs[0].Date, want)
	}
}

func TestUpdateRowByID(t *testing.T) {
	api := newFakeRowAPI()
	seedTransactionsTable(api, "_Transactions",
		txRow("t1", "2024-03-05", "coffee", "-4.50", "a1"),
		txRow("t2", "2024-03-06", "lunch", "-12.00", "a1"),
	)
	a := newTestAdapter(api)

	tx := &domain.Transaction{
		ID: "t2", Date: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
		Description: "team lunch", Amount: decimal.NewFromInt(-15),
		AccountID: "a1", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := a.UpdateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	grid := api.grids["_Transactions"]
	if got := cellString(grid[2], 2); got != "team lunch" {
		t.Errorf("row 3 description = %q, want %q", got, "team lunch")
	}
}

func TestUpdateRowByID_NoMatchIsNoop(t *testing.T) {
	api := newFakeRowAPI()
	seedTransactionsTable(api, "_Transactions",
		txRow("t1", "2024-03-05", "coffee", "-4.50", "a1"),
	)
	a := newTestAdapter(api)

	tx := &domain.Transaction{ID: "missing", Date: time.Now(), Amount: decimal.Zero}
	if err := a.UpdateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("UpdateTransaction on missing row: %v", err)
	}

	if got := len(api.grids["_Transactions"]); got != 2 {
		t.Errorf("table changed on no-op update: %d rows", got)
	}
}

func TestDeleteRowByID(t *testing.T) {
	api := newFakeRowAPI()
	seedTransactionsTable(api, "_Transactions",
		txRow("t1", "2024-03-05", "coffee", "-4.50", "a1"),
		txRow("t2", "2024-03-06", "lunch", "-12.00", "a1"),
	)
	a := newTestAdapter(api)

	if err := a.DeleteTransaction(context.Background(), "t1"); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}

	// The row is blanked, not removed; readers skip it.
	txs, err := a.ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "t2" {
		t.Errorf("after delete got %d rows, want only t2", len(txs))
	}
}

func TestAuthRefreshRetry(t *testing.T) {
	api := newFakeRowAPI()
	seedTransactionsTable(api, "_Transactions")
	api.failNext("GetValues", fmt.Errorf("%w: 401", domain.ErrAuthExpired))

	creds := &fakeCreds{}
	a := NewAdapter(api, creds, zerolog.Nop())

	if _, err := a.ListTransactions(context.Background()); err != nil {
		t.Fatalf("ListTransactions after refresh: %v", err)
	}
	if creds.refreshes != 1 {
		t.Errorf("refreshes = %d, want 1", creds.refreshes)
	}
}

func TestAuthRefreshFailurePropagates(t *testing.T) {
	api := newFakeRowAPI()
	seedTransactionsTable(api, "_Transactions")
	api.failNext("GetValues", fmt.Errorf("%w: 401", domain.ErrAuthExpired))

	creds := &fakeCreds{refreshErr: errors.New("consent revoked")}
	a := NewAdapter(api, creds, zerolog.Nop())

	_, err := a.ListTransactions(context.Background())
	if !errors.Is(err, domain.ErrAuthExpired) {
		t.Errorf("error = %v, want ErrAuthExpired", err)
	}
}

func TestSetConfig(t *testing.T) {
	api := newFakeRowAPI()
	a := newTestAdapter(api)
	ctx := context.Background()

	if err := a.SetConfig(ctx, "last_audit", "2024-03-10"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if err := a.SetConfig(ctx, "last_audit", "2024-03-11"); err != nil {
		t.Fatalf("SetConfig update: %v", err)
	}

	v, ok, err := a.GetConfig(ctx, "last_audit")
	if err != nil || !ok {
		t.Fatalf("GetConfig: ok=%v err=%v", ok, err)
	}
	if v != "2024-03-11" {
		t.Errorf("value = %q, want updated value", v)
	}

	// Updated in place, not appended: header + one data row.
	if got := len(api.grids["_Config"]); got != 2 {
		t.Errorf("config table has %d rows, want 2", got)
	}
}

func TestClearCacheForcesReprobe(t *testing.T) {
	api := newFakeRowAPI()
	api.grids["Transactions"] = [][]interface{}{rowOfStrings(tableHeaders[TableTransactions])}
	a := newTestAdapter(api)

	if _, err := a.resolveNaming(context.Background()); err != nil {
		t.Fatalf("resolveNaming: %v", err)
	}
	before := api.titles

	a.ClearCache()
	if _, err := a.resolveNaming(context.Background()); err != nil {
		t.Fatalf("resolveNaming after clear: %v", err)
	}
	if api.titles == before {
		t.Error("ClearCache did not force a new probe")
	}
}
