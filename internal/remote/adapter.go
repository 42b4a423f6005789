package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/SrirammananS/finday/internal/domain"
)

// NamingStyle is the table naming convention a store actually uses. Older
// stores carry plain titles; newer ones prefix system tables with a marker
// so they sort apart from user-visible sheets. The style is probed once per
// adapter instance and cached.
type NamingStyle int

const (
	NamingUnknown NamingStyle = iota
	// NamingMarked prefixes system tables with the marker. Default for new
	// stores.
	NamingMarked
	// NamingPlain uses the logical name as-is.
	NamingPlain
)

// tableMarker is the leading character distinguishing system tables.
const tableMarker = "_"

// Adapter maps logical entity collections onto named, header-delimited row
// ranges in one remote spreadsheet. It owns table discovery and creation,
// existence and row-location caching, and the transparent credential
// refresh on auth failure. All calls pass through the shared Throttle.
//
// Caches are invalidated only by ClearCache (a forced refresh), never on
// writes, so an external change is invisible until the next forced refresh.
type Adapter struct {
	api      RowAPI
	creds    CredentialSource
	throttle *Throttle
	log      zerolog.Logger

	mu       sync.Mutex
	naming   NamingStyle
	known    map[string]bool           // on-sheet titles known to exist
	rowIndex map[string]map[string]int // title -> id -> 1-based sheet row

	probes singleflight.Group
}

// NewAdapter wires the adapter over a row API and credential source.
func NewAdapter(api RowAPI, creds CredentialSource, log zerolog.Logger) *Adapter {
	return &Adapter{
		api:      api,
		creds:    creds,
		throttle: NewThrottle(log),
		log:      log,
		known:    make(map[string]bool),
		rowIndex: make(map[string]map[string]int),
	}
}

// ClearCache drops every cached probe result: naming style, table existence
// and row locations. Called on forced refresh.
func (a *Adapter) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.naming = NamingUnknown
	a.known = make(map[string]bool)
	a.rowIndex = make(map[string]map[string]int)
}

// call runs a remote operation through the throttle with one transparent
// credential refresh on auth failure. If the refresh (or the retried call)
// fails too, the auth error propagates.
func (a *Adapter) call(ctx context.Context, op string, fn func(context.Context) error) error {
	err := a.throttle.Do(ctx, op, fn)
	if err == nil || !errors.Is(err, domain.ErrAuthExpired) || a.creds == nil {
		return err
	}

	a.log.Info().Str("op", op).Msg("Credential expired, refreshing and retrying")
	if rerr := a.creds.Refresh(ctx); rerr != nil {
		return err
	}
	return a.throttle.Do(ctx, op, fn)
}

// resolveNaming probes which naming convention the store uses, caching the
// answer and the discovered sheet titles.
func (a *Adapter) resolveNaming(ctx context.Context) (NamingStyle, error) {
	a.mu.Lock()
	if a.naming != NamingUnknown {
		style := a.naming
		a.mu.Unlock()
		return style, nil
	}
	a.mu.Unlock()

	v, err, _ := a.probes.Do("naming", func() (interface{}, error) {
		var titles []string
		err := a.call(ctx, "SheetTitles", func(ctx context.Context) error {
			var err error
			titles, err = a.api.SheetTitles(ctx)
			return err
		})
		if err != nil {
			return NamingUnknown, err
		}

		exists := make(map[string]bool, len(titles))
		for _, t := range titles {
			exists[t] = true
		}

		// Marked wins when both conventions are present; new tables are
		// always created marked.
		style := NamingMarked
		if !exists[tableMarker+TableTransactions] && exists[TableTransactions] {
			style = NamingPlain
		}

		a.mu.Lock()
		a.naming = style
		for t := range exists {
			a.known[t] = true
		}
		a.mu.Unlock()

		return style, nil
	})
	if err != nil {
		return NamingUnknown, err
	}
	return v.(NamingStyle), nil
}

// resolveTableName returns the on-sheet title for a logical table under the
// store's resolved naming convention.
func (a *Adapter) resolveTableName(ctx context.Context, logical string) (string, error) {
	style, err := a.resolveNaming(ctx)
	if err != nil {
		return "", err
	}
	if style == NamingPlain {
		return logical, nil
	}
	return tableMarker + logical, nil
}

// ensureTable guarantees the table exists, creating it with its canonical
// header row when absent. Concurrent callers probing the same table await a
// single in-flight probe instead of issuing duplicates.
func (a *Adapter) ensureTable(ctx context.Context, logical string) (string, error) {
	title, err := a.resolveTableName(ctx, logical)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	if a.known[title] {
		a.mu.Unlock()
		return title, nil
	}
	a.mu.Unlock()

	_, err, _ = a.probes.Do("ensure:"+title, func() (interface{}, error) {
		var titles []string
		err := a.call(ctx, "SheetTitles", func(ctx context.Context) error {
			var err error
			titles, err = a.api.SheetTitles(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}

		found := false
		for _, t := range titles {
			if t == title {
				found = true
				break
			}
		}

		if !found {
			a.log.Info().Str("table", title).Msg("Creating remote table")
			if err := a.call(ctx, "AddSheet", func(ctx context.Context) error {
				return a.api.AddSheet(ctx, title)
			}); err != nil {
				return nil, err
			}

			header := rowOfStrings(tableHeaders[logical])
			rng := fmt.Sprintf("%s!A1", title)
			if err := a.call(ctx, "WriteHeader", func(ctx context.Context) error {
				return a.api.UpdateValues(ctx, rng, [][]interface{}{header})
			}); err != nil {
				return nil, err
			}
		}

		a.mu.Lock()
		a.known[title] = true
		a.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		return "", err
	}
	return title, nil
}

// readTable reads all data rows of a logical table. A missing table is an
// empty result, not an error, because tables are created lazily.
func (a *Adapter) readTable(ctx context.Context, logical string) ([][]interface{}, error) {
	title, err := a.resolveTableName(ctx, logical)
	if err != nil {
		return nil, err
	}
	return a.readRowsOf(ctx, title)
}

func (a *Adapter) readRowsOf(ctx context.Context, title string) ([][]interface{}, error) {
	var rows [][]interface{}
	rng := fmt.Sprintf("%s!A2:Z", title)
	err := a.call(ctx, "ReadRows "+title, func(ctx context.Context) error {
		var err error
		rows, err = a.api.GetValues(ctx, rng)
		return err
	})
	if errors.Is(err, domain.ErrTableMissing) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// appendRow appends one encoded row, creating the table first if needed.
func (a *Adapter) appendRow(ctx context.Context, logical string, row []interface{}) error {
	title, err := a.ensureTable(ctx, logical)
	if err != nil {
		return err
	}

	rng := fmt.Sprintf("%s!A1", title)
	if err := a.call(ctx, "AppendRow "+title, func(ctx context.Context) error {
		return a.api.AppendValues(ctx, rng, [][]interface{}{row})
	}); err != nil {
		return err
	}

	// The appended row lands below any cached locations; drop the table's
	// location cache rather than guessing the index.
	a.mu.Lock()
	delete(a.rowIndex, title)
	a.mu.Unlock()
	return nil
}

// locateRow finds the 1-based sheet row whose first column equals id,
// reading and caching the whole ID column on a miss. Returns 0 when absent.
func (a *Adapter) locateRow(ctx context.Context, title, id string) (int, error) {
	a.mu.Lock()
	if idx, ok := a.rowIndex[title]; ok {
		row := idx[id]
		a.mu.Unlock()
		return row, nil
	}
	a.mu.Unlock()

	rows, err := a.readIDColumn(ctx, title)
	if err != nil {
		return 0, err
	}

	idx := make(map[string]int, len(rows))
	for i, r := range rows {
		if key := cellString(r, 0); key != "" {
			idx[key] = i + 2 // data starts on sheet row 2
		}
	}

	a.mu.Lock()
	a.rowIndex[title] = idx
	a.mu.Unlock()
	return idx[id], nil
}

func (a *Adapter) readIDColumn(ctx context.Context, title string) ([][]interface{}, error) {
	var rows [][]interface{}
	rng := fmt.Sprintf("%s!A2:A", title)
	err := a.call(ctx, "ReadIDs "+title, func(ctx context.Context) error {
		var err error
		rows, err = a.api.GetValues(ctx, rng)
		return err
	})
	if errors.Is(err, domain.ErrTableMissing) {
		return nil, nil
	}
	return rows, err
}

// updateRowByID locates the row carrying id and overwrites it in place.
// No matching row is a no-op, not an error.
func (a *Adapter) updateRowByID(ctx context.Context, logical, id string, row []interface{}) error {
	title, err := a.resolveTableName(ctx, logical)
	if err != nil {
		return err
	}

	sheetRow, err := a.locateRow(ctx, title, id)
	if err != nil {
		return err
	}
	if sheetRow == 0 {
		a.log.Debug().Str("table", title).Str("id", id).Msg("Update target not found, skipping")
		return nil
	}

	rng := fmt.Sprintf("%s!A%d", title, sheetRow)
	return a.call(ctx, "UpdateRow "+title, func(ctx context.Context) error {
		return a.api.UpdateValues(ctx, rng, [][]interface{}{row})
	})
}

// deleteRowByID locates the row carrying id and blanks it. Readers skip
// blank rows, so the table never shifts under cached locations.
func (a *Adapter) deleteRowByID(ctx context.Context, logical, id string) error {
	title, err := a.resolveTableName(ctx, logical)
	if err != nil {
		return err
	}

	sheetRow, err := a.locateRow(ctx, title, id)
	if err != nil {
		return err
	}
	if sheetRow == 0 {
		a.log.Debug().Str("table", title).Str("id", id).Msg("Delete target not found, skipping")
		return nil
	}

	rng := fmt.Sprintf("%s!A%d:Z%d", title, sheetRow, sheetRow)
	if err := a.call(ctx, "DeleteRow "+title, func(ctx context.Context) error {
		return a.api.ClearValues(ctx, rng)
	}); err != nil {
		return err
	}

	a.mu.Lock()
	if idx, ok := a.rowIndex[title]; ok {
		delete(idx, id)
	}
	a.mu.Unlock()
	return nil
}

func rowOfStrings(cells []string) []interface{} {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
