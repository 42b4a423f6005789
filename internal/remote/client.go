package remote

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// RowAPI is the minimal spreadsheet surface the adapter needs. The concrete
// implementation wraps the Sheets SDK; tests substitute an in-memory fake.
type RowAPI interface {
	// SheetTitles lists the titles of every sheet in the spreadsheet.
	SheetTitles(ctx context.Context) ([]string, error)

	// AddSheet creates a new empty sheet with the given title.
	AddSheet(ctx context.Context, title string) error

	// GetValues reads a range in A1 notation, e.g. "Transactions!A2:I".
	GetValues(ctx context.Context, rng string) ([][]interface{}, error)

	// AppendValues appends rows after the last non-empty row of the range.
	AppendValues(ctx context.Context, rng string, rows [][]interface{}) error

	// UpdateValues overwrites the range with the given rows.
	UpdateValues(ctx context.Context, rng string, rows [][]interface{}) error

	// ClearValues blanks the range, leaving the row in place.
	ClearValues(ctx context.Context, rng string) error
}

// SheetsClient is the concrete RowAPI backed by the Google Sheets API.
type SheetsClient struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewSheetsClient builds a Sheets-backed client for one spreadsheet, pulling
// access tokens from the credential source.
func NewSheetsClient(ctx context.Context, creds CredentialSource, spreadsheetID string) (*SheetsClient, error) {
	svc, err := sheets.NewService(ctx, option.WithTokenSource(tokenSource{ctx: ctx, creds: creds}))
	if err != nil {
		return nil, fmt.Errorf("NewSheetsClient: sheets service: %w", err)
	}

	return &SheetsClient{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// SheetTitles lists sheet titles without fetching cell data.
func (c *SheetsClient) SheetTitles(ctx context.Context) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("SheetTitles: %w", translateAPIError(err))
	}

	titles := make([]string, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties != nil {
			titles = append(titles, s.Properties.Title)
		}
	}
	return titles, nil
}

// AddSheet creates an empty sheet with the given title.
func (c *SheetsClient) AddSheet(ctx context.Context, title string) error {
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}

	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("AddSheet %q: %w", title, translateAPIError(err))
	}
	return nil
}

// GetValues reads a range in A1 notation.
func (c *SheetsClient) GetValues(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("GetValues %q: %w", rng, translateAPIError(err))
	}
	return resp.Values, nil
}

// AppendValues appends rows after the table in the given range.
func (c *SheetsClient) AppendValues(ctx context.Context, rng string, rows [][]interface{}) error {
	body := &sheets.ValueRange{Values: rows}
	// RAW keeps cells exactly as the codec emits them. USER_ENTERED would
	// coerce date strings into date cells, which unformatted reads then
	// return as serial numbers instead of the strings written.
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, body).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("AppendValues %q: %w", rng, translateAPIError(err))
	}
	return nil
}

// UpdateValues overwrites the given range.
func (c *SheetsClient) UpdateValues(ctx context.Context, rng string, rows [][]interface{}) error {
	body := &sheets.ValueRange{Values: rows}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, body).
		ValueInputOption("RAW").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("UpdateValues %q: %w", rng, translateAPIError(err))
	}
	return nil
}

// ClearValues blanks the given range.
func (c *SheetsClient) ClearValues(ctx context.Context, rng string) error {
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("ClearValues %q: %w", rng, translateAPIError(err))
	}
	return nil
}

var _ RowAPI = (*SheetsClient)(nil)
