package rowstore

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsBackend talks to the Google Sheets v4 API. Each SpreadsheetType is
// bound to one spreadsheet document.
type SheetsBackend struct {
	svc          *sheets.Service
	spreadsheets map[SpreadsheetType]string

	mu       sync.Mutex
	sheetIDs map[string]int64
}

// NewSheetsBackend creates a client. With an empty credentialsFile the
// Application Default Credentials are used.
func NewSheetsBackend(ctx context.Context, credentialsFile string, spreadsheets map[SpreadsheetType]string) (*SheetsBackend, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewSheetsBackend: creating sheets service: %w", err)
	}
	return &SheetsBackend{
		svc:          svc,
		spreadsheets: spreadsheets,
		sheetIDs:     make(map[string]int64),
	}, nil
}

func (b *SheetsBackend) spreadsheetID(sheet SheetRef) (string, error) {
	id, ok := b.spreadsheets[sheet.Spreadsheet]
	if !ok || id == "" {
		return "", fmt.Errorf("no spreadsheet configured for %q", sheet.Spreadsheet)
	}
	return id, nil
}

// Get implements Backend.
func (b *SheetsBackend) Get(ctx context.Context, sheet SheetRef) ([][]string, error) {
	id, err := b.spreadsheetID(sheet)
	if err != nil {
		return nil, err
	}
	resp, err := b.svc.Spreadsheets.Values.Get(id, sheet.Range()).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("values.get %s: %w", sheet.Range(), err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	return out, nil
}

// Append implements Backend.
func (b *SheetsBackend) Append(ctx context.Context, sheet SheetRef, rows [][]string) error {
	id, err := b.spreadsheetID(sheet)
	if err != nil {
		return err
	}
	_, err = b.svc.Spreadsheets.Values.Append(id, sheet.Range(), valueRange(rows)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("values.append %s: %w", sheet.Range(), err)
	}
	return nil
}

// Update implements Backend.
func (b *SheetsBackend) Update(ctx context.Context, sheet SheetRef, rowIndex int, values []string) error {
	id, err := b.spreadsheetID(sheet)
	if err != nil {
		return err
	}
	rng := sheet.RowRange(rowIndex)
	_, err = b.svc.Spreadsheets.Values.Update(id, rng, valueRange([][]string{values})).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("values.update %s: %w", rng, err)
	}
	return nil
}

// DeleteRows implements Backend with a deleteDimension batch update.
func (b *SheetsBackend) DeleteRows(ctx context.Context, sheet SheetRef, r DeleteRange) error {
	id, err := b.spreadsheetID(sheet)
	if err != nil {
		return err
	}
	sheetID, err := b.sheetID(ctx, sheet)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(r.Start),
					EndIndex:        int64(r.End),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	if _, err := b.svc.Spreadsheets.BatchUpdate(id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("batchUpdate deleteDimension %s [%d,%d): %w", sheet, r.Start, r.End, err)
	}
	return nil
}

// CreateSheet implements SheetCreator. Existing tabs are left alone.
func (b *SheetsBackend) CreateSheet(ctx context.Context, sheet SheetRef) error {
	if _, err := b.sheetID(ctx, sheet); err == nil {
		return nil
	}
	id, err := b.spreadsheetID(sheet)
	if err != nil {
		return err
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: sheet.Name},
			},
		}},
	}
	resp, err := b.svc.Spreadsheets.BatchUpdate(id, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("batchUpdate addSheet %s: %w", sheet, err)
	}
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil {
		b.mu.Lock()
		b.sheetIDs[sheet.String()] = resp.Replies[0].AddSheet.Properties.SheetId
		b.mu.Unlock()
	}
	return nil
}

// sheetID resolves a tab title to its numeric id, caching every tab of the
// spreadsheet on first use.
func (b *SheetsBackend) sheetID(ctx context.Context, sheet SheetRef) (int64, error) {
	b.mu.Lock()
	if sid, ok := b.sheetIDs[sheet.String()]; ok {
		b.mu.Unlock()
		return sid, nil
	}
	b.mu.Unlock()

	id, err := b.spreadsheetID(sheet)
	if err != nil {
		return 0, err
	}
	doc, err := b.svc.Spreadsheets.Get(id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("spreadsheets.get %s: %w", id, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range doc.Sheets {
		if s.Properties == nil {
			continue
		}
		ref := SheetRef{Spreadsheet: sheet.Spreadsheet, Name: s.Properties.Title}
		b.sheetIDs[ref.String()] = s.Properties.SheetId
	}
	sid, ok := b.sheetIDs[sheet.String()]
	if !ok {
		return 0, fmt.Errorf("sheet %q not found in spreadsheet %s", sheet.Name, id)
	}
	return sid, nil
}

func valueRange(rows [][]string) *sheets.ValueRange {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		values[i] = cells
	}
	return &sheets.ValueRange{Values: values}
}

var (
	_ Backend      = (*SheetsBackend)(nil)
	_ SheetCreator = (*SheetsBackend)(nil)
)
