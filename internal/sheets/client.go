package sheets

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Client is the part of the Sheets API used by the mirror. Rows are
// 1-based like in the spreadsheet UI.
type Client interface {
	ReadColumn(ctx context.Context, column string) ([]string, error)
	UpdateRow(ctx context.Context, row int, values []any) error
	AppendRow(ctx context.Context, values []any) (int, error)
}

type apiClient struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheet         string
}

// NewClient authenticates with a service account key file.
func NewClient(ctx context.Context, credentialsFile, spreadsheetID, sheet string) (Client, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, gsheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := gsheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if sheet == "" {
		sheet = "Agendamentos"
	}
	return &apiClient{svc: svc, spreadsheetID: spreadsheetID, sheet: sheet}, nil
}

func (c *apiClient) ReadColumn(ctx context.Context, column string) ([]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, fmt.Sprintf("%s!%s:%s", c.sheet, column, column)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read column %s: %w", column, err)
	}
	out := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			out[i] = fmt.Sprint(row[0])
		}
	}
	return out, nil
}

func (c *apiClient) UpdateRow(ctx context.Context, row int, values []any) error {
	rng := fmt.Sprintf("%s!A%d", c.sheet, row)
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheets.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	return nil
}

func (c *apiClient) AppendRow(ctx context.Context, values []any) (int, error) {
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.sheet+"!A1", &gsheets.ValueRange{Values: [][]any{values}}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("append row: %w", err)
	}
	if resp.Updates == nil {
		return 0, nil
	}
	return rowOfRange(resp.Updates.UpdatedRange), nil
}

// rowOfRange extracts the first row number of an A1 range such as
// "Agendamentos!A5:J5". It returns 0 when there is none.
func rowOfRange(rng string) int {
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		rng = rng[i+1:]
	}
	if i := strings.Index(rng, ":"); i >= 0 {
		rng = rng[:i]
	}
	digits := strings.TrimLeft(rng, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
