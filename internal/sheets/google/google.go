package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"costmanager/internal/core"
	ports "costmanager/internal/sheets"
)

// Config identifies the target sheet and the service account to use.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ports.CostWriter = (*Client)(nil)

// New creates a Sheets client authenticated with service account
// credentials. Inline JSON takes precedence over the file.
func New(ctx context.Context, cfg Config) (*Client, error) {
	creds, err := loadCredentials(cfg)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(creds),
		"scope", gsheet.SpreadsheetsScope)

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg)
}

// NewWithService wraps an already configured service.
func NewWithService(svc *gsheet.Service, cfg Config) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = "Costs"
	}
	return &Client{svc: svc, spreadsheetID: id, sheetName: name}, nil
}

func loadCredentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// CostRow lays an entry out in export column order:
// year, month, day, sum, currency, category, description, id.
func CostRow(e core.CostEntry) []any {
	return []any{
		e.CreatedDate.Year,
		e.CreatedDate.Month,
		e.CreatedDate.Day,
		e.Sum,
		e.Currency,
		e.Category,
		e.Description,
		e.ID,
	}
}

func (c *Client) rangeOf(cols string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(c.sheetName, "'", "''"), cols)
}

// AppendCost appends the entry unless its id is already in column H, so a
// redelivered message does not produce a duplicate row.
func (c *Client) AppendCost(ctx context.Context, e core.CostEntry) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	exists, err := c.hasID(ctx, e.ID)
	if err != nil {
		return err
	}
	if exists {
		slog.InfoContext(ctx, "Cost already exported, skipping", "id", e.ID, "sheet", c.sheetName)
		return nil
	}

	vr := &gsheet.ValueRange{Values: [][]any{CostRow(e)}}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.rangeOf("A:H"), vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	slog.InfoContext(ctx, "Cost exported", "id", e.ID, "sheet", c.sheetName)
	return nil
}

func (c *Client) hasID(ctx context.Context, id int64) (bool, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.rangeOf("H:H")).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("read ids from sheet %s: %w", c.sheetName, err)
	}
	want := strconv.FormatInt(id, 10)
	for _, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == want {
			return true, nil
		}
	}
	return false, nil
}
