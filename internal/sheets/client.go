package sheets

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/spec-kit/verification-bot/internal/config"
	"github.com/spec-kit/verification-bot/internal/domain"
)

const valueInputUserEntered = "USER_ENTERED"

// Client reads and appends verification rows in a Google spreadsheet.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
	lookupRange   string
	appendRange   string
	logger        *zap.Logger
}

// New builds a client using an already authenticated HTTP client.
func New(ctx context.Context, httpClient *http.Client, cfg config.GoogleConfig, logger *zap.Logger) (*Client, error) {
	return NewWithOptions(ctx, cfg, logger, option.WithHTTPClient(httpClient))
}

// NewWithOptions builds a client from raw API options.
func NewWithOptions(ctx context.Context, cfg config.GoogleConfig, logger *zap.Logger, opts ...option.ClientOption) (*Client, error) {
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		lookupRange:   cfg.LookupRange,
		appendRange:   cfg.AppendRange,
		logger:        logger,
	}, nil
}

// ReadRange returns the rows of an A1 range.
func (c *Client) ReadRange(ctx context.Context, a1 string) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, a1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", a1, err)
	}
	return resp.Values, nil
}

// Exists reports whether any cell of the lookup range equals userID.
func (c *Client) Exists(ctx context.Context, userID string) (bool, error) {
	rows, err := c.ReadRange(ctx, c.lookupRange)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		for _, cell := range row {
			if s, ok := cell.(string); ok && s == userID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Append writes one verification row in a single call.
func (c *Client) Append(ctx context.Context, record domain.VerificationRecord) error {
	body := &gsheets.ValueRange{Values: [][]interface{}{record.Row()}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.appendRange, body).
		ValueInputOption(valueInputUserEntered).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if resp.Updates != nil {
		c.logger.Debug("record appended",
			zap.String("user_id", record.UserID),
			zap.String("updated_range", resp.Updates.UpdatedRange))
	}
	return nil
}
