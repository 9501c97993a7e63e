// Package sheets reads categories from a Google Sheets range. Each row is
// id | name | emoji | income, where income is a truthy cell ("true", "yes", "x", "1").
// A header row is skipped when its first cell is not a number.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type Config struct {
	SpreadsheetID string
	// Range in A1 notation, e.g. "Categories!A2:D".
	Range              string
	ServiceAccountJSON string
	ServiceAccountFile string
	Logger             *log.Logger
	// Options replace the credential options; used to point the client at a test server.
	Options []goption.ClientOption
}

type Source struct {
	svc           *gsheet.Service
	spreadsheetID string
	rng           string
	logger        *log.Logger
}

func New(ctx context.Context, cfg Config) (*Source, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(cfg.Range) == "" {
		return nil, errors.New("missing categories range")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}

	opts := cfg.Options
	if len(opts) == 0 {
		creds, err := credentials(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Source{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		rng:           cfg.Range,
		logger:        logger.WithComponent(log.ComponentCategories),
	}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		return []byte(cfg.ServiceAccountJSON), nil
	case strings.TrimSpace(cfg.ServiceAccountFile) != "":
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

func (s *Source) Categories(ctx context.Context) ([]core.Category, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read categories range %s: %w", s.rng, err)
	}
	cats, skipped := parseRows(resp.Values)
	for _, row := range skipped {
		s.logger.WarnContext(ctx, "Skipping malformed category row", "row", row)
	}
	return cats, nil
}

// parseRows converts a values matrix into categories. It returns the 1-based indexes of rows
// it could not use.
func parseRows(values [][]any) ([]core.Category, []int) {
	var (
		out     []core.Category
		skipped []int
		seen    = map[int64]bool{}
	)
	for i, raw := range values {
		row := toStrings(raw)
		if len(row) == 0 || strings.TrimSpace(safeGet(row, 0)) == "" {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(safeGet(row, 0)), 10, 64)
		if err != nil {
			if i == 0 {
				continue // header
			}
			skipped = append(skipped, i+1)
			continue
		}
		name := strings.TrimSpace(safeGet(row, 1))
		if id <= 0 || name == "" || seen[id] {
			skipped = append(skipped, i+1)
			continue
		}
		seen[id] = true
		out = append(out, core.Category{
			ID:       id,
			Name:     name,
			Emoji:    strings.TrimSpace(safeGet(row, 2)),
			IsIncome: truthy(safeGet(row, 3)),
		})
	}
	return out, skipped
}

func toStrings(row []any) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = fmt.Sprint(v)
	}
	return out
}

func safeGet(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "x", "1", "income":
		return true
	default:
		return false
	}
}
