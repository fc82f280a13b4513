// Package ingest loads provider panel extracts from CSV or Excel files
// into panel records. It maps flexible column headers, validates the
// required schema, derives supersector and size class, and detects which
// optional capabilities the extract supports.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "panelrep/internal/errors"
	"panelrep/internal/panel"
)

// Result is a loaded panel with its detected capabilities.
type Result struct {
	Records      []panel.Record
	Capabilities panel.Capabilities
}

// Required columns; the remaining columns are optional capabilities.
var requiredColumns = []string{"client_id", "period", "naics", "state_fips", "employment"}

// Column header aliases, lowercase. Provider exports are not consistent
// about naming.
var headerAliases = map[string]string{
	"client_id":    "client_id",
	"clientid":     "client_id",
	"company_id":   "client_id",
	"period":       "period",
	"month":        "period",
	"ref_month":    "period",
	"naics":        "naics",
	"naics_code":   "naics",
	"industry":     "naics",
	"state_fips":   "state_fips",
	"state":        "state_fips",
	"fips":         "state_fips",
	"employment":   "employment",
	"emp":          "employment",
	"headcount":    "employment",
	"gross_pay":    "gross_pay",
	"pay":          "gross_pay",
	"wages":        "gross_pay",
	"formation":    "formation",
	"is_new":       "formation",
	"new_business": "formation",
	"worker_ids":   "worker_ids",
	"workers":      "worker_ids",
	"filing_date":  "filing_date",
	"filed_at":     "filing_date",
}

// Load reads a panel extract. The file extension selects the format:
// .xlsx goes through the Excel reader, everything else is treated as CSV.
func Load(path string, logger *slog.Logger) (*Result, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		rows, err = readExcel(path, logger)
	default:
		rows, err = readCSV(path)
	}
	if err != nil {
		return nil, err
	}
	return FromRows(rows, logger)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read panel csv: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readExcel(path string, logger *slog.Logger) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open panel workbook: %w", err)
	}
	defer f.Close()

	// Use the first sheet whose header row carries the required columns.
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) == 0 {
			continue
		}
		if _, missing := mapHeader(rows[0]); len(missing) == 0 {
			logger.Info("found panel data sheet",
				slog.String("sheet_name", name),
				slog.Int("total_rows", len(rows)))
			return rows, nil
		}
	}
	return nil, fmt.Errorf("no sheet in %s carries the panel schema", filepath.Base(path))
}

// FromRows converts raw rows (header first) into panel records.
func FromRows(rows [][]string, logger *slog.Logger) (*Result, error) {
	if len(rows) == 0 {
		return nil, &apperrors.SchemaError{Dataset: "panel extract", Missing: requiredColumns}
	}

	cols, missing := mapHeader(rows[0])
	if len(missing) > 0 {
		return nil, &apperrors.SchemaError{Dataset: "panel extract", Missing: missing}
	}

	caps := panel.Capabilities{}
	if _, ok := cols["gross_pay"]; ok {
		caps.HasPay = true
	}
	if _, ok := cols["worker_ids"]; ok {
		caps.HasWorkerIDs = true
	}
	if _, ok := cols["formation"]; ok {
		caps.HasFormation = true
	}
	if _, ok := cols["filing_date"]; ok {
		caps.HasFiling = true
	}

	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var records []panel.Record
	seen := make(map[string]bool)
	var duplicates []string
	skipped := 0
	for i, row := range rows[1:] {
		id := field(row, "client_id")
		rawPeriod := field(row, "period")
		if id == "" || rawPeriod == "" {
			skipped++
			continue
		}
		period, err := panel.ParsePeriod(rawPeriod)
		if err != nil {
			logger.Warn("skipping row with unparseable period",
				slog.Int("row", i+2),
				slog.String("period", rawPeriod))
			skipped++
			continue
		}
		emp, err := strconv.ParseInt(field(row, "employment"), 10, 64)
		if err != nil {
			logger.Warn("skipping row with unparseable employment",
				slog.Int("row", i+2),
				slog.String("client_id", id))
			skipped++
			continue
		}

		key := id + "|" + period.String()
		if seen[key] {
			if len(duplicates) == 0 || duplicates[len(duplicates)-1] != key {
				duplicates = append(duplicates, key)
			}
			continue
		}
		seen[key] = true

		naics := panel.NormalizeNAICS(field(row, "naics"))
		rec := panel.Record{
			ClientID:    id,
			Period:      period,
			NAICS:       naics,
			Supersector: panel.Supersector(naics),
			StateFIPS:   normalizeFIPS(field(row, "state_fips")),
			SizeClass:   panel.SizeClass(emp),
			Employment:  emp,
		}
		if caps.HasPay {
			if v, err := strconv.ParseFloat(field(row, "gross_pay"), 64); err == nil {
				rec.GrossPay = v
			}
		}
		if caps.HasFormation {
			rec.Formation = parseFormation(field(row, "formation"))
		}
		if caps.HasWorkerIDs {
			if raw := field(row, "worker_ids"); raw != "" {
				rec.WorkerIDs = splitWorkerIDs(raw)
			}
		}
		records = append(records, rec)
	}

	// Each (client, period) pair occurs at most once; a duplicate means the
	// extract is malformed, not that one of the rows can be trusted.
	if len(duplicates) > 0 {
		return nil, &apperrors.DuplicateRecordError{Dataset: "panel extract", Keys: duplicates}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].ClientID != records[j].ClientID {
			return records[i].ClientID < records[j].ClientID
		}
		return records[i].Period.Before(records[j].Period)
	})
	panel.DeriveEntryExit(records)

	logger.Info("panel extract loaded",
		slog.Int("records", len(records)),
		slog.Int("skipped", skipped),
		slog.Bool("has_pay", caps.HasPay),
		slog.Bool("has_worker_ids", caps.HasWorkerIDs),
		slog.Bool("has_formation", caps.HasFormation))

	return &Result{Records: records, Capabilities: caps}, nil
}

// mapHeader resolves aliased header names to canonical column indexes and
// reports required columns that are absent.
func mapHeader(header []string) (map[string]int, []string) {
	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[name]; ok {
			if _, dup := cols[canonical]; !dup {
				cols[canonical] = i
			}
		}
	}
	var missing []string
	for _, req := range requiredColumns {
		if _, ok := cols[req]; !ok {
			missing = append(missing, req)
		}
	}
	return cols, missing
}

func normalizeFIPS(s string) string {
	if s == "" {
		return ""
	}
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func parseFormation(s string) panel.FormationFlag {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y":
		return panel.FormationTrue
	case "0", "false", "f", "no", "n":
		return panel.FormationFalse
	default:
		return panel.FormationUnknown
	}
}

func splitWorkerIDs(raw string) []string {
	parts := strings.Split(raw, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
