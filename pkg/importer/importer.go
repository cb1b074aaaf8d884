package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tealeg/xlsx/v3"
	"gopkg.in/yaml.v3"
)

// ImportOptions defines the configuration for Excel equipment imports
type ImportOptions struct {
	MappingPath string // default "configs/mapping/equipment.yaml"
	DryRun      bool
	MaxErrors   int // default 50
}

// RowError represents an error that occurred during row processing
type RowError struct {
	Sheet   string `json:"sheet"`
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// SheetSummary contains the import statistics for a single sheet
type SheetSummary struct {
	Name     string     `json:"name"`
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   int        `json:"errors"`
	Samples  []RowError `json:"error_samples,omitempty"`
}

// ImportSummary contains the overall import statistics
type ImportSummary struct {
	Inserted int            `json:"inserted"`
	Updated  int            `json:"updated"`
	Skipped  int            `json:"skipped"`
	Errors   int            `json:"errors"`
	Sheets   []SheetSummary `json:"sheets"`
	DryRun   bool           `json:"dry_run"`
}

// MappingConfig is the YAML mapping configuration. It names the sheets to
// read and maps spreadsheet headers to equipment fields.
type MappingConfig struct {
	Version int                    `yaml:"version"`
	Sheets  map[string]SheetConfig `yaml:"sheets"`
}

type SheetConfig struct {
	// Columns maps logical fields (name, number, category, status, notes)
	// to the expected header text.
	Columns map[string]string `yaml:"columns"`
	// Aliases lists alternative header spellings per logical field.
	Aliases map[string][]string `yaml:"aliases"`
	// DefaultStatus applies when the sheet has no status column.
	DefaultStatus string `yaml:"default_status"`
}

// ImportExcel reads an equipment spreadsheet and upserts rows keyed by the
// equipment number. Unknown categories are created on the fly.
func ImportExcel(ctx context.Context, db *pgxpool.Pool, r io.Reader, opts ImportOptions) (ImportSummary, error) {
	summary := ImportSummary{
		DryRun: opts.DryRun,
		Sheets: []SheetSummary{},
	}

	if opts.MappingPath == "" {
		opts.MappingPath = "configs/mapping/equipment.yaml"
	}
	if opts.MaxErrors == 0 {
		opts.MaxErrors = 50
	}

	mapping, err := loadMappingConfig(opts.MappingPath)
	if err != nil {
		return summary, fmt.Errorf("failed to load mapping config: %w", err)
	}

	// xlsx needs an io.ReaderAt, so buffer the upload first
	data, err := io.ReadAll(r)
	if err != nil {
		return summary, fmt.Errorf("failed to read Excel file: %w", err)
	}
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return summary, fmt.Errorf("failed to open Excel file: %w", err)
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	defer conn.Release()

	for _, sheet := range xlFile.Sheets {
		sheetConfig, exists := mapping.Sheets[sheet.Name]
		if !exists {
			continue // Skip sheets without mapping
		}

		sheetSummary := processSheet(ctx, conn, sheet, sheetConfig, opts)
		summary.Sheets = append(summary.Sheets, sheetSummary)

		summary.Inserted += sheetSummary.Inserted
		summary.Updated += sheetSummary.Updated
		summary.Skipped += sheetSummary.Skipped
		summary.Errors += sheetSummary.Errors

		if summary.Errors > opts.MaxErrors {
			return summary, fmt.Errorf("too many errors (%d), stopping import", summary.Errors)
		}
	}

	return summary, nil
}

func loadMappingConfig(path string) (*MappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultMappingConfig(), nil
		}
		return nil, err
	}
	var cfg MappingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Sheets) == 0 {
		return nil, fmt.Errorf("mapping %s defines no sheets", path)
	}
	return &cfg, nil
}

func defaultMappingConfig() *MappingConfig {
	return &MappingConfig{
		Version: 1,
		Sheets: map[string]SheetConfig{
			"Equipment": {
				Columns: map[string]string{
					"name":     "Name",
					"number":   "Number",
					"category": "Category",
					"status":   "Status",
					"notes":    "Notes",
				},
				Aliases: map[string][]string{
					"number":   {"Asset Number", "Code", "Tag"},
					"category": {"Type", "Equipment Type"},
				},
				DefaultStatus: "available",
			},
		},
	}
}

var validImportStatuses = map[string]bool{
	"available":   true,
	"borrowed":    true,
	"maintenance": true,
	"retired":     true,
}

type equipmentRow struct {
	name     string
	number   string
	category string
	status   string
	notes    string
}

func processSheet(ctx context.Context, conn *pgxpool.Conn, sheet *xlsx.Sheet, config SheetConfig, opts ImportOptions) SheetSummary {
	summary := SheetSummary{Name: sheet.Name}

	headerRow, err := sheet.Row(0)
	if err != nil {
		summary.Errors++
		summary.Samples = append(summary.Samples, RowError{
			Sheet:   sheet.Name,
			Row:     1,
			Message: "Failed to read header row: " + err.Error(),
		})
		return summary
	}

	// field -> column index, resolved through the configured headers and
	// their aliases
	fieldCols := map[string]int{}
	colIdx := 0
	for {
		cell := headerRow.GetCell(colIdx)
		if cell == nil {
			break
		}
		headerName := strings.TrimSpace(cell.String())
		if headerName == "" {
			colIdx++
			continue
		}
		for field, expected := range config.Columns {
			if strings.EqualFold(expected, headerName) {
				fieldCols[field] = colIdx
			}
			for _, alias := range config.Aliases[field] {
				if strings.EqualFold(alias, headerName) {
					fieldCols[field] = colIdx
				}
			}
		}
		colIdx++
	}

	if _, ok := fieldCols["number"]; !ok {
		summary.Errors++
		summary.Samples = append(summary.Samples, RowError{
			Sheet:   sheet.Name,
			Row:     1,
			Message: "sheet has no equipment number column",
		})
		return summary
	}

	cellAt := func(row *xlsx.Row, field string) string {
		idx, ok := fieldCols[field]
		if !ok {
			return ""
		}
		cell := row.GetCell(idx)
		if cell == nil {
			return ""
		}
		return strings.TrimSpace(cell.String())
	}

	rowIdx := 1
	for {
		row, err := sheet.Row(rowIdx)
		if err != nil {
			break // No more rows
		}

		rec := equipmentRow{
			name:     cellAt(row, "name"),
			number:   cellAt(row, "number"),
			category: cellAt(row, "category"),
			status:   strings.ToLower(cellAt(row, "status")),
			notes:    cellAt(row, "notes"),
		}
		if rec.name == "" && rec.number == "" {
			summary.Skipped++
			rowIdx++
			continue
		}

		if err := validateRow(rec); err != nil {
			summary.Errors++
			summary.Samples = append(summary.Samples, RowError{
				Sheet:   sheet.Name,
				Row:     rowIdx + 1,
				Message: err.Error(),
			})
			rowIdx++
			continue
		}
		if rec.status == "" {
			rec.status = config.DefaultStatus
			if rec.status == "" {
				rec.status = "available"
			}
		}

		inserted, err := upsertEquipment(ctx, conn, rec, opts.DryRun)
		if err != nil {
			summary.Errors++
			summary.Samples = append(summary.Samples, RowError{
				Sheet:   sheet.Name,
				Row:     rowIdx + 1,
				Message: err.Error(),
			})
			rowIdx++
			continue
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Updated++
		}
		rowIdx++
	}

	return summary
}

func validateRow(rec equipmentRow) error {
	if rec.number == "" {
		return errors.New("equipment number is required")
	}
	if rec.name == "" {
		return errors.New("equipment name is required")
	}
	if rec.category == "" {
		return errors.New("category is required")
	}
	if rec.status != "" && !validImportStatuses[rec.status] {
		return fmt.Errorf("unknown status %q", rec.status)
	}
	return nil
}

// upsertEquipment writes one row, creating the category if it does not exist
// yet. Returns true when a new equipment row was inserted.
func upsertEquipment(ctx context.Context, conn *pgxpool.Conn, rec equipmentRow, dryRun bool) (bool, error) {
	var existingID int64
	err := conn.QueryRow(ctx,
		`SELECT id FROM equipment WHERE number = $1`, rec.number).Scan(&existingID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	exists := err == nil

	if dryRun {
		return !exists, nil
	}

	var categoryID int64
	err = conn.QueryRow(ctx, `
		INSERT INTO categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, rec.category).Scan(&categoryID)
	if err != nil {
		return false, fmt.Errorf("resolve category %q: %w", rec.category, err)
	}

	if exists {
		_, err = conn.Exec(ctx, `
			UPDATE equipment
			SET name = $1, category_id = $2, status = $3, notes = NULLIF($4, ''), updated_at = now()
			WHERE id = $5`,
			rec.name, categoryID, rec.status, rec.notes, existingID)
		return false, err
	}

	_, err = conn.Exec(ctx, `
		INSERT INTO equipment (name, number, category_id, status, notes)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		rec.name, rec.number, categoryID, rec.status, rec.notes)
	return true, err
}
