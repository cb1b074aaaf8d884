package exporter

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/tealeg/xlsx/v3"
)

// ExportOptions narrows the booking export.
type ExportOptions struct {
	From   time.Time // zero means no lower bound
	To     time.Time // zero means no upper bound
	Status string    // empty means all statuses
}

const dateLayout = "2006-01-02"

// ExportBookings writes reservations and loans into an xlsx workbook with
// one sheet per booking kind.
func ExportBookings(ctx context.Context, db *sql.DB, w io.Writer, opts ExportOptions) error {
	wb := xlsx.NewFile()

	if err := exportSheet(ctx, db, wb, "Reservations", reservationQuery, opts); err != nil {
		return fmt.Errorf("export reservations: %w", err)
	}
	if err := exportSheet(ctx, db, wb, "Loans", loanQuery, opts); err != nil {
		return fmt.Errorf("export loans: %w", err)
	}

	return wb.Write(w)
}

const reservationQuery = `
	SELECT r.reference, u.email, u.full_name, e.name, e.number, c.name,
	       r.start_date, r.end_date, r.status, COALESCE(r.rejection_reason, ''), r.created_at
	FROM reservations r
	JOIN users u ON u.id = r.user_id
	JOIN equipment e ON e.id = r.equipment_id
	JOIN categories c ON c.id = e.category_id
	WHERE ($1::date IS NULL OR r.start_date >= $1)
	  AND ($2::date IS NULL OR r.end_date <= $2)
	  AND ($3 = '' OR r.status = $3)
	ORDER BY r.created_at`

const loanQuery = `
	SELECT l.reference, u.email, u.full_name, e.name, e.number, c.name,
	       l.start_date, l.end_date, l.status, COALESCE(l.return_condition, ''), l.created_at
	FROM loans l
	JOIN users u ON u.id = l.user_id
	JOIN equipment e ON e.id = l.equipment_id
	JOIN categories c ON c.id = e.category_id
	WHERE ($1::date IS NULL OR l.start_date >= $1)
	  AND ($2::date IS NULL OR l.end_date <= $2)
	  AND ($3 = '' OR l.status = $3)
	ORDER BY l.created_at`

var exportHeaders = []string{
	"Reference", "User Email", "User Name", "Equipment", "Number", "Category",
	"Start Date", "End Date", "Status", "Detail", "Created At",
}

func exportSheet(ctx context.Context, db *sql.DB, wb *xlsx.File, name, query string, opts ExportOptions) error {
	sheet, err := wb.AddSheet(name)
	if err != nil {
		return err
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetString(h)
	}

	var from, to any
	if !opts.From.IsZero() {
		from = opts.From
	}
	if !opts.To.IsZero() {
		to = opts.To
	}

	rows, err := db.QueryContext(ctx, query, from, to, opts.Status)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			reference, email, fullName, equipment, number, category, status, detail string
			startDate, endDate, createdAt                                           time.Time
		)
		if err := rows.Scan(&reference, &email, &fullName, &equipment, &number, &category,
			&startDate, &endDate, &status, &detail, &createdAt); err != nil {
			return err
		}
		row := sheet.AddRow()
		row.AddCell().SetString(reference)
		row.AddCell().SetString(email)
		row.AddCell().SetString(fullName)
		row.AddCell().SetString(equipment)
		row.AddCell().SetString(number)
		row.AddCell().SetString(category)
		row.AddCell().SetString(startDate.Format(dateLayout))
		row.AddCell().SetString(endDate.Format(dateLayout))
		row.AddCell().SetString(status)
		row.AddCell().SetString(detail)
		row.AddCell().SetString(createdAt.Format(time.RFC3339))
	}
	return rows.Err()
}
