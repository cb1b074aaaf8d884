package internal

import (
	"net/http"
	"sync"

	"gear-lending-api/internal/models"
)

// summaryReport aggregates counts for the staff dashboard.
type summaryReport struct {
	PendingReservations int `json:"pending_reservations"`
	ActiveReservations  int `json:"active_reservations"`
	PendingLoans        int `json:"pending_loans"`
	ActiveLoans         int `json:"active_loans"`
	OverdueLoans        int `json:"overdue_loans"`
	EquipmentTotal      int `json:"equipment_total"`
	EquipmentAvailable  int `json:"equipment_available"`
	EquipmentBorrowed   int `json:"equipment_borrowed"`
	MaintenanceCount    int `json:"equipment_maintenance"`
	PendingUsers        int `json:"pending_users"`
}

// reportSummary fans out the independent count queries concurrently and
// fails the whole report if any one of them errors.
func (s *Server) reportSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var report summaryReport
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	count := func(dst *int, query string, args ...any) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.DB.QueryRowContext(ctx, query, args...).Scan(dst); err != nil {
				errCh <- err
			}
		}()
	}

	count(&report.PendingReservations,
		`SELECT COUNT(*) FROM reservations WHERE status = $1`, string(models.ReservationPending))
	count(&report.ActiveReservations,
		`SELECT COUNT(*) FROM reservations WHERE status IN ($1, $2)`,
		string(models.ReservationApproved), string(models.ReservationReady))
	count(&report.PendingLoans,
		`SELECT COUNT(*) FROM loans WHERE status = $1`, string(models.LoanPending))
	count(&report.ActiveLoans,
		`SELECT COUNT(*) FROM loans WHERE status = $1`, string(models.LoanApproved))
	count(&report.OverdueLoans,
		`SELECT COUNT(*) FROM loans WHERE status = $1 AND end_date < CURRENT_DATE`, string(models.LoanApproved))
	count(&report.EquipmentTotal, `SELECT COUNT(*) FROM equipment`)
	count(&report.EquipmentAvailable,
		`SELECT COUNT(*) FROM equipment WHERE status = $1`, string(models.EquipmentAvailable))
	count(&report.EquipmentBorrowed,
		`SELECT COUNT(*) FROM equipment WHERE status = $1`, string(models.EquipmentBorrowed))
	count(&report.MaintenanceCount,
		`SELECT COUNT(*) FROM equipment WHERE status = $1`, string(models.EquipmentMaintenance))
	count(&report.PendingUsers,
		`SELECT COUNT(*) FROM users WHERE status = $1`, models.UserPending)

	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to build summary report"})
		return
	}

	writeJSON(w, http.StatusOK, report)
}
