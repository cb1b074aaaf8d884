package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"gear-lending-api/pkg/exporter"
)

// ExportsHandler streams booking data out as an Excel workbook.
type ExportsHandler struct {
	DB *sql.DB
}

func NewExportsHandler(db *sql.DB) *ExportsHandler {
	return &ExportsHandler{DB: db}
}

// DownloadBookings writes all reservations and loans into an xlsx download.
// Optional query params: from and to (YYYY-MM-DD), status.
func (h *ExportsHandler) DownloadBookings(w http.ResponseWriter, r *http.Request) {
	opts := exporter.ExportOptions{
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "from must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		opts.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			http.Error(w, "to must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		opts.To = t
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bookings.xlsx"`)

	if err := exporter.ExportBookings(r.Context(), h.DB, w, opts); err != nil {
		// Headers are already out; all we can do is log via the error path
		http.Error(w, "export failed: "+err.Error(), http.StatusInternalServerError)
	}
}
