package internal

import (
	"encoding/json"
	"net/http"
	"time"

	"gear-lending-api/internal/auth"
	"gear-lending-api/internal/booking"
	"gear-lending-api/internal/models"
)

// getSettings returns the effective operating settings, which fall back to
// the built-in defaults when the settings row cannot be read in time.
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Settings.Settings(r.Context()))
}

// updateSettings applies a partial update to the singleton settings row.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}

	current, err := s.Store.ReadSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to read settings"})
		return
	}

	if req.BookingEnabled != nil {
		current.BookingEnabled = *req.BookingEnabled
	}
	if req.OpeningTime != nil {
		if _, err := time.Parse(booking.TimeLayout, *req.OpeningTime); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "opening_time must be HH:MM", Code: "INVALID_TIME"})
			return
		}
		current.OpeningTime = *req.OpeningTime
	}
	if req.ClosingTime != nil {
		if _, err := time.Parse(booking.TimeLayout, *req.ClosingTime); err != nil {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "closing_time must be HH:MM", Code: "INVALID_TIME"})
			return
		}
		current.ClosingTime = *req.ClosingTime
	}
	if current.OpeningTime >= current.ClosingTime {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "opening time must be before closing time", Code: "INVALID_HOURS"})
		return
	}
	if req.ClosedWeekdays != nil {
		weekdays := make([]time.Weekday, 0, len(req.ClosedWeekdays))
		for _, d := range req.ClosedWeekdays {
			if d < 0 || d > 6 {
				writeJSON(w, http.StatusBadRequest, apiError{Error: "closed_weekdays values must be 0 (Sunday) through 6 (Saturday)", Code: "INVALID_WEEKDAY"})
				return
			}
			weekdays = append(weekdays, time.Weekday(d))
		}
		current.ClosedWeekdays = weekdays
	}
	if req.ClosedDates != nil {
		for _, d := range req.ClosedDates {
			if _, err := booking.ParseDate(d); err != nil {
				writeJSON(w, http.StatusBadRequest, apiError{Error: "closed_dates entries must be YYYY-MM-DD", Code: "INVALID_DATE"})
				return
			}
		}
		current.ClosedDates = req.ClosedDates
	}
	if req.MaxAdvanceDays != nil {
		if *req.MaxAdvanceDays < 0 {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "max_advance_days must not be negative", Code: "INVALID_ADVANCE"})
			return
		}
		current.MaxAdvanceDays = *req.MaxAdvanceDays
	}
	if req.Limits != nil {
		for role, limits := range req.Limits {
			if !models.IsValidRole(role) {
				writeJSON(w, http.StatusBadRequest, apiError{Error: "unknown role in limits: " + role, Code: "INVALID_ROLE"})
				return
			}
			if limits.MaxDays <= 0 || limits.MaxItems <= 0 {
				writeJSON(w, http.StatusBadRequest, apiError{Error: "limits must be positive for role " + role, Code: "INVALID_LIMITS"})
				return
			}
		}
		if current.Limits == nil {
			current.Limits = map[string]models.RoleLimits{}
		}
		for role, limits := range req.Limits {
			current.Limits[role] = limits
		}
	}

	if err := s.Store.WriteSettings(r.Context(), current); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to write settings"})
		return
	}

	actorID := auth.UserIDFromContext(r.Context())
	_ = s.Store.RecordActivity(r.Context(), models.StaffActivity{
		ActorID:    actorID,
		ActorRole:  auth.RoleFromContext(r.Context()),
		Action:     models.ActionEditSettings,
		TargetKind: models.TargetSettings,
		TargetID:   1,
	})

	updated, err := s.Store.ReadSettings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, current)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
