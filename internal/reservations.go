package internal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gear-lending-api/internal/auth"
	"gear-lending-api/internal/booking"
	"gear-lending-api/internal/models"
)

func principalFrom(r *http.Request) booking.Principal {
	return booking.Principal{
		ID:   auth.UserIDFromContext(r.Context()),
		Role: auth.RoleFromContext(r.Context()),
	}
}

// bookingResponse wraps a created booking with the validator's non-blocking
// warnings (approaching limits etc.) so the client can surface them.
type bookingResponse struct {
	Reservation *models.Reservation `json:"reservation,omitempty"`
	Loan        *models.Loan        `json:"loan,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
}

func (s *Server) createReservation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}

	res, checked, err := s.Booking.SubmitReservation(r.Context(), principalFrom(r), req)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	resp := bookingResponse{Reservation: &res}
	if checked != nil {
		resp.Warnings = checked.Warnings
	}
	writeJSON(w, http.StatusCreated, resp)
}

// listReservations shows the caller's own bookings. Staff may pass
// user_id=N to inspect another user's, or all=true for the full queue.
func (s *Server) listReservations(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	params := parseListParams(r)

	filter := bookingFilter{
		userID: p.ID,
		status: params.status,
		limit:  params.limit,
		offset: params.offset,
	}
	if p.Staff() {
		if r.URL.Query().Get("all") == "true" {
			filter.userID = 0
		}
		if uid, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64); err == nil && uid > 0 {
			filter.userID = uid
		}
		if eid, err := strconv.ParseInt(r.URL.Query().Get("equipment_id"), 10, 64); err == nil && eid > 0 {
			filter.equipmentID = eid
		}
	}

	items, err := s.Store.ListReservations(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to list reservations"})
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items), Limit: params.limit, Offset: params.offset})
}

func (s *Server) getReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid reservation id", Code: "INVALID_ID"})
		return
	}
	p := principalFrom(r)

	res, err := s.Store.ReservationByID(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	if res.UserID != p.ID && !p.Staff() {
		writeBookingError(w, booking.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) cancelReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid reservation id", Code: "INVALID_ID"})
		return
	}
	if err := s.Booking.CancelReservation(r.Context(), principalFrom(r), id); err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.ReservationCancelled)})
}

func decodeBulk(w http.ResponseWriter, r *http.Request) (models.BulkDecisionRequest, bool) {
	var req models.BulkDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return req, false
	}
	if len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "ids must not be empty", Code: "EMPTY_IDS"})
		return req, false
	}
	return req, true
}

func (s *Server) approveReservations(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	results, err := s.Booking.ApproveReservations(r.Context(), principalFrom(r), req.IDs)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) rejectReservations(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	results, err := s.Booking.RejectReservations(r.Context(), principalFrom(r), req.IDs, req.Reason)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) rejectReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid reservation id", Code: "INVALID_ID"})
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}
	if err := s.Booking.RejectReservation(r.Context(), principalFrom(r), id, body.Reason); err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.ReservationRejected)})
}

func (s *Server) convertReservation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid reservation id", Code: "INVALID_ID"})
		return
	}
	loan, err := s.Booking.ConvertReservation(r.Context(), principalFrom(r), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}
