package internal

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gear-lending-api/internal/booking"
	"gear-lending-api/internal/models"
)

func (s *Server) createLoan(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}

	loan, checked, err := s.Booking.SubmitLoan(r.Context(), principalFrom(r), req)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	resp := bookingResponse{Loan: &loan}
	if checked != nil {
		resp.Warnings = checked.Warnings
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) listLoans(w http.ResponseWriter, r *http.Request) {
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

	items, err := s.Store.ListLoans(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to list loans"})
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: len(items), Limit: params.limit, Offset: params.offset})
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid loan id", Code: "INVALID_ID"})
		return
	}
	p := principalFrom(r)

	loan, err := s.Store.LoanByID(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	if loan.UserID != p.ID && !p.Staff() {
		writeBookingError(w, booking.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) approveLoans(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	results, err := s.Booking.ApproveLoans(r.Context(), principalFrom(r), req.IDs)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) rejectLoans(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeBulk(w, r)
	if !ok {
		return
	}
	results, err := s.Booking.RejectLoans(r.Context(), principalFrom(r), req.IDs, req.Reason)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) rejectLoan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid loan id", Code: "INVALID_ID"})
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}
	if err := s.Booking.RejectLoan(r.Context(), principalFrom(r), id, body.Reason); err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.LoanRejected)})
}

func (s *Server) processReturn(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid loan id", Code: "INVALID_ID"})
		return
	}
	var req models.ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}
	loan, err := s.Booking.ProcessReturn(r.Context(), principalFrom(r), id, req)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}
