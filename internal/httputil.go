package internal

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"gear-lending-api/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Rule  string `json:"rule,omitempty"`
}

// writeBookingError maps domain errors to HTTP statuses. Unknown errors
// become 500 without leaking internals.
func writeBookingError(w http.ResponseWriter, err error) {
	var ve *booking.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: ve.Message, Code: "VALIDATION_FAILED", Rule: ve.Rule})
		return
	}

	var ce *booking.ConflictError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusConflict, apiError{Error: ce.Message, Code: "BOOKING_CONFLICT"})
		return
	}

	var te *booking.InvalidTransitionError
	if errors.As(err, &te) {
		writeJSON(w, http.StatusConflict, apiError{Error: te.Error(), Code: "INVALID_TRANSITION"})
		return
	}

	var cpe *booking.CompensationError
	if errors.As(err, &cpe) {
		log.Printf("compensation failure: %v", cpe)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: cpe.Error(), Code: "COMPENSATION_FAILED"})
		return
	}

	switch {
	case errors.Is(err, booking.ErrForbidden):
		writeJSON(w, http.StatusForbidden, apiError{Error: "insufficient permissions", Code: "FORBIDDEN"})
	case errors.Is(err, booking.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: "not found", Code: "NOT_FOUND"})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "internal server error"})
	}
}
