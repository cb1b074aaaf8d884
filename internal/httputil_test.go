package internal

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gear-lending-api/internal/booking"
)

func TestWriteBookingError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantRule   string
	}{
		{
			name:       "validation failure",
			err:        &booking.ValidationError{Rule: "max_days", Message: "too long"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "VALIDATION_FAILED",
			wantRule:   "max_days",
		},
		{
			name:       "conflict",
			err:        &booking.ConflictError{Message: "unavailable"},
			wantStatus: http.StatusConflict,
			wantCode:   "BOOKING_CONFLICT",
		},
		{
			name:       "invalid transition",
			err:        &booking.InvalidTransitionError{Kind: "loan", From: "returned", To: "approved"},
			wantStatus: http.StatusConflict,
			wantCode:   "INVALID_TRANSITION",
		},
		{
			name:       "compensation failure",
			err:        &booking.CompensationError{Step: "complete_reservation", Cause: errors.New("boom")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "COMPENSATION_FAILED",
		},
		{
			name:       "forbidden",
			err:        booking.ErrForbidden,
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "not found",
			err:        booking.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "unknown error is opaque",
			err:        errors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeBookingError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var body apiError
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantRule, body.Rule)
			if tt.name == "unknown error is opaque" {
				assert.NotContains(t, body.Error, "pq:")
			}
		})
	}
}

func TestWriteBookingErrorWrapped(t *testing.T) {
	err := errors.Join(errors.New("context"), booking.ErrNotFound)
	rec := httptest.NewRecorder()
	writeBookingError(rec, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
