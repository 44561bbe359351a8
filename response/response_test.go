package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/courierauth"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJSONEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, "otp sent", map[string]string{"channel": "sms"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "otp sent", body["message"])
	assert.Equal(t, map[string]any{"channel": "sms"}, body["data"])
}

func TestErrorEnvelopeOmitsData(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "bad")

	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "bad", body["message"])
	assert.NotContains(t, body, "data")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{courierauth.ErrInvalidIdentifier, http.StatusBadRequest},
		{fmt.Errorf("%w: x", courierauth.ErrInvalidRequest), http.StatusBadRequest},
		{courierauth.ErrInvalidPurpose, http.StatusBadRequest},
		{courierauth.ErrInvalidToken, http.StatusUnauthorized},
		{courierauth.ErrTokenRevoked, http.StatusUnauthorized},
		{courierauth.ErrUnauthorized, http.StatusUnauthorized},
		{courierauth.ErrForbidden, http.StatusForbidden},
		{courierauth.ErrOTPNotFound, http.StatusNotFound},
		{courierauth.ErrAccountNotFound, http.StatusNotFound},
		{courierauth.ErrAccountExists, http.StatusConflict},
		{&courierauth.RateLimitError{Scope: "check"}, http.StatusTooManyRequests},
		{courierauth.ErrOTPAttemptsExceeded, http.StatusTooManyRequests},
		{courierauth.ErrStoreUnavailable, http.StatusInternalServerError},
		{courierauth.ErrDeliveryFailed, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestFromErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, fmt.Errorf("%w: dial tcp 10.0.0.5:5432: refused", courierauth.ErrStoreUnavailable))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "internal error", body["message"])
}

func TestFromErrorOTPMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, courierauth.ErrOTPNotFound)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "OTP not verified or expired", decode(t, rec)["message"])
}

func TestFromErrorRateLimit(t *testing.T) {
	reset := time.Now().Add(90 * time.Second)
	err := &courierauth.RateLimitError{
		Scope: "otp_request",
		Decision: courierauth.Decision{
			Allowed:    false,
			Count:      4,
			Limit:      3,
			Remaining:  0,
			RetryAfter: 89500 * time.Millisecond,
			ResetAt:    reset,
		},
	}

	rec := httptest.NewRecorder()
	FromError(rec, err)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	body := decode(t, rec)
	assert.Equal(t, "too many requests", body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["allowed"])
	assert.Equal(t, float64(4), data["count"])
	assert.Equal(t, float64(90), data["retry_after_seconds"])
	assert.Equal(t, "otp_request", data["scope"])
}
