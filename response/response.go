// Package response writes the JSON envelope every courierauth endpoint
// answers with:
//
//	{"status": "success" | "error", "message": "...", "data": ...}
//
// and maps engine errors onto HTTP status codes.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrEthical07/courierauth"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// APIResponse is the envelope. Data is omitted when nil.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RateLimitData is the data member of a 429 response.
type RateLimitData struct {
	Allowed           bool   `json:"allowed"`
	Count             int64  `json:"count"`
	Limit             int    `json:"limit"`
	Remaining         int    `json:"remaining"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
	Scope             string `json:"scope,omitempty"`
}

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, message string, data interface{}) {
	write(w, status, APIResponse{Status: StatusSuccess, Message: message, Data: data})
}

// Error writes an error envelope without data.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, APIResponse{Status: StatusError, Message: message})
}

// ErrorWithData writes an error envelope carrying data.
func ErrorWithData(w http.ResponseWriter, status int, message string, data interface{}) {
	write(w, status, APIResponse{Status: StatusError, Message: message, Data: data})
}

func write(w http.ResponseWriter, status int, body APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	var rlErr *courierauth.RateLimitError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &rlErr), errors.Is(err, courierauth.ErrRateLimited),
		errors.Is(err, courierauth.ErrOTPAttemptsExceeded):
		return http.StatusTooManyRequests
	case courierauth.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.Is(err, courierauth.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, courierauth.ErrOTPNotFound), errors.Is(err, courierauth.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, courierauth.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, courierauth.ErrInvalidRequest),
		errors.Is(err, courierauth.ErrInvalidIdentifier),
		errors.Is(err, courierauth.ErrInvalidPurpose),
		errors.Is(err, courierauth.ErrInvalidRole):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// FromError writes the envelope for err. Internal failures are reported
// with a generic message; rate limit rejections also get their headers.
func FromError(w http.ResponseWriter, err error) {
	status := StatusFor(err)

	var rlErr *courierauth.RateLimitError
	if errors.As(err, &rlErr) {
		SetRateLimitHeaders(w, rlErr.Decision)
		data := RateLimitDataFor(rlErr.Decision)
		data.Scope = rlErr.Scope
		ErrorWithData(w, status, courierauth.ErrRateLimited.Error(), data)
		return
	}

	switch status {
	case http.StatusInternalServerError:
		Error(w, status, "internal error")
	case http.StatusUnauthorized:
		Error(w, status, "unauthorized")
	default:
		Error(w, status, publicMessage(err))
	}
}

// publicMessage strips wrapped detail down to the sentinel text where one
// is known, so backend errors never leak.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		courierauth.ErrOTPNotFound,
		courierauth.ErrOTPAttemptsExceeded,
		courierauth.ErrAccountNotFound,
		courierauth.ErrAccountExists,
		courierauth.ErrForbidden,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// RateLimitDataFor converts a decision into the 429 body.
func RateLimitDataFor(d courierauth.Decision) RateLimitData {
	return RateLimitData{
		Allowed:           d.Allowed,
		Count:             d.Count,
		Limit:             d.Limit,
		Remaining:         d.Remaining,
		RetryAfterSeconds: d.RetryAfterSeconds(),
	}
}

// SetRateLimitHeaders sets X-RateLimit-* and, for rejections, Retry-After.
func SetRateLimitHeaders(w http.ResponseWriter, d courierauth.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
	if !d.Allowed {
		h.Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds(), 10))
	}
}
