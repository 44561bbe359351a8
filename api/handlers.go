package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/courierauth"
	authmw "github.com/MrEthical07/courierauth/middleware"
	"github.com/MrEthical07/courierauth/response"
)

type otpRequestBody struct {
	Identifier     string `json:"identifier" validate:"required,max=254"`
	IdentifierType string `json:"identifier_type" validate:"omitempty,oneof=phone email"`
	Purpose        string `json:"purpose" validate:"required,max=32"`
}

type otpVerifyBody struct {
	Identifier     string `json:"identifier" validate:"required,max=254"`
	IdentifierType string `json:"identifier_type" validate:"omitempty,oneof=phone email"`
	Code           string `json:"code" validate:"required,numeric,min=4,max=10"`
	Purpose        string `json:"purpose" validate:"required,max=32"`
	Role           string `json:"role" validate:"omitempty,oneof=customer merchant rider"`
	StoreID        string `json:"store_id" validate:"max=128"`
}

type revokeBody struct {
	Token string `json:"token" validate:"required,max=8192"`
}

type deviceBody struct {
	DeviceID  string `json:"device_id" validate:"required,max=128"`
	Platform  string `json:"platform" validate:"max=32"`
	PushToken string `json:"push_token" validate:"max=4096"`
}

type rateLimitBody struct {
	Identifier     string `json:"identifier" validate:"required,max=254"`
	IdentifierType string `json:"identifier_type" validate:"required,oneof=phone email ip"`
	Purpose        string `json:"purpose" validate:"required,max=64"`
	Max            int    `json:"max" validate:"gt=0"`
	// Capped at 30 days so the conversion to time.Duration cannot overflow.
	WindowSeconds int64 `json:"window_seconds" validate:"gt=0,lte=2592000"`
}

type sessionData struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	StoreID   string    `json:"store_id,omitempty"`
	TokenID   string    `json:"token_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// fail writes err as an envelope. Bind errors carry their field messages.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var be *bindError
	if errors.As(err, &be) {
		if len(be.fields) > 0 {
			response.ErrorWithData(w, http.StatusBadRequest, be.msg, be.fields)
			return
		}
		response.Error(w, http.StatusBadRequest, be.msg)
		return
	}
	if response.StatusFor(err) == http.StatusInternalServerError {
		a.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	response.FromError(w, err)
}

// RequestOTP issues and delivers a code.
func (a *API) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequestBody
	if err := bind(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}

	issued, err := a.engine.IssueOTP(r.Context(), courierauth.OTPRequest{
		Identifier:     body.Identifier,
		IdentifierType: courierauth.IdentifierType(body.IdentifierType),
		Purpose:        courierauth.Purpose(body.Purpose),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "OTP sent", issued)
}

// VerifyOTP consumes a code. Login and signup answer with a session.
func (a *API) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body otpVerifyBody
	if err := bind(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}

	session, err := a.engine.CompleteOTP(r.Context(), courierauth.OTPCompletion{
		Identifier:     body.Identifier,
		IdentifierType: courierauth.IdentifierType(body.IdentifierType),
		Code:           body.Code,
		Purpose:        courierauth.Purpose(body.Purpose),
		Role:           courierauth.Role(body.Role),
		StoreID:        body.StoreID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if session == nil {
		response.JSON(w, http.StatusOK, "OTP verified", nil)
		return
	}
	response.JSON(w, http.StatusOK, "OTP verified", session)
}

// Session echoes the caller's claims.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	claims, ok := authmw.ClaimsFromContext(r.Context())
	if !ok {
		response.FromError(w, courierauth.ErrUnauthorized)
		return
	}

	data := sessionData{
		UserID:    claims.UserID,
		Role:      claims.Role,
		StoreID:   claims.StoreID,
		TokenID:   claims.TokenID(),
		ExpiresAt: claims.ExpiresAtTime().UTC(),
	}
	if claims.IssuedAt != nil {
		data.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	response.JSON(w, http.StatusOK, "authenticated", data)
}

// Logout blacklists the presented token.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := authmw.TokenFromContext(r.Context())
	if !ok {
		response.FromError(w, courierauth.ErrUnauthorized)
		return
	}
	if err := a.engine.RevokeToken(r.Context(), token); err != nil {
		a.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "logged out", nil)
}

// RevokeToken blacklists an arbitrary token. Admin only.
func (a *API) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var body revokeBody
	if err := bind(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.engine.RevokeToken(r.Context(), body.Token); err != nil {
		if errors.Is(err, courierauth.ErrInvalidToken) {
			response.Error(w, http.StatusBadRequest, courierauth.ErrInvalidToken.Error())
			return
		}
		a.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, "token revoked", nil)
}

// RegisterDevice upserts the caller's device.
func (a *API) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	claims, ok := authmw.ClaimsFromContext(r.Context())
	if !ok {
		response.FromError(w, courierauth.ErrUnauthorized)
		return
	}
	var body deviceBody
	if err := bind(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}

	err := a.engine.RegisterDevice(r.Context(), claims.UserID, courierauth.DeviceInfo{
		DeviceID:  body.DeviceID,
		Platform:  body.Platform,
		PushToken: body.PushToken,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, "device registered", nil)
}

// ListDevices returns the caller's devices.
func (a *API) ListDevices(w http.ResponseWriter, r *http.Request) {
	claims, ok := authmw.ClaimsFromContext(r.Context())
	if !ok {
		response.FromError(w, courierauth.ErrUnauthorized)
		return
	}
	devices, err := a.engine.ListDevices(r.Context(), claims.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if devices == nil {
		devices = []courierauth.Device{}
	}
	response.JSON(w, http.StatusOK, "devices", devices)
}

// CheckRateLimit runs one counter check. Rejections answer 429. Admin only.
func (a *API) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	var body rateLimitBody
	if err := bind(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}

	decision, err := a.engine.CheckRateLimit(r.Context(), courierauth.RateLimitRequest{
		Identifier:     body.Identifier,
		IdentifierType: courierauth.IdentifierType(body.IdentifierType),
		Purpose:        body.Purpose,
		Max:            body.Max,
		Window:         time.Duration(body.WindowSeconds) * time.Second,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}

	response.SetRateLimitHeaders(w, decision)
	data := response.RateLimitDataFor(decision)
	if !decision.Allowed {
		response.ErrorWithData(w, http.StatusTooManyRequests, courierauth.ErrRateLimited.Error(), data)
		return
	}
	response.JSON(w, http.StatusOK, "allowed", data)
}

// Health pings the stores.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.engine.Ping(ctx); err != nil {
		a.logger.WithError(err).Error("health check failed")
		response.Error(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	response.JSON(w, http.StatusOK, "ok", nil)
}
