package stores

import (
	"errors"
	"time"
)

var (
	ErrOTPNotFound         = errors.New("otp record not found")
	ErrOTPMismatch         = errors.New("otp code mismatch")
	ErrOTPAttemptsExceeded = errors.New("otp attempts exceeded")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrUnavailable         = errors.New("store unavailable")
)

// OTPRecord is one issued code. Only the hash of the code is kept.
type OTPRecord struct {
	ID             string
	Identifier     string
	IdentifierType string
	Purpose        string
	CodeHash       [32]byte
	Attempts       uint16
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ConsumedAt     time.Time
}

// Device is a client registered against a user.
type Device struct {
	UserID     string    `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	Platform   string    `json:"platform,omitempty"`
	PushToken  string    `json:"push_token,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Account is the minimal identity record created by OTP signup.
type Account struct {
	ID             string    `json:"id"`
	Identifier     string    `json:"identifier"`
	IdentifierType string    `json:"identifier_type"`
	Role           string    `json:"role"`
	StoreID        string    `json:"store_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SweepReport counts rows removed by a cleanup pass.
type SweepReport struct {
	OTPs        int64 `json:"otps"`
	Counters    int64 `json:"counters"`
	Revocations int64 `json:"revocations"`
}
