package courierauth

import (
	"time"

	"github.com/MrEthical07/courierauth/internal/rate"
	"github.com/MrEthical07/courierauth/internal/stores"
	"github.com/MrEthical07/courierauth/jwt"
)

// Role is the actor kind carried in a session token.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMerchant Role = "merchant"
	RoleRider    Role = "rider"
	RoleAdmin    Role = "admin"
)

// Purpose tags an OTP so a code issued for one flow cannot complete another.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
	PurposePhoneChange   Purpose = "phone_change"
	PurposeEmailChange   Purpose = "email_change"
)

// IdentifierType says how an identifier is normalized and which channel
// delivers codes to it.
type IdentifierType string

const (
	IdentifierPhone IdentifierType = "phone"
	IdentifierEmail IdentifierType = "email"
	// IdentifierIP is only valid for rate limiting.
	IdentifierIP IdentifierType = "ip"
)

type (
	// Claims is the decoded payload of a session token.
	Claims = jwt.Claims
	// Decision is the outcome of one rate limit check.
	Decision = rate.Decision
	// Account is the identity record created by OTP signup.
	Account = stores.Account
	// Device is a client registered against a user.
	Device = stores.Device
	// CleanupReport counts records removed by Cleanup.
	CleanupReport = stores.SweepReport
)

// OTPRequest asks for a code to be issued and delivered. IdentifierType may
// be empty, in which case it is inferred from Identifier.
type OTPRequest struct {
	Identifier     string
	IdentifierType IdentifierType
	Purpose        Purpose
}

// OTPIssue describes an issued code. The code itself only leaves the engine
// through the configured sender.
type OTPIssue struct {
	Identifier     string         `json:"identifier"`
	IdentifierType IdentifierType `json:"identifier_type"`
	Purpose        Purpose        `json:"purpose"`
	Channel        string         `json:"channel"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

// OTPCompletion verifies a code and, for signup and login, returns a session.
type OTPCompletion struct {
	Identifier     string
	IdentifierType IdentifierType
	Code           string
	Purpose        Purpose
	// Role and StoreID are only read for signup. Role defaults to customer.
	Role    Role
	StoreID string
}

// RateLimitRequest is the raw counter check exposed to operators.
type RateLimitRequest struct {
	Identifier     string
	IdentifierType IdentifierType
	Purpose        string
	Max            int
	Window         time.Duration
}

// Subject is who a token is issued to.
type Subject struct {
	UserID  string
	Role    Role
	StoreID string
}

// Session is an issued token and, after OTP signup or login, the account it
// belongs to.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	Claims    *Claims   `json:"-"`
	Account   *Account  `json:"account,omitempty"`
}

// DeviceInfo is the client metadata captured at registration.
type DeviceInfo struct {
	DeviceID  string
	Platform  string
	PushToken string
	UserAgent string
}
