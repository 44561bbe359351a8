package security

import "time"

// Report is a read-only summary of how an engine is hardened.
type Report struct {
	ProductionMode     bool          `json:"production_mode"`
	SigningAlgorithm   string        `json:"signing_algorithm"`
	TokenTTL           time.Duration `json:"token_ttl"`
	TokenLeeway        time.Duration `json:"token_leeway"`
	AudienceChecked    bool          `json:"audience_checked"`
	OTPDigits          int           `json:"otp_digits"`
	OTPTTL             time.Duration `json:"otp_ttl"`
	OTPMaxAttempts     int           `json:"otp_max_attempts"`
	RateLimitingActive bool          `json:"rate_limiting_active"`
	IPLimitActive      bool          `json:"ip_limit_active"`
	QueryTokenAllowed  bool          `json:"query_token_allowed"`
	AuditLossless      bool          `json:"audit_lossless"`
	TrustedProxies     int           `json:"trusted_proxies"`
}

type ReportInput struct {
	ProductionMode    bool
	SigningAlgorithm  string
	TokenTTL          time.Duration
	TokenLeeway       time.Duration
	Audience          string
	OTPDigits         int
	OTPTTL            time.Duration
	OTPMaxAttempts    int
	RateLimitEnabled  bool
	PurposeLimits     int
	IPLimitMax        int
	AllowQueryToken   bool
	AuditEnabled      bool
	AuditDropIfFull   bool
	TrustedProxyCount int
}

func BuildReport(input ReportInput) Report {
	return Report{
		ProductionMode:     input.ProductionMode,
		SigningAlgorithm:   input.SigningAlgorithm,
		TokenTTL:           input.TokenTTL,
		TokenLeeway:        input.TokenLeeway,
		AudienceChecked:    input.Audience != "",
		OTPDigits:          input.OTPDigits,
		OTPTTL:             input.OTPTTL,
		OTPMaxAttempts:     input.OTPMaxAttempts,
		RateLimitingActive: input.RateLimitEnabled && input.PurposeLimits > 0,
		IPLimitActive:      input.RateLimitEnabled && input.IPLimitMax > 0,
		QueryTokenAllowed:  input.AllowQueryToken,
		AuditLossless:      input.AuditEnabled && !input.AuditDropIfFull,
		TrustedProxies:     input.TrustedProxyCount,
	}
}
