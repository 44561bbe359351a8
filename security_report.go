package courierauth

import "github.com/MrEthical07/courierauth/internal/security"

// SecurityReport is a read-only snapshot of the engine's security posture,
// returned by [Engine.SecurityReport].
type SecurityReport = security.Report

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	purposeLimits := 0
	for _, p := range e.config.RateLimit.Purposes {
		if p.Max > 0 {
			purposeLimits++
		}
	}

	return security.BuildReport(security.ReportInput{
		ProductionMode:    e.config.Security.ProductionMode,
		SigningAlgorithm:  e.config.Token.SigningMethod,
		TokenTTL:          e.config.Token.TTL,
		TokenLeeway:       e.config.Token.Leeway,
		Audience:          e.config.Token.Audience,
		OTPDigits:         e.config.OTP.Digits,
		OTPTTL:            e.config.OTP.TTL,
		OTPMaxAttempts:    e.config.OTP.MaxAttempts,
		RateLimitEnabled:  e.config.RateLimit.Enabled,
		PurposeLimits:     purposeLimits,
		IPLimitMax:        e.config.RateLimit.IP.Max,
		AllowQueryToken:   e.config.Gate.AllowQueryToken,
		AuditEnabled:      e.config.Audit.Enabled,
		AuditDropIfFull:   e.config.Audit.DropIfFull,
		TrustedProxyCount: len(e.config.Security.TrustedProxies),
	})
}
