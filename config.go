package courierauth

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config is the full engine configuration. Obtain one from DefaultConfig,
// adjust it, and hand it to Builder.WithConfig. Build calls Validate.
type Config struct {
	Token     TokenConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Gate      GateConfig
	Device    DeviceConfig
	Store     StoreConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls session token signing.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls code generation and verification.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// Policy caps a counter at Max hits per Window.
type Policy struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig holds per-purpose OTP request policies, the verify-attempt
// policy and the per-IP policy for OTP requests.
type RateLimitConfig struct {
	Enabled  bool
	Purposes map[Purpose]Policy
	Verify   Policy
	IP       Policy
}

/*
====================================
GATE CONFIG
====================================
*/

// GateConfig controls how the HTTP auth gate finds tokens.
//
// AllowQueryToken accepts ?<QueryParam>=<token> on GET requests that carry
// no Authorization header. Tokens in URLs end up in access logs and browser
// history, so it is off by default and refused in ProductionMode.
type GateConfig struct {
	AllowQueryToken bool
	QueryParam      string
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig controls the best-effort registration done by the auth gate.
type DeviceConfig struct {
	RegisterOnAuth  bool
	RegisterTimeout time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig selects where OTP records, counters and revocations live.
// "sql" keeps everything in the database passed to Builder.WithDB. "redis"
// moves the short-lived records to Redis and keeps accounts and devices in
// SQL when a database is configured.
type StoreConfig struct {
	Backend         string // "sql" (default) or "redis"
	RedisPrefix     string
	CleanupInterval time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds deployment-wide hardening switches.
type SecurityConfig struct {
	ProductionMode bool
	// TrustedProxies lists CIDRs whose X-Forwarded-For / X-Real-IP headers
	// are honored when resolving the client IP.
	TrustedProxies []string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the development defaults. Token.PrivateKey is empty
// and must be set before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "courierauth",
			Leeway:        30 * time.Second,
		},
		OTP: OTPConfig{
			Digits:      6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Purposes: map[Purpose]Policy{
				PurposeSignup:        {Max: 3, Window: 60 * time.Minute},
				PurposeLogin:         {Max: 5, Window: 15 * time.Minute},
				PurposePasswordReset: {Max: 3, Window: 60 * time.Minute},
				PurposePhoneChange:   {Max: 3, Window: 60 * time.Minute},
				PurposeEmailChange:   {Max: 3, Window: 60 * time.Minute},
			},
			Verify: Policy{Max: 5, Window: 15 * time.Minute},
			IP:     Policy{Max: 20, Window: 60 * time.Minute},
		},
		Gate: GateConfig{
			AllowQueryToken: false,
			QueryParam:      "token",
		},
		Device: DeviceConfig{
			RegisterOnAuth:  true,
			RegisterTimeout: 2 * time.Second,
		},
		Store: StoreConfig{
			Backend:         "sql",
			RedisPrefix:     "ca",
			CleanupInterval: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// HighSecurityConfig tightens DefaultConfig for production: short tokens,
// short codes, fewer attempts and ProductionMode on.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.Token.TTL = 2 * time.Hour
	cfg.Token.Leeway = 10 * time.Second
	cfg.OTP.TTL = 5 * time.Minute
	cfg.OTP.MaxAttempts = 3
	cfg.RateLimit.Verify = Policy{Max: 3, Window: 15 * time.Minute}
	cfg.RateLimit.IP = Policy{Max: 10, Window: 60 * time.Minute}
	cfg.Audit.DropIfFull = false
	cfg.Security.ProductionMode = true
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	if cfg.RateLimit.Purposes != nil {
		out.RateLimit.Purposes = make(map[Purpose]Policy, len(cfg.RateLimit.Purposes))
		for k, v := range cfg.RateLimit.Purposes {
			out.RateLimit.Purposes[k] = v
		}
	}
	out.Security.TrustedProxies = append([]string(nil), cfg.Security.TrustedProxies...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	// Token
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}
	if c.Token.SigningMethod != "hs256" && c.Token.SigningMethod != "ed25519" {
		return errors.New("unsupported Token signing method")
	}
	if len(c.Token.PrivateKey) == 0 && c.Token.SigningMethod == "hs256" {
		return errors.New("hs256 requires Token PrivateKey")
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Token.PublicKey) == 0 {
		return errors.New("ed25519 requires Token PublicKey")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}
	if c.Token.Audience != "" && strings.TrimSpace(c.Token.Audience) == "" {
		return errors.New("Token Audience must not be blank")
	}

	// OTP
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP Digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxAttempts > 65535 {
		return errors.New("OTP MaxAttempts must be between 1 and 65535")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		for _, p := range []Purpose{PurposeSignup, PurposeLogin, PurposePasswordReset, PurposePhoneChange, PurposeEmailChange} {
			policy, ok := c.RateLimit.Purposes[p]
			if !ok {
				return fmt.Errorf("RateLimit policy missing for purpose %q", p)
			}
			if err := policy.validate(); err != nil {
				return fmt.Errorf("RateLimit %s: %w", p, err)
			}
		}
		for p := range c.RateLimit.Purposes {
			if _, err := ParsePurpose(string(p)); err != nil {
				return fmt.Errorf("RateLimit policy for unknown purpose %q", p)
			}
		}
		if err := c.RateLimit.Verify.validate(); err != nil {
			return fmt.Errorf("RateLimit Verify: %w", err)
		}
		if err := c.RateLimit.IP.validate(); err != nil {
			return fmt.Errorf("RateLimit IP: %w", err)
		}
	}

	// Gate
	if c.Gate.AllowQueryToken && strings.TrimSpace(c.Gate.QueryParam) == "" {
		return errors.New("Gate QueryParam required when AllowQueryToken is true")
	}

	// Device
	if c.Device.RegisterOnAuth && c.Device.RegisterTimeout <= 0 {
		return errors.New("Device RegisterTimeout must be > 0 when RegisterOnAuth is true")
	}

	// Store
	if c.Store.Backend != "sql" && c.Store.Backend != "redis" {
		return errors.New("Store Backend must be \"sql\" or \"redis\"")
	}
	if c.Store.RedisPrefix == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if c.Store.CleanupInterval < 0 {
		return errors.New("Store CleanupInterval must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}

	// Security
	for _, cidr := range c.Security.TrustedProxies {
		if _, err := netip.ParsePrefix(strings.TrimSpace(cidr)); err != nil {
			return fmt.Errorf("Security TrustedProxies: invalid CIDR %q", cidr)
		}
	}

	if c.Security.ProductionMode {
		if c.Token.TTL > 24*time.Hour {
			return errors.New("ProductionMode requires Token TTL <= 24h")
		}
		if c.Token.SigningMethod == "hs256" && len(c.Token.PrivateKey) < 32 {
			return errors.New("ProductionMode requires hs256 key length >= 256 bits")
		}
		if c.Gate.AllowQueryToken {
			return errors.New("ProductionMode forbids Gate AllowQueryToken")
		}
		if c.OTP.TTL > 15*time.Minute {
			return errors.New("ProductionMode requires OTP TTL <= 15m")
		}
		if c.OTP.Digits < 6 {
			return errors.New("ProductionMode requires OTP Digits >= 6")
		}
		if !c.RateLimit.Enabled {
			return errors.New("ProductionMode requires RateLimit enabled")
		}
	}

	return nil
}

func (p Policy) validate() error {
	if p.Max <= 0 {
		return errors.New("Max must be > 0")
	}
	if p.Window <= 0 {
		return errors.New("Window must be > 0")
	}
	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration that validates but is probably a mistake.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	codes := make([]string, 0, len(ws))
	for _, w := range ws {
		codes = append(codes, w.Code)
	}
	return codes
}

// Lint reports risky but valid settings. It never fails.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.Token.Leeway > time.Minute {
		add("leeway_large", "token leeway above 1m widens the replay window of expired tokens")
	}
	if c.Token.TTL > 7*24*time.Hour {
		add("token_ttl_long", "tokens live longer than a week; revocation is the only way to end them early")
	}
	if c.Token.SigningMethod == "hs256" {
		add("hs256_shared_secret", "hs256 shares the signing secret with every verifier")
	}
	if !c.RateLimit.Enabled {
		add("rate_limits_disabled", "OTP requests and verifications are unthrottled")
	}
	if c.Gate.AllowQueryToken {
		add("query_token_enabled", "tokens accepted in query strings leak into logs and referrers")
	}
	if c.OTP.TTL > 15*time.Minute {
		add("otp_ttl_long", "OTP codes stay valid for more than 15m")
	}
	if c.OTP.Digits < 6 {
		add("otp_digits_short", "codes shorter than 6 digits are easier to guess")
	}
	if c.RateLimit.Enabled && c.RateLimit.Verify.Max > c.OTP.MaxAttempts*4 {
		add("verify_limit_loose", "verify limit allows many more guesses than OTP MaxAttempts")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "security events are not recorded")
	}
	return ws
}
