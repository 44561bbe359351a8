package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MrEthical07/courierauth"
	"github.com/MrEthical07/courierauth/notify"
)

// Settings is everything the CLI needs: the engine configuration plus the
// process-level wiring around it.
type Settings struct {
	Server   ServerSettings
	Log      LogSettings
	Database DatabaseSettings
	Redis    RedisSettings
	Notify   NotifySettings
	Core     courierauth.Config
}

type ServerSettings struct {
	Addr            string
	ShutdownTimeout time.Duration
	// Per-IP budgets for the public OTP routes, in addition to the engine's
	// per-identifier limits.
	OTPRequestPerIP int
	OTPVerifyPerIP  int
	PerIPWindow     time.Duration
}

type LogSettings struct {
	Level  string
	Format string
}

type DatabaseSettings struct {
	Dialect     string
	DSN         string
	AutoMigrate bool
}

type RedisSettings struct {
	Addr     string
	Password string
	DB       int
}

type NotifySettings struct {
	SendGrid notify.SendGridConfig
	SMS      notify.WebhookConfig
	Breaker  notify.BreakerConfig
}

// LoadSettings reads an optional .env file, then path (or courierauth.yaml
// in the usual places), then COURIERAUTH_* variables, which win.
func LoadSettings(path string) (*Settings, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("COURIERAUTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("courierauth")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/courierauth")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return settingsFromViper(v)
}

func settingsFromViper(v *viper.Viper) (*Settings, error) {
	core, err := coreConfig(v)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Server: ServerSettings{
			Addr:            getStringOrDefault(v, "server.addr", ":8080"),
			ShutdownTimeout: getDurationOrDefault(v, "server.shutdown_timeout", 15*time.Second),
			OTPRequestPerIP: getIntOrDefault(v, "server.otp_request_per_ip", 30),
			OTPVerifyPerIP:  getIntOrDefault(v, "server.otp_verify_per_ip", 60),
			PerIPWindow:     getDurationOrDefault(v, "server.per_ip_window", 10*time.Minute),
		},
		Log: LogSettings{
			Level:  getStringOrDefault(v, "log.level", "info"),
			Format: getStringOrDefault(v, "log.format", "json"),
		},
		Database: DatabaseSettings{
			Dialect:     getStringOrDefault(v, "database.dialect", string(courierauth.DialectSQLite)),
			DSN:         getStringOrDefault(v, "database.dsn", "file:courierauth.db?_busy_timeout=5000"),
			AutoMigrate: getBoolOrDefault(v, "database.auto_migrate", false),
		},
		Redis: RedisSettings{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Notify: NotifySettings{
			SendGrid: notify.SendGridConfig{
				APIKey:   v.GetString("notify.sendgrid.api_key"),
				From:     v.GetString("notify.sendgrid.from"),
				FromName: getStringOrDefault(v, "notify.sendgrid.from_name", "Courier"),
				Host:     v.GetString("notify.sendgrid.host"),
			},
			SMS: notify.WebhookConfig{
				URL:      v.GetString("notify.sms.url"),
				Username: v.GetString("notify.sms.username"),
				Password: v.GetString("notify.sms.password"),
				From:     v.GetString("notify.sms.from"),
				Timeout:  getDurationOrDefault(v, "notify.sms.timeout", 10*time.Second),
			},
			Breaker: notify.BreakerConfig{
				Timeout:      getDurationOrDefault(v, "notify.breaker.timeout", 30*time.Second),
				MinRequests:  uint32(getIntOrDefault(v, "notify.breaker.min_requests", 5)),
				FailureRatio: getFloat64OrDefault(v, "notify.breaker.failure_ratio", 0.6),
			},
		},
		Core: core,
	}

	if s.Core.Store.Backend == "redis" && s.Redis.Addr == "" {
		return nil, errors.New("store.backend redis requires redis.addr")
	}
	return s, nil
}

// coreConfig starts from DefaultConfig, or HighSecurityConfig when
// security.production_mode is set, and applies every key present.
func coreConfig(v *viper.Viper) (courierauth.Config, error) {
	cfg := courierauth.DefaultConfig()
	if v.GetBool("security.production_mode") {
		cfg = courierauth.HighSecurityConfig()
	}

	cfg.Token.TTL = getDurationOrDefault(v, "token.ttl", cfg.Token.TTL)
	cfg.Token.SigningMethod = getStringOrDefault(v, "token.signing_method", cfg.Token.SigningMethod)
	cfg.Token.Issuer = getStringOrDefault(v, "token.issuer", cfg.Token.Issuer)
	cfg.Token.Audience = getStringOrDefault(v, "token.audience", cfg.Token.Audience)
	cfg.Token.Leeway = getDurationOrDefault(v, "token.leeway", cfg.Token.Leeway)
	cfg.Token.KeyID = getStringOrDefault(v, "token.key_id", cfg.Token.KeyID)

	if secret := v.GetString("token.secret"); secret != "" {
		cfg.Token.PrivateKey = []byte(secret)
	}
	if file := v.GetString("token.private_key_file"); file != "" {
		key, err := os.ReadFile(file)
		if err != nil {
			return cfg, fmt.Errorf("reading token.private_key_file: %w", err)
		}
		cfg.Token.PrivateKey = key
	}
	if file := v.GetString("token.public_key_file"); file != "" {
		key, err := os.ReadFile(file)
		if err != nil {
			return cfg, fmt.Errorf("reading token.public_key_file: %w", err)
		}
		cfg.Token.PublicKey = key
	}

	cfg.OTP.Digits = getIntOrDefault(v, "otp.digits", cfg.OTP.Digits)
	cfg.OTP.TTL = getDurationOrDefault(v, "otp.ttl", cfg.OTP.TTL)
	cfg.OTP.MaxAttempts = getIntOrDefault(v, "otp.max_attempts", cfg.OTP.MaxAttempts)

	cfg.RateLimit.Enabled = getBoolOrDefault(v, "rate_limit.enabled", cfg.RateLimit.Enabled)
	for purpose, policy := range cfg.RateLimit.Purposes {
		cfg.RateLimit.Purposes[purpose] = getPolicy(v, "rate_limit."+string(purpose), policy)
	}
	cfg.RateLimit.Verify = getPolicy(v, "rate_limit.verify", cfg.RateLimit.Verify)
	cfg.RateLimit.IP = getPolicy(v, "rate_limit.ip", cfg.RateLimit.IP)

	cfg.Gate.AllowQueryToken = getBoolOrDefault(v, "gate.allow_query_token", cfg.Gate.AllowQueryToken)
	cfg.Gate.QueryParam = getStringOrDefault(v, "gate.query_param", cfg.Gate.QueryParam)

	cfg.Device.RegisterOnAuth = getBoolOrDefault(v, "device.register_on_auth", cfg.Device.RegisterOnAuth)
	cfg.Device.RegisterTimeout = getDurationOrDefault(v, "device.register_timeout", cfg.Device.RegisterTimeout)

	cfg.Store.Backend = getStringOrDefault(v, "store.backend", cfg.Store.Backend)
	cfg.Store.RedisPrefix = getStringOrDefault(v, "store.redis_prefix", cfg.Store.RedisPrefix)
	cfg.Store.CleanupInterval = getDurationOrDefault(v, "store.cleanup_interval", cfg.Store.CleanupInterval)

	cfg.Audit.Enabled = getBoolOrDefault(v, "audit.enabled", cfg.Audit.Enabled)
	cfg.Audit.BufferSize = getIntOrDefault(v, "audit.buffer_size", cfg.Audit.BufferSize)
	cfg.Audit.DropIfFull = getBoolOrDefault(v, "audit.drop_if_full", cfg.Audit.DropIfFull)

	cfg.Metrics.Enabled = getBoolOrDefault(v, "metrics.enabled", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = getBoolOrDefault(v, "metrics.latency_histograms", cfg.Metrics.EnableLatencyHistograms)

	if v.IsSet("security.trusted_proxies") {
		cfg.Security.TrustedProxies = splitList(v.GetStringSlice("security.trusted_proxies"))
	}

	return cfg, nil
}

func getPolicy(v *viper.Viper, prefix string, def courierauth.Policy) courierauth.Policy {
	return courierauth.Policy{
		Max:    getIntOrDefault(v, prefix+".max", def.Max),
		Window: getDurationOrDefault(v, prefix+".window", def.Window),
	}
}

// splitList accepts both YAML lists and a single comma-separated env value.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func getDurationOrDefault(v *viper.Viper, key string, defaultValue time.Duration) time.Duration {
	if v.IsSet(key) {
		return v.GetDuration(key)
	}
	return defaultValue
}

func getIntOrDefault(v *viper.Viper, key string, defaultValue int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return defaultValue
}

func getFloat64OrDefault(v *viper.Viper, key string, defaultValue float64) float64 {
	if v.IsSet(key) {
		return v.GetFloat64(key)
	}
	return defaultValue
}

func getStringOrDefault(v *viper.Viper, key string, defaultValue string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return defaultValue
}

func getBoolOrDefault(v *viper.Viper, key string, defaultValue bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return defaultValue
}
