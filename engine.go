package courierauth

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	internalaudit "github.com/MrEthical07/courierauth/internal/audit"
	"github.com/MrEthical07/courierauth/internal/rate"
	"github.com/MrEthical07/courierauth/internal/stores"
	"github.com/MrEthical07/courierauth/jwt"
	"github.com/MrEthical07/courierauth/notify"
)

// AccountStore looks up and creates accounts. Implementations return
// ErrAccountNotFound and ErrAccountExists for the corresponding cases.
type AccountStore interface {
	FindAccount(ctx context.Context, identifier, identifierType string) (*Account, error)
	CreateAccount(ctx context.Context, account Account) error
}

type otpRepository interface {
	Save(ctx context.Context, record *stores.OTPRecord) error
	Consume(ctx context.Context, identifier, purpose string, providedHash [32]byte, maxAttempts int) (*stores.OTPRecord, error)
	Delete(ctx context.Context, identifier, purpose string) error
}

type revocationRepository interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type deviceRepository interface {
	Upsert(ctx context.Context, device stores.Device) error
	List(ctx context.Context, userID string) ([]stores.Device, error)
}

type sweeper interface {
	Sweep(ctx context.Context) (stores.SweepReport, error)
}

// Engine runs OTP issuance and verification, rate limiting, token issuance
// and verification, and device registration. It is safe for concurrent use
// once built.
type Engine struct {
	config      Config
	tokens      *jwt.Manager
	otps        otpRepository
	counters    rate.Counter
	revocations revocationRepository
	devices     deviceRepository
	accounts    AccountStore
	sweeper     sweeper
	pingers     []func(context.Context) error
	sender      notify.Sender
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      logrus.FieldLogger
	now         func() time.Time
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// Logger returns the logger the engine writes to.
func (e *Engine) Logger() logrus.FieldLogger {
	if e == nil || e.logger == nil {
		return logrus.StandardLogger()
	}
	return e.logger
}

// Close flushes pending audit events. It does not close the database or
// Redis client; those belong to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return emptySnapshot()
	}
	return e.metrics.Snapshot()
}

// Ping checks every configured backend.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil {
		return ErrEngineNotReady
	}
	for _, ping := range e.pingers {
		if err := ping(ctx); err != nil {
			return storeError(err)
		}
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricIncLabeled(id MetricID, value string) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.IncLabeled(id, value)
}

func (e *Engine) ready() bool {
	return e != nil && e.tokens != nil && e.otps != nil && e.counters != nil &&
		e.revocations != nil && e.devices != nil && e.accounts != nil && e.sender != nil
}
