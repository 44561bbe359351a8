package courierauth

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	internalaudit "github.com/MrEthical07/courierauth/internal/audit"
	"github.com/MrEthical07/courierauth/internal/rate"
	"github.com/MrEthical07/courierauth/internal/sqlstore"
	"github.com/MrEthical07/courierauth/internal/stores"
	"github.com/MrEthical07/courierauth/jwt"
	"github.com/MrEthical07/courierauth/notify"
)

// Builder assembles an Engine. Configure it once, call Build once.
type Builder struct {
	config Config

	redis     redis.UniversalClient
	db        *sql.DB
	dialect   sqlstore.Dialect
	accounts  AccountStore
	sender    notify.Sender
	auditSink AuditSink
	logger    logrus.FieldLogger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client used when Store.Backend is "redis".
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB supplies the SQL database. The schema must already exist; see
// sqlstore.Store.EnsureSchema or the migrate command.
func (b *Builder) WithDB(db *sql.DB, dialect sqlstore.Dialect) *Builder {
	b.db = db
	b.dialect = dialect
	return b
}

// WithAccountStore overrides where accounts are looked up and created.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithSender sets the OTP delivery channel. Without one, codes are written
// to the log, which is only suitable for development.
func (b *Builder) WithSender(sender notify.Sender) *Builder {
	b.sender = sender
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the stores.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetFormatter(&logrus.JSONFormatter{})
		logger = l
	}

	engine := &Engine{
		config:  cloneConfig(cfg),
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		now:     time.Now,
	}

	// -------- STORES --------
	var sqlStore *sqlstore.Store
	if b.db != nil {
		s, err := sqlstore.New(b.db, b.dialect)
		if err != nil {
			return nil, err
		}
		sqlStore = s
	}

	switch cfg.Store.Backend {
	case "redis":
		if b.redis == nil {
			return nil, errors.New("redis backend requires a redis client")
		}
		client := b.redis
		prefix := cfg.Store.RedisPrefix
		engine.otps = stores.NewOTPStore(client, prefix)
		engine.counters = rate.New(client, prefix)
		engine.revocations = stores.NewBlacklist(client, prefix)
		engine.pingers = append(engine.pingers, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		if sqlStore != nil {
			engine.devices = sqlStore.Devices()
			engine.accounts = sqlStore.Accounts()
			engine.pingers = append(engine.pingers, sqlStore.Ping)
		} else {
			engine.devices = stores.NewDeviceRegistry(client, prefix)
			engine.accounts = stores.NewAccountStore(client, prefix)
		}
	default:
		if sqlStore == nil {
			return nil, errors.New("sql backend requires a database")
		}
		engine.otps = sqlStore.OTPs()
		engine.counters = sqlStore.Counters()
		engine.revocations = sqlStore.Revocations()
		engine.devices = sqlStore.Devices()
		engine.accounts = sqlStore.Accounts()
		engine.sweeper = sqlStore
		engine.pingers = append(engine.pingers, sqlStore.Ping)
	}

	if b.accounts != nil {
		engine.accounts = b.accounts
	}

	// -------- DELIVERY --------
	engine.sender = b.sender
	if engine.sender == nil {
		engine.sender = notify.NewLogSender(logger)
	}

	// -------- AUDIT --------
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.Token.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
	})
	if err != nil {
		engine.audit.Close()
		return nil, err
	}
	engine.tokens = jm

	b.built = true

	return engine, nil
}
