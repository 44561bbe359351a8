package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/courierauth"
	"github.com/MrEthical07/courierauth/notify"
)

// runtime is an engine plus the handles it was built on.
type runtime struct {
	engine *courierauth.Engine
	db     *sql.DB
	redis  *redis.Client
}

func (rt *runtime) Close() {
	rt.engine.Close()
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

func openDB(ctx context.Context, s *Settings) (*sql.DB, courierauth.Dialect, error) {
	dialect := courierauth.Dialect(s.Database.Dialect)
	db, err := courierauth.OpenDB(ctx, dialect, s.Database.DSN)
	if err != nil {
		return nil, dialect, fmt.Errorf("failed to open database: %w", err)
	}
	return db, dialect, nil
}

// buildRuntime opens the database (accounts and devices always live there),
// connects Redis when it is the hot-path backend, and builds the engine.
func buildRuntime(ctx context.Context, s *Settings, logger *logrus.Logger) (*runtime, error) {
	sender, err := buildSender(s.Notify, s.Core.Security.ProductionMode, logger)
	if err != nil {
		return nil, err
	}

	db, dialect, err := openDB(ctx, s)
	if err != nil {
		return nil, err
	}
	rt := &runtime{db: db}

	if s.Database.AutoMigrate {
		if err := courierauth.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	builder := courierauth.New().
		WithConfig(s.Core).
		WithDB(db, dialect).
		WithSender(sender).
		WithLogger(logger)

	if s.Core.Store.Backend == "redis" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     s.Redis.Addr,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			_ = rt.redis.Close()
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		builder = builder.WithRedis(rt.redis)
	}

	engine, err := builder.Build()
	if err != nil {
		if rt.redis != nil {
			_ = rt.redis.Close()
		}
		_ = db.Close()
		return nil, err
	}
	rt.engine = engine
	return rt, nil
}

// buildSender routes SMS to the webhook gateway and email to SendGrid, each
// behind its own breaker. Outside production a channel without provider
// settings logs codes; in production every channel needs a provider.
func buildSender(s NotifySettings, production bool, logger logrus.FieldLogger) (notify.Sender, error) {
	router := notify.NewRouter()
	if !production {
		router.Fallback(notify.NewLogSender(logger))
	}

	if s.SMS.URL != "" {
		sms, err := notify.NewSMSWebhook(s.SMS)
		if err != nil {
			if production {
				return nil, err
			}
			logger.WithError(err).Warn("sms gateway disabled")
		} else {
			cfg := s.Breaker
			cfg.Name = "sms"
			router.Handle(notify.ChannelSMS, notify.NewBreaker(sms, cfg))
		}
	} else if production {
		return nil, errors.New("production mode requires notify.sms.url")
	}

	if s.SendGrid.APIKey != "" {
		mail, err := notify.NewSendGrid(s.SendGrid)
		if err != nil {
			if production {
				return nil, err
			}
			logger.WithError(err).Warn("sendgrid disabled")
		} else {
			cfg := s.Breaker
			cfg.Name = "email"
			router.Handle(notify.ChannelEmail, notify.NewBreaker(mail, cfg))
		}
	} else if production {
		return nil, errors.New("production mode requires notify.sendgrid.api_key")
	}
	return router, nil
}
