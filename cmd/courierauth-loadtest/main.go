package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	mathrand "math/rand"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/MrEthical07/courierauth"
	"github.com/MrEthical07/courierauth/notify"
)

type account struct {
	phone string
	token string
	mu    sync.Mutex
}

// inbox keeps the last code delivered to each recipient.
type inbox struct {
	pattern *regexp.Regexp
	codes   sync.Map
}

func (b *inbox) Send(_ context.Context, msg notify.Message) error {
	b.codes.Store(msg.Recipient, b.pattern.FindString(msg.Body))
	return nil
}

func (b *inbox) code(recipient string) string {
	v, _ := b.codes.Load(recipient)
	s, _ := v.(string)
	return s
}

func main() {
	var (
		accounts    = flag.Int("accounts", 10000, "number of accounts to sign up")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (authenticate, ratelimit, otp)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "lt", "redis key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		fmt.Fprintf(os.Stderr, "key generation failed: %v\n", err)
		os.Exit(1)
	}

	cfg := courierauth.DefaultConfig()
	cfg.Token.PrivateKey = key
	cfg.Store.Backend = "redis"
	cfg.Store.RedisPrefix = *prefix
	cfg.RateLimit.Enabled = false
	cfg.Audit.Enabled = false
	cfg.Device.RegisterOnAuth = false

	box := &inbox{pattern: regexp.MustCompile(fmt.Sprintf(`\b\d{%d}\b`, cfg.OTP.Digits))}
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	engine, err := courierauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithSender(box).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]account, *accounts)
	fmt.Printf("signing up %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		phone := fmt.Sprintf("234800%07d", i)
		session, err := signup(ctx, engine, box, phone)
		if err != nil {
			fmt.Fprintf(os.Stderr, "signup failed: %v\n", err)
			os.Exit(1)
		}
		states[i].phone = phone
		states[i].token = session.Token
	}
	fmt.Printf("signed up in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(*ops, *concurrency, 7919, func(r *mathrand.Rand, _ int) error {
		_, err := engine.Authenticate(ctx, states[r.Intn(len(states))].token)
		return err
	})
	limitStats := runPhase(*ops, *concurrency, 6151, func(r *mathrand.Rand, _ int) error {
		_, err := engine.CheckRateLimit(ctx, courierauth.RateLimitRequest{
			Identifier:     states[r.Intn(len(states))].phone,
			IdentifierType: courierauth.IdentifierPhone,
			Purpose:        "loadtest",
			Max:            1 << 30,
			Window:         time.Hour,
		})
		return err
	})
	otpStats := runPhase(*ops, *concurrency, 3571, func(r *mathrand.Rand, _ int) error {
		state := &states[r.Intn(len(states))]
		// Issuing supersedes the previous code, so one round trip per account at a time.
		state.mu.Lock()
		defer state.mu.Unlock()
		if _, err := engine.IssueOTP(ctx, courierauth.OTPRequest{Identifier: state.phone, Purpose: courierauth.PurposeLogin}); err != nil {
			return err
		}
		return engine.VerifyOTP(ctx, state.phone, box.code(state.phone), courierauth.PurposeLogin)
	})

	fmt.Println("---- results ----")
	printStats("authenticate", authStats)
	printStats("ratelimit", limitStats)
	printStats("otp issue+verify", otpStats)
	snap := engine.MetricsSnapshot()
	fmt.Printf("tokens issued=%d otp verified=%d\n",
		snap.Counters[courierauth.MetricTokenIssued],
		snap.Counters[courierauth.MetricOTPVerified],
	)
}

func signup(ctx context.Context, engine *courierauth.Engine, box *inbox, phone string) (*courierauth.Session, error) {
	if _, err := engine.IssueOTP(ctx, courierauth.OTPRequest{Identifier: phone, Purpose: courierauth.PurposeSignup}); err != nil {
		return nil, err
	}
	return engine.CompleteOTP(ctx, courierauth.OTPCompletion{
		Identifier: phone,
		Code:       box.code(phone),
		Purpose:    courierauth.PurposeSignup,
		Role:       courierauth.RoleCustomer,
	})
}

func runPhase(ops, concurrency int, seed int64, op func(r *mathrand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mathrand.New(mathrand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
