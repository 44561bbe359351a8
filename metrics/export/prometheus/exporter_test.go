package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/courierauth"
)

func TestRenderFromEngine(t *testing.T) {
	ctx := context.Background()
	db, err := courierauth.OpenDB(ctx, courierauth.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := courierauth.Migrate(ctx, db, courierauth.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := courierauth.DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false
	engine, err := courierauth.New().WithConfig(cfg).WithDB(db, courierauth.DialectSQLite).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	session, err := engine.IssueToken(ctx, courierauth.Subject{UserID: "u1", Role: courierauth.RoleRider})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := engine.Authenticate(ctx, session.Token); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	out := NewPrometheusExporter(engine).Render()
	for _, want := range []string{
		"courierauth_token_issued_total 1",
		"courierauth_auth_success_total 1",
		"# TYPE courierauth_authenticate_latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

type fakeSource struct {
	snapshot courierauth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() courierauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                         { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: courierauth.MetricsSnapshot{
			Counters:   map[courierauth.MetricID]uint64{},
			Histograms: map[courierauth.MetricID][]uint64{},
		},
		dropped: 0,
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
}

func TestRenderDeterministicIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: courierauth.MetricsSnapshot{
			Counters: map[courierauth.MetricID]uint64{
				courierauth.MetricOTPIssued: 7,
			},
			Histograms: map[courierauth.MetricID][]uint64{
				courierauth.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := exp.Render()
	if !strings.Contains(out, "courierauth_otp_issued_total 7") {
		t.Fatalf("expected otp_issued counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "courierauth_authenticate_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "courierauth_authenticate_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "courierauth_audit_dropped_total 2") {
		t.Fatalf("expected audit dropped counter in output, got:\n%s", out)
	}
}

func TestRenderLabelsDomainCounters(t *testing.T) {
	ctx := context.Background()
	db, err := courierauth.OpenDB(ctx, courierauth.DialectSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := courierauth.Migrate(ctx, db, courierauth.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := courierauth.DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false
	engine, err := courierauth.New().WithConfig(cfg).WithDB(db, courierauth.DialectSQLite).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	if _, err := engine.IssueOTP(ctx, courierauth.OTPRequest{Identifier: "2348000000000", Purpose: courierauth.PurposeLogin}); err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if err := engine.VerifyOTP(ctx, "2348000000000", "12", courierauth.PurposeLogin); err == nil {
		t.Fatal("expected wrong code to fail")
	}
	decision, err := engine.CheckRateLimit(ctx, courierauth.RateLimitRequest{
		Identifier: "2348000000000", Purpose: "payout", Max: 1, Window: time.Minute,
	})
	if err != nil || !decision.Allowed {
		t.Fatalf("first check: %+v %v", decision, err)
	}
	if decision, _ = engine.CheckRateLimit(ctx, courierauth.RateLimitRequest{
		Identifier: "2348000000000", Purpose: "payout", Max: 1, Window: time.Minute,
	}); decision.Allowed {
		t.Fatal("expected second check to be denied")
	}

	out := NewPrometheusExporter(engine).Render()
	for _, want := range []string{
		`courierauth_otp_issued_total{purpose="login"} 1`,
		`courierauth_otp_issued_total{purpose="signup"} 0`,
		`courierauth_otp_verify_failed_total{purpose="login"} 1`,
		`courierauth_rate_limit_hit_total{scope="check"} 1`,
		`courierauth_rate_limit_hit_total{scope="otp_request"} 0`,
		"courierauth_token_issued_total 0",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "courierauth_otp_issued_total 1") {
		t.Fatalf("labelled counter rendered as a bare total:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: courierauth.MetricsSnapshot{
			Counters:   map[courierauth.MetricID]uint64{courierauth.MetricOTPIssued: 1},
			Histograms: map[courierauth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: courierauth.MetricsSnapshot{
			Counters: map[courierauth.MetricID]uint64{
				courierauth.MetricOTPIssued:       1000,
				courierauth.MetricOTPVerified:     800,
				courierauth.MetricOTPVerifyFailed: 40,
				courierauth.MetricRateLimitHit:    25,
				courierauth.MetricTokenIssued:     800,
				courierauth.MetricAuthSuccess:     12000,
				courierauth.MetricAuthFailure:     3,
			},
			Histograms: map[courierauth.MetricID][]uint64{
				courierauth.MetricAuthenticateLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		dropped: 0,
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
