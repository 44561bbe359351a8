package courierauth

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// collectEvents reads from sink until n events arrived or the timeout hit.
func collectEvents(sink *ChannelSink, n int) []AuditEvent {
	events := make([]AuditEvent, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev := <-sink.Events():
			events = append(events, ev)
		case <-timeout:
			return events
		}
	}
	return events
}

func findEvent(events []AuditEvent, eventType string) (AuditEvent, bool) {
	for _, ev := range events {
		if ev.EventType == eventType {
			return ev, true
		}
	}
	return AuditEvent{}, false
}

func TestAuditOTPLifecycle(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := WithClientIP(context.Background(), "198.51.100.4")

	code := env.issue(t, ctx, testPhone, PurposeSignup)
	if err := env.engine.VerifyOTP(ctx, testPhone, code, PurposeSignup); err != nil {
		t.Fatalf("verify: %v", err)
	}
	_ = env.engine.VerifyOTP(ctx, testPhone, code, PurposeSignup)

	events := collectEvents(env.sink, 3)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	issued, ok := findEvent(events, auditEventOTPIssued)
	if !ok {
		t.Fatal("missing otp_issued event")
	}
	if issued.Identifier != "2348*****0000" {
		t.Fatalf("identifier not masked: %q", issued.Identifier)
	}
	if issued.IP != "198.51.100.4" {
		t.Fatalf("expected client ip on event, got %q", issued.IP)
	}
	if issued.Metadata["channel"] != "sms" {
		t.Fatalf("expected channel metadata, got %v", issued.Metadata)
	}

	if _, ok := findEvent(events, auditEventOTPVerified); !ok {
		t.Fatal("missing otp_verified event")
	}
	failed, ok := findEvent(events, auditEventOTPVerifyFailed)
	if !ok {
		t.Fatal("missing otp_verify_failed event")
	}
	if failed.Success || failed.Error != string(auditErrOTPNotFound) {
		t.Fatalf("unexpected failure event: %+v", failed)
	}
}

func TestAuditNeverCarriesCodeOrToken(t *testing.T) {
	env := newTestEngine(t, testConfig())
	ctx := context.Background()

	code := env.issue(t, ctx, testPhone, PurposeSignup)
	session, err := env.engine.CompleteOTP(ctx, OTPCompletion{Identifier: testPhone, Code: code, Purpose: PurposeSignup})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := env.engine.RevokeToken(ctx, session.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	env.engine.Close()

	var events []AuditEvent
drain:
	for {
		select {
		case ev := <-env.sink.Events():
			events = append(events, ev)
		default:
			break drain
		}
	}
	if len(events) < 5 {
		t.Fatalf("expected at least 5 events, got %d", len(events))
	}

	for _, ev := range events {
		var buf bytes.Buffer
		NewJSONWriterSink(&buf).Emit(ctx, ev)
		line := buf.String()
		if strings.Contains(line, session.Token) {
			t.Fatalf("token leaked in audit event %s", ev.EventType)
		}
		if strings.Contains(line, testPhone) {
			t.Fatalf("unmasked identifier in audit event %s", ev.EventType)
		}
		if strings.Contains(ev.Error, code) || strings.Contains(ev.Identifier, code) {
			t.Fatalf("code leaked in audit event %s", ev.EventType)
		}
		for k, v := range ev.Metadata {
			if strings.Contains(k, code) || strings.Contains(v, code) {
				t.Fatalf("code leaked in audit metadata of %s", ev.EventType)
			}
		}
	}
}

func TestAuditRateLimitEvent(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Purposes[PurposeLogin] = Policy{Max: 1, Window: time.Hour}
	env := newTestEngine(t, cfg)
	ctx := context.Background()

	env.issue(t, ctx, testPhone, PurposeLogin)
	if _, err := env.engine.IssueOTP(ctx, OTPRequest{Identifier: testPhone, Purpose: PurposeLogin}); err == nil {
		t.Fatal("expected rate limit")
	}

	events := collectEvents(env.sink, 2)
	ev, ok := findEvent(events, auditEventRateLimited)
	if !ok {
		t.Fatal("missing rate limit event")
	}
	if ev.Metadata["scope"] != scopeOTPRequest || ev.Metadata["limit"] != "1" || ev.Metadata["count"] != "2" {
		t.Fatalf("unexpected metadata: %v", ev.Metadata)
	}
	if ev.Error != string(auditErrRateLimited) {
		t.Fatalf("unexpected error code %q", ev.Error)
	}
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = false
	env := newTestEngine(t, cfg)

	env.issue(t, context.Background(), testPhone, PurposeLogin)
	time.Sleep(30 * time.Millisecond)

	select {
	case ev := <-env.sink.Events():
		t.Fatalf("expected no events when disabled, got %s", ev.EventType)
	default:
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrOTPNotFound, auditErrOTPNotFound},
		{ErrOTPAttemptsExceeded, auditErrAttemptsExceeded},
		{&RateLimitError{Scope: scopeCheck}, auditErrRateLimited},
		{ErrTokenRevoked, auditErrTokenRevoked},
		{storeError(ErrInvalidToken), auditErrInvalidToken},
		{ErrInvalidPurpose, auditErrInvalidRequest},
		{ErrAccountExists, auditErrDuplicate},
		{ErrDeliveryFailed, auditErrDeliveryFailed},
		{storeError(context.DeadlineExceeded), auditErrUnavailable},
		{context.Canceled, auditErrInternal},
	}
	for _, tt := range tests {
		if got := auditErrorCode(tt.err); got != tt.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestAuditDropIfFull(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true

	gate := make(chan struct{})
	var once sync.Once
	sink := auditSinkFunc(func(context.Context, AuditEvent) { <-gate })

	env := newTestEngineWithSink(t, cfg, sink)
	defer once.Do(func() { close(gate) })

	for i := 0; i < 5; i++ {
		_, _ = env.engine.IssueToken(context.Background(), Subject{UserID: "u1", Role: RoleCustomer})
	}

	deadline := time.Now().Add(time.Second)
	for env.engine.AuditDropped() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if env.engine.AuditDropped() < 3 {
		t.Fatalf("expected at least 3 dropped events, got %d", env.engine.AuditDropped())
	}
	once.Do(func() { close(gate) })
}

type auditSinkFunc func(context.Context, AuditEvent)

func (f auditSinkFunc) Emit(ctx context.Context, ev AuditEvent) { f(ctx, ev) }
