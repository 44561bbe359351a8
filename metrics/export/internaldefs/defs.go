package internaldefs

import (
	"github.com/MrEthical07/courierauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   courierauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   courierauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in rendering order.
var CounterDefs = []CounterDef{
	{ID: courierauth.MetricOTPIssued, Name: "courierauth_otp_issued_total", Help: "OTP codes issued and handed to a sender, by purpose."},
	{ID: courierauth.MetricOTPDeliveryFailed, Name: "courierauth_otp_delivery_failed_total", Help: "OTP codes discarded because delivery failed, by purpose."},
	{ID: courierauth.MetricOTPVerified, Name: "courierauth_otp_verified_total", Help: "Successful OTP verifications, by purpose."},
	{ID: courierauth.MetricOTPVerifyFailed, Name: "courierauth_otp_verify_failed_total", Help: "Failed OTP verifications, by purpose."},
	{ID: courierauth.MetricOTPAttemptsExceeded, Name: "courierauth_otp_attempts_exceeded_total", Help: "OTP records burned by the wrong-code cap, by purpose."},
	{ID: courierauth.MetricRateLimitHit, Name: "courierauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests, by scope."},
	{ID: courierauth.MetricTokenIssued, Name: "courierauth_token_issued_total", Help: "Session tokens issued."},
	{ID: courierauth.MetricTokenRevoked, Name: "courierauth_token_revoked_total", Help: "Session tokens added to the blacklist."},
	{ID: courierauth.MetricAuthSuccess, Name: "courierauth_auth_success_total", Help: "Requests authenticated."},
	{ID: courierauth.MetricAuthFailure, Name: "courierauth_auth_failure_total", Help: "Requests rejected for an invalid token."},
	{ID: courierauth.MetricAuthRevoked, Name: "courierauth_auth_revoked_total", Help: "Requests rejected for a revoked token."},
	{ID: courierauth.MetricAccountCreated, Name: "courierauth_account_created_total", Help: "Accounts created by OTP signup."},
	{ID: courierauth.MetricDeviceRegistered, Name: "courierauth_device_registered_total", Help: "Device upserts."},
	{ID: courierauth.MetricDeviceRegisterFailed, Name: "courierauth_device_register_failed_total", Help: "Failed device upserts."},
	{ID: courierauth.MetricCleanupRemoved, Name: "courierauth_cleanup_removed_total", Help: "Expired records removed by cleanup."},
}

// Series is one sample of a counter family. Label is empty for a bare total.
type Series struct {
	Label string
	Value string
	Count uint64
}

// CounterSeries expands def against snapshot. Counters the engine splits by
// purpose or scope yield one sample per label value, zero-filled. A source
// without a breakdown for def yields the bare total.
func CounterSeries(def CounterDef, snapshot courierauth.MetricsSnapshot) []Series {
	label, values := courierauth.MetricLabel(def.ID)
	byValue, ok := snapshot.Labeled[def.ID]
	if label == "" || !ok {
		return []Series{{Count: snapshot.Counters[def.ID]}}
	}
	out := make([]Series, 0, len(values))
	for _, v := range values {
		out = append(out, Series{Label: label, Value: v, Count: byValue[v]})
	}
	return out
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: courierauth.MetricAuthenticateLatency, Name: "courierauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds in a form valid inside an
// instrument name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
