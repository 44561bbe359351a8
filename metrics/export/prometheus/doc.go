// Package prometheus renders courierauth metrics in the Prometheus text
// exposition format.
//
// [NewPrometheusExporter] reads [courierauth.Engine.MetricsSnapshot] on every
// scrape. Counters are named courierauth_*_total. OTP outcomes carry a
// purpose label and rate-limit hits a scope label; every label value is
// rendered, zero or not. The single histogram is
// courierauth_authenticate_latency_seconds. Nothing is registered globally:
// callers mount [PrometheusExporter.Handler].
package prometheus
