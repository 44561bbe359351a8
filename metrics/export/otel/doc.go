// Package otel publishes courierauth metrics through an OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per engine counter
// and one Int64ObservableGauge per histogram bucket, all fed by a single
// callback that reads [courierauth.Engine.MetricsSnapshot]. Purpose and scope
// breakdowns are observed as attributes on the same counter. The caller owns
// the MeterProvider.
package otel
