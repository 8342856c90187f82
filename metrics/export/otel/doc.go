// Package otel exports secureauth engine metrics through OpenTelemetry.
//
// [NewExporter] registers one Int64ObservableCounter per auth area
// (secureauth.login, secureauth.two_factor, secureauth.session and so on)
// with an "outcome" attribute per engine counter, plus login latency gauges
// labelled by "le" bound. A single callback reads Engine.MetricsSnapshot on
// each collection cycle. Callers own the MeterProvider.
package otel
