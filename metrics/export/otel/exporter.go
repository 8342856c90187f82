package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/secureauth"
	"github.com/MrEthical07/secureauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no snapshot source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() secureauth.MetricsSnapshot
	AuditDropped() uint64
}

type areaCounter struct {
	counter  metric.Int64ObservableCounter
	outcomes []outcome
	attrs    []metric.ObserveOption
}

// Exporter observes the engine through one counter per auth area, labelled
// by outcome, and a bucketed login latency gauge.
type Exporter struct {
	source       metricsSource
	registration metric.Registration

	areas    []areaCounter
	delivery metric.Int64ObservableCounter
	dropped  metric.ObserveOption

	latencyBuckets metric.Int64ObservableGauge
	latencyCount   metric.Int64ObservableGauge
	bucketAttrs    [secureauth.HistogramBucketCount]metric.ObserveOption
}

// NewExporter observes engine through meter.
func NewExporter(meter metric.Meter, engine *secureauth.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource observes any snapshot source through meter.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:  source,
		dropped: metric.WithAttributes(outcomeKey.String(auditDroppedLabel)),
	}
	var observables []metric.Observable

	for _, a := range areas {
		c, err := meter.Int64ObservableCounter(a.name,
			metric.WithDescription(a.help),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", a.name, err)
		}
		ac := areaCounter{counter: c, outcomes: a.outcomes}
		for _, o := range a.outcomes {
			ac.attrs = append(ac.attrs, metric.WithAttributes(outcomeKey.String(o.label)))
		}
		if a.name == "secureauth.delivery" {
			e.delivery = c
		}
		e.areas = append(e.areas, ac)
		observables = append(observables, c)
	}

	var err error
	e.latencyBuckets, err = meter.Int64ObservableGauge("secureauth.login.latency.bucket",
		metric.WithDescription("Cumulative login count at or below each latency bound."),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create login latency buckets: %w", err)
	}
	e.latencyCount, err = meter.Int64ObservableGauge("secureauth.login.latency.count",
		metric.WithDescription("Logins with a recorded latency."),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create login latency count: %w", err)
	}
	for i, le := range bucketBounds() {
		e.bucketAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}
	observables = append(observables, e.latencyBuckets, e.latencyCount)

	e.registration, err = meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, a := range e.areas {
		for i, out := range a.outcomes {
			o.ObserveInt64(a.counter, int64(snap.Counters[out.id]), a.attrs[i])
		}
	}
	o.ObserveInt64(e.delivery, int64(e.source.AuditDropped()), e.dropped)

	raw, ok := snap.Histograms[secureauth.MetricLoginLatency]
	if !ok {
		return nil
	}
	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
	for i, v := range cumulative {
		o.ObserveInt64(e.latencyBuckets, int64(v), e.bucketAttrs[i])
	}
	o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))
	return nil
}

// bucketBounds renders the latency bounds in seconds, ending with +Inf.
func bucketBounds() [secureauth.HistogramBucketCount]string {
	var out [secureauth.HistogramBucketCount]string
	for i, b := range internaldefs.HistogramUpperBounds {
		out[i] = fmt.Sprintf("%g", b)
	}
	out[len(out)-1] = "+Inf"
	return out
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
