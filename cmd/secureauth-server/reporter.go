package main

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/secureauth"
	otelexport "github.com/MrEthical07/secureauth/metrics/export/otel"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// metricsReporter collects engine counters through an OpenTelemetry
// manual reader and writes the non-zero values to the log, one field per
// area and outcome. Latency buckets are left out.
type metricsReporter struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
	exporter *otelexport.Exporter
}

func newMetricsReporter(engine *secureauth.Engine) (*metricsReporter, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter, err := otelexport.NewExporter(provider.Meter("secureauth"), engine)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return &metricsReporter{reader: reader, provider: provider, exporter: exporter}, nil
}

func (r *metricsReporter) collect(ctx context.Context) (logrus.Fields, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	fields := logrus.Fields{}
	add := func(name string, attrs attribute.Set, v int64) {
		if v == 0 {
			return
		}
		if _, bucket := attrs.Value("le"); bucket {
			return
		}
		if outcome, ok := attrs.Value("outcome"); ok {
			name += "." + outcome.AsString()
		}
		fields[name] = v
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					add(m.Name, dp.Attributes, dp.Value)
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					add(m.Name, dp.Attributes, dp.Value)
				}
			}
		}
	}
	return fields, nil
}

func (r *metricsReporter) loop(ctx context.Context, every time.Duration, log logrus.FieldLogger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fields, err := r.collect(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.WithError(err).Warn("collect metrics failed")
				}
				continue
			}
			log.WithFields(fields).Info("auth metrics")
		}
	}
}

func (r *metricsReporter) close() {
	_ = r.exporter.Close()
	_ = r.provider.Shutdown(context.Background())
}
