package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options configures the process meter provider.
type Options struct {
	Version  string
	Export   io.Writer     // periodic JSON export target; nil disables export
	Interval time.Duration // export period; <= 0 disables export
}

// Provider is the SDK meter provider installed as the otel global, plus
// the instruments built on it.
type Provider struct {
	Metrics *Metrics

	mp     *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// Install builds an SDK meter provider, makes it the global provider and
// creates camkeep's instruments on it. A manual reader is always attached
// so Snapshot works; a periodic stdout exporter is added when opts asks
// for one.
func Install(opts Options) (*Provider, error) {
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(meterName),
		semconv.ServiceVersion(opts.Version),
	)

	p := &Provider{reader: sdkmetric.NewManualReader()}
	mpOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(p.reader),
	}
	if opts.Export != nil && opts.Interval > 0 {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(opts.Export))
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		mpOpts = append(mpOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(opts.Interval)),
		))
	}
	p.mp = sdkmetric.NewMeterProvider(mpOpts...)
	otel.SetMeterProvider(p.mp)

	m, err := New(p.mp)
	if err != nil {
		return nil, errors.Join(err, p.mp.Shutdown(context.Background()))
	}
	p.Metrics = m
	return p, nil
}

// Snapshot collects current values keyed by instrument name. Counters are
// summed across attributes; a gauge keeps its last point.
func (p *Provider) Snapshot(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	return flatten(rm), nil
}

// Shutdown flushes the exporter, if any, and releases the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}

func flatten(rm metricdata.ResourceMetrics) map[string]int64 {
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}
