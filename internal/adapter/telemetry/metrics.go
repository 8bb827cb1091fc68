// Package telemetry exposes camkeep's OpenTelemetry instruments.
//
// Instruments come from a metric.MeterProvider. Install sets up the SDK
// provider the camkeep binary records into; Nop serves tests and callers
// that do not care.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "camkeep"

// Metrics records recorder lifecycle and reclaim activity.
type Metrics struct {
	spawns         metric.Int64Counter
	restarts       metric.Int64Counter
	crashLoops     metric.Int64Counter
	spawnFailures  metric.Int64Counter
	filesDeleted   metric.Int64Counter
	bytesFreed     metric.Int64Counter
	deleteFailures metric.Int64Counter
	available      metric.Int64Gauge
}

// New creates instruments on the given provider.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var (
		out Metrics
		err error
	)
	if out.spawns, err = m.Int64Counter("camkeep.recorder.spawns",
		metric.WithDescription("Recorder processes started")); err != nil {
		return nil, err
	}
	if out.restarts, err = m.Int64Counter("camkeep.recorder.restarts",
		metric.WithDescription("Recorder restarts after an unrequested exit")); err != nil {
		return nil, err
	}
	if out.crashLoops, err = m.Int64Counter("camkeep.recorder.crash_loops",
		metric.WithDescription("Exits shorter than the restart threshold")); err != nil {
		return nil, err
	}
	if out.spawnFailures, err = m.Int64Counter("camkeep.recorder.spawn_failures",
		metric.WithDescription("Recorder processes that failed to start")); err != nil {
		return nil, err
	}
	if out.filesDeleted, err = m.Int64Counter("camkeep.reclaim.files_deleted",
		metric.WithDescription("Files deleted to reclaim space")); err != nil {
		return nil, err
	}
	if out.bytesFreed, err = m.Int64Counter("camkeep.reclaim.bytes_freed",
		metric.WithDescription("Bytes released by deletions"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	if out.deleteFailures, err = m.Int64Counter("camkeep.reclaim.delete_failures",
		metric.WithDescription("Reclaim candidates that could not be deleted")); err != nil {
		return nil, err
	}
	if out.available, err = m.Int64Gauge("camkeep.disk.available_bytes",
		metric.WithDescription("Free space on the storage filesystem"), metric.WithUnit("By")); err != nil {
		return nil, err
	}
	return &out, nil
}

// Nop returns instruments backed by a no-op provider. Never nil.
func Nop() *Metrics {
	m, _ := New(noop.NewMeterProvider())
	return m
}

func sourceAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("source", name))
}

func (m *Metrics) Spawned(ctx context.Context, source string) {
	m.spawns.Add(ctx, 1, sourceAttr(source))
}

func (m *Metrics) Restarted(ctx context.Context, source string) {
	m.restarts.Add(ctx, 1, sourceAttr(source))
}

func (m *Metrics) CrashLoop(ctx context.Context, source string) {
	m.crashLoops.Add(ctx, 1, sourceAttr(source))
}

func (m *Metrics) SpawnFailed(ctx context.Context, source string) {
	m.spawnFailures.Add(ctx, 1, sourceAttr(source))
}

func (m *Metrics) Deleted(ctx context.Context, size int64) {
	m.filesDeleted.Add(ctx, 1)
	m.bytesFreed.Add(ctx, size)
}

func (m *Metrics) DeleteFailed(ctx context.Context) {
	m.deleteFailures.Add(ctx, 1)
}

func (m *Metrics) Available(ctx context.Context, bytes int64) {
	m.available.Record(ctx, bytes)
}
