package app

import (
	"context"
	"fmt"
	"time"

	units "github.com/docker/go-units"

	"camkeep/internal/adapter/telemetry"
	"camkeep/internal/domain"
)

const (
	// DefaultReclaimInterval is the period between disk checks.
	DefaultReclaimInterval = 60 * time.Second
	// killWait bounds how long Shutdown waits for killed recorders to be reaped.
	killWait = 5 * time.Second
)

// Config holds resolved runtime configuration for the scheduler.
type Config struct {
	StorageDir       string
	CleanupThreshold int64
	Sources          []domain.Source
	ShutdownGrace    time.Duration
	ReclaimInterval  time.Duration
}

// TickResult is what one disk check observed and did.
type TickResult struct {
	Available int64
	Deficit   int64
	Reclaim   *ReclaimResult // nil when no reclaim was needed
}

// Scheduler owns the supervisors and the periodic disk check.
type Scheduler struct {
	cfg         Config
	supervisors []*Supervisor
	sampler     domain.DiskSampler
	reclaimer   *Reclaimer
	logger      domain.Logger
	metrics     *telemetry.Metrics
}

// NewScheduler creates a supervisor per configured source and wires the
// reclaimer. Nothing runs until Run is called.
func NewScheduler(
	cfg Config,
	builder domain.CommandBuilder,
	runner domain.ProcessRunner,
	sampler domain.DiskSampler,
	inventory domain.FileInventory,
	remover domain.FileRemover,
	lg domain.Logger,
	m *telemetry.Metrics,
) *Scheduler {
	if m == nil {
		m = telemetry.Nop()
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = DefaultReclaimInterval
	}
	s := &Scheduler{
		cfg:       cfg,
		sampler:   sampler,
		reclaimer: NewReclaimer(inventory, remover, lg, m),
		logger:    lg,
		metrics:   m,
	}
	for _, src := range cfg.Sources {
		s.supervisors = append(s.supervisors, NewSupervisor(src, builder, runner, lg, WithMetrics(m)))
	}
	return s
}

// Run starts every supervisor, checks the disk right away and then once per
// interval. When ctx is cancelled it shuts the supervisors down and returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting",
		"sources", len(s.supervisors),
		"storage", s.cfg.StorageDir,
		"threshold", units.BytesSize(float64(s.cfg.CleanupThreshold)),
		"interval", s.cfg.ReclaimInterval)

	for _, sv := range s.supervisors {
		sv.Start()
	}

	s.Tick(ctx)

	ticker := time.NewTicker(s.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down", "grace", s.cfg.ShutdownGrace)
			graceCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
			defer cancel()
			if err := s.Shutdown(graceCtx); err != nil {
				s.logger.Warn("shutdown incomplete", "err", err)
			}
			for _, st := range s.Status() {
				s.logger.Info("recorder summary", "source", st.Name, "state", st.State.String(), "restarts", st.Restarts)
			}
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick samples free space once and reclaims the deficit, if any. A failed
// sample skips the tick.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	usage, err := s.sampler.Check(s.cfg.StorageDir)
	if err != nil {
		s.logger.Error("disk check failed, skipping", "dir", s.cfg.StorageDir, "err", err)
		return TickResult{}, err
	}
	s.metrics.Available(ctx, usage.Available)

	res := TickResult{
		Available: usage.Available,
		Deficit:   Deficit(s.cfg.CleanupThreshold, usage.Available),
	}
	if res.Deficit == 0 {
		s.logger.Debug("disk ok", "available", units.BytesSize(float64(usage.Available)))
		return res, nil
	}

	s.logger.Info("free space below threshold",
		"available", units.BytesSize(float64(usage.Available)),
		"threshold", units.BytesSize(float64(s.cfg.CleanupThreshold)),
		"deficit", res.Deficit)
	rr := s.reclaimer.Reclaim(ctx, s.cfg.StorageDir, res.Deficit)
	res.Reclaim = &rr
	return res, nil
}

// Shutdown stops every supervisor and waits for them until ctx is done.
// Supervisors still running after that are killed.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	for _, sv := range s.supervisors {
		sv.Stop()
	}

	var stragglers []*Supervisor
	for _, sv := range s.supervisors {
		select {
		case <-sv.Done():
		case <-ctx.Done():
			select {
			case <-sv.Done():
			default:
				stragglers = append(stragglers, sv)
			}
		}
	}
	if len(stragglers) == 0 {
		s.logger.Info("all recorders stopped")
		return nil
	}

	for _, sv := range stragglers {
		s.logger.Warn("grace period expired, killing recorder", "source", sv.Name())
		sv.Kill()
	}
	deadline := time.NewTimer(killWait)
	defer deadline.Stop()
	for _, sv := range stragglers {
		select {
		case <-sv.Done():
		case <-deadline.C:
			return fmt.Errorf("recorder %q did not exit after kill", sv.Name())
		}
	}
	return fmt.Errorf("killed %d recorder(s) after grace period", len(stragglers))
}

// Status returns a snapshot of every supervisor, in configuration order.
func (s *Scheduler) Status() []domain.SupervisorStatus {
	out := make([]domain.SupervisorStatus, 0, len(s.supervisors))
	for _, sv := range s.supervisors {
		out = append(out, sv.Status())
	}
	return out
}

// Reclaimer exposes the reclaimer for one-shot use.
func (s *Scheduler) Reclaimer() *Reclaimer { return s.reclaimer }
