package app

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"camkeep/internal/adapter/telemetry"
	"camkeep/internal/domain"
)

// Output forwarding limits per supervisor. Lines beyond the burst are
// counted and reported as a single summary record.
const (
	defaultLineRate  = rate.Limit(20)
	defaultLineBurst = 50
)

// progressPrefixes mark ffmpeg status lines that repeat every few hundred
// milliseconds and carry nothing worth keeping.
var progressPrefixes = []string{"frame=", "size="}

// Supervisor keeps one recorder process alive for a single source.
//
// After an unrequested exit the recorder is respawned immediately, unless
// it ran for less than the source's restart threshold, in which case the
// restart waits for the restart delay. Stop is the only way out.
type Supervisor struct {
	src     domain.Source
	builder domain.CommandBuilder
	runner  domain.ProcessRunner
	logger  domain.Logger
	metrics *telemetry.Metrics
	lines   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
	killOnce  sync.Once
	stopCh    chan struct{}
	killCh    chan struct{}
	done      chan struct{}

	state     atomic.Int32
	pid       atomic.Int64
	restarts  atomic.Int64
	startedAt atomic.Int64 // unix nanos of the current run, 0 if none
}

// SupervisorOption customizes a Supervisor.
type SupervisorOption func(*Supervisor)

// WithMetrics records lifecycle events on m.
func WithMetrics(m *telemetry.Metrics) SupervisorOption {
	return func(s *Supervisor) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLineLimit overrides the output forwarding rate.
func WithLineLimit(perSecond rate.Limit, burst int) SupervisorOption {
	return func(s *Supervisor) {
		s.lines = rate.NewLimiter(perSecond, burst)
	}
}

// NewSupervisor creates an idle supervisor for src. Zero restart settings
// take the package defaults.
func NewSupervisor(
	src domain.Source,
	builder domain.CommandBuilder,
	runner domain.ProcessRunner,
	lg domain.Logger,
	opts ...SupervisorOption,
) *Supervisor {
	if src.RestartThreshold <= 0 {
		src.RestartThreshold = domain.DefaultRestartThreshold
	}
	if src.RestartDelay <= 0 {
		src.RestartDelay = domain.DefaultRestartDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		src:     src,
		builder: builder,
		runner:  runner,
		logger:  lg.With("source", src.Name),
		metrics: telemetry.Nop(),
		lines:   rate.NewLimiter(defaultLineRate, defaultLineBurst),
		ctx:     ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		killCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Name returns the source name.
func (s *Supervisor) Name() string { return s.src.Name }

// Start launches the control loop. Calls after the first are no-ops.
func (s *Supervisor) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Stop asks the supervisor to terminate. A live recorder is interrupted so
// it can finalize its output; a pending restart is cancelled. Stop does not
// wait; use Done for that.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.cancel()
	})
	// Never started: nothing will close done otherwise.
	s.startOnce.Do(func() {
		s.state.Store(int32(domain.StateStopped))
		close(s.done)
	})
}

// Kill stops the supervisor and force-kills a recorder that is still
// shutting down.
func (s *Supervisor) Kill() {
	s.Stop()
	s.killOnce.Do(func() { close(s.killCh) })
}

// Done is closed once the supervisor has reached the stopped state.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Status reports the current lifecycle state.
func (s *Supervisor) Status() domain.SupervisorStatus {
	st := domain.SupervisorStatus{
		Name:     s.src.Name,
		State:    domain.State(s.state.Load()),
		PID:      int(s.pid.Load()),
		Restarts: int(s.restarts.Load()),
	}
	if ns := s.startedAt.Load(); ns != 0 {
		st.StartedAt = time.Unix(0, ns)
	}
	return st
}

func (s *Supervisor) stopRequested() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Supervisor) setState(st domain.State) {
	s.state.Store(int32(st))
	s.logger.Debug("state changed", "state", st.String())
}

func (s *Supervisor) run() {
	defer close(s.done)
	defer s.setState(domain.StateStopped)
	defer s.cancel()

	for {
		if s.stopRequested() {
			s.logger.Info("supervisor stopped")
			return
		}
		s.setState(domain.StateRunning)
		ranFor := s.runOnce()
		if s.stopRequested() {
			s.logger.Info("supervisor stopped")
			return
		}

		if delay := restartDelay(ranFor, s.src); delay > 0 {
			s.metrics.CrashLoop(s.ctx, s.src.Name)
			s.logger.Warn("recorder exited too quickly, delaying restart",
				"ran_for", ranFor.Round(time.Millisecond),
				"threshold", s.src.RestartThreshold,
				"delay", delay)
			s.setState(domain.StateBackoff)
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-s.stopCh:
				timer.Stop()
				s.logger.Info("pending restart cancelled")
				return
			}
		} else {
			s.setState(domain.StateRestarting)
		}

		s.restarts.Add(1)
		s.metrics.Restarted(s.ctx, s.src.Name)
		s.logger.Info("restarting recorder", "restarts", s.restarts.Load())
	}
}

// runOnce spawns one recorder and blocks until it exits. It returns how
// long the run lasted, measured from the spawn attempt, so a failed spawn
// counts as a zero-length run.
func (s *Supervisor) runOnce() time.Duration {
	log := s.logger.With("run", uuid.NewString())
	fwd := &outputForwarder{log: log, limiter: s.lines}

	cmd := s.builder.Build(s.src)
	cmd.OnLine = fwd.Line

	startedAt := time.Now()
	proc, err := s.runner.Start(s.ctx, cmd)
	if err != nil {
		s.metrics.SpawnFailed(s.ctx, s.src.Name)
		log.Error("failed to start recorder", "path", cmd.Path, "err", err)
		return time.Since(startedAt)
	}

	s.pid.Store(int64(proc.PID()))
	s.startedAt.Store(startedAt.UnixNano())
	s.metrics.Spawned(s.ctx, s.src.Name)
	log.Info("recorder started", "pid", proc.PID(), "output", cmd.Output)

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	var waitErr error
	select {
	case waitErr = <-exited:
	case <-s.stopCh:
		log.Info("interrupting recorder", "pid", proc.PID())
		if err := proc.Interrupt(); err != nil {
			log.Error("interrupt failed", "pid", proc.PID(), "err", err)
		}
		select {
		case waitErr = <-exited:
		case <-s.killCh:
			log.Warn("recorder did not exit in time, killing", "pid", proc.PID())
			if err := proc.Kill(); err != nil {
				log.Error("kill failed", "pid", proc.PID(), "err", err)
			}
			waitErr = <-exited
		}
	}

	ranFor := time.Since(startedAt)
	s.pid.Store(0)
	s.startedAt.Store(0)
	fwd.Flush()

	if waitErr != nil {
		log.Warn("recorder exited", "ran_for", ranFor.Round(time.Millisecond), "err", waitErr)
	} else {
		log.Info("recorder exited", "ran_for", ranFor.Round(time.Millisecond))
	}
	return ranFor
}

// restartDelay returns how long to wait before respawning after an
// unrequested exit. A negative ranFor means the run time is unknown, which
// never delays. A failed spawn is timed from the attempt, so it counts as a
// short run and takes RestartDelay rather than retrying at once.
func restartDelay(ranFor time.Duration, src domain.Source) time.Duration {
	if ranFor >= 0 && ranFor < src.RestartThreshold {
		return src.RestartDelay
	}
	return 0
}

// outputForwarder relays recorder output lines to the log. It is called
// from both stream copiers concurrently.
type outputForwarder struct {
	log        domain.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

func (f *outputForwarder) Line(stream, line string) {
	if isProgress(line) {
		return
	}
	if !f.limiter.Allow() {
		f.suppressed.Add(1)
		return
	}
	f.Flush()
	f.log.Info("recorder output", "stream", stream, "line", line)
}

// Flush reports lines dropped by the rate limit since the last call.
func (f *outputForwarder) Flush() {
	if n := f.suppressed.Swap(0); n > 0 {
		f.log.Warn("recorder output suppressed", "lines", n)
	}
}

func isProgress(line string) bool {
	for _, p := range progressPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
