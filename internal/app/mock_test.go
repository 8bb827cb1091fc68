package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"camkeep/internal/domain"
)

// mockBuilder returns a fixed command per source.
type mockBuilder struct{}

func (mockBuilder) Build(src domain.Source) domain.Command {
	return domain.Command{
		Path:   "ffmpeg",
		Args:   []string{"-i", src.Endpoint, src.Name + ".mp4"},
		Output: src.Name + ".mp4",
	}
}

// mockProcess exits when its exit channel receives. Interrupt makes it exit
// cleanly unless ignoreInterrupt is set; Kill always does.
type mockProcess struct {
	pid             int
	exit            chan error
	ignoreInterrupt bool

	mu          sync.Mutex
	interrupted bool
	killed      bool
	exitedAt    time.Time
}

func newMockProcess(pid int) *mockProcess {
	return &mockProcess{pid: pid, exit: make(chan error, 1)}
}

func (p *mockProcess) PID() int { return p.pid }

func (p *mockProcess) Wait() error {
	err := <-p.exit
	p.mu.Lock()
	p.exitedAt = time.Now()
	p.mu.Unlock()
	return err
}

func (p *mockProcess) finish(err error) {
	select {
	case p.exit <- err:
	default:
	}
}

func (p *mockProcess) Interrupt() error {
	p.mu.Lock()
	p.interrupted = true
	ignore := p.ignoreInterrupt
	p.mu.Unlock()
	if !ignore {
		p.finish(nil)
	}
	return nil
}

func (p *mockProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.finish(&domain.ExitError{Code: -1, Signal: "killed"})
	return nil
}

func (p *mockProcess) wasInterrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

func (p *mockProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *mockProcess) exitTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitedAt
}

// mockRunner hands out mockProcesses and records every spawn attempt.
// startFn, if set, decides the outcome of each attempt.
type mockRunner struct {
	startFn func(n int, cmd domain.Command) (*mockProcess, error)

	mu       sync.Mutex
	attempts []time.Time
	procs    []*mockProcess
	cmds     []domain.Command
	started  chan *mockProcess
}

func newMockRunner(startFn func(n int, cmd domain.Command) (*mockProcess, error)) *mockRunner {
	return &mockRunner{startFn: startFn, started: make(chan *mockProcess, 64)}
}

func (r *mockRunner) Start(_ context.Context, cmd domain.Command) (domain.Process, error) {
	r.mu.Lock()
	n := len(r.attempts)
	r.attempts = append(r.attempts, time.Now())
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()

	var (
		p   *mockProcess
		err error
	)
	if r.startFn != nil {
		p, err = r.startFn(n, cmd)
	} else {
		p = newMockProcess(1000 + n)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.procs = append(r.procs, p)
	r.mu.Unlock()
	select {
	case r.started <- p:
	default:
	}
	return p, nil
}

func (r *mockRunner) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts)
}

func (r *mockRunner) attemptTimes() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.attempts...)
}

// mockSampler returns a fixed usage or error.
type mockSampler struct {
	usage domain.DiskUsage
	err   error

	mu    sync.Mutex
	calls int
}

func (m *mockSampler) Check(string) (domain.DiskUsage, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.usage, m.err
}

func (m *mockSampler) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockFS is an in-memory file tree serving both inventory and removal.
// Paths in failPaths refuse deletion.
type mockFS struct {
	mu        sync.Mutex
	files     map[string]domain.FileRecord
	failPaths map[string]bool
	removed   []string
	scans     int
	onRemove  func(path string) // called after a successful delete
}

func newMockFS(records ...domain.FileRecord) *mockFS {
	fs := &mockFS{files: make(map[string]domain.FileRecord), failPaths: make(map[string]bool)}
	for _, r := range records {
		fs.files[r.Path] = r
	}
	return fs
}

func (m *mockFS) Scan(_ context.Context, _ string) iter.Seq[domain.FileRecord] {
	return func(yield func(domain.FileRecord) bool) {
		m.mu.Lock()
		m.scans++
		snapshot := make([]domain.FileRecord, 0, len(m.files))
		for _, r := range m.files {
			snapshot = append(snapshot, r)
		}
		m.mu.Unlock()
		for _, r := range snapshot {
			if !yield(r) {
				return
			}
		}
	}
}

func (m *mockFS) Remove(path string) error {
	m.mu.Lock()
	if m.failPaths[path] {
		m.mu.Unlock()
		return &domain.DeleteError{Path: path, Err: errors.New("permission denied")}
	}
	if _, ok := m.files[path]; !ok {
		m.mu.Unlock()
		return &domain.DeleteError{Path: path, Err: fmt.Errorf("no such file")}
	}
	delete(m.files, path)
	m.removed = append(m.removed, path)
	hook := m.onRemove
	m.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	return nil
}

func (m *mockFS) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *mockFS) scanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

// mockLogger records messages by level. Safe for concurrent use.
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{}
}

func (m *mockLogger) add(s string) {
	m.mu.Lock()
	m.messages = append(m.messages, s)
	m.mu.Unlock()
}

func (m *mockLogger) Debug(msg string, args ...any) { m.add("DEBUG: " + msg) }
func (m *mockLogger) Info(msg string, args ...any)  { m.add(msg) }
func (m *mockLogger) Warn(msg string, args ...any)  { m.add("WARN: " + msg) }
func (m *mockLogger) Error(msg string, args ...any) { m.add("ERROR: " + msg) }

// With returns m itself so child loggers share the buffer.
func (m *mockLogger) With(args ...any) domain.Logger { return m }

func (m *mockLogger) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func (m *mockLogger) count(msg string) int {
	n := 0
	for _, s := range m.all() {
		if s == msg {
			n++
		}
	}
	return n
}
