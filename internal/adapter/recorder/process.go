package recorder

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"camkeep/internal/domain"
)

// waitDelay bounds how long Wait keeps draining output after the recorder
// exits, in case a grandchild still holds the pipes.
const waitDelay = 5 * time.Second

// Runner starts recorder processes.
type Runner struct {
	logger domain.Logger
}

// NewRunner creates a runner that manages recorder process lifecycles.
func NewRunner(logger domain.Logger) *Runner {
	return &Runner{logger: logger}
}

// Start launches the command in its own process group with stdin detached.
// Output is delivered line by line to cmd.OnLine until the process exits.
func (r *Runner) Start(ctx context.Context, c domain.Command) (domain.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdin = nil
	stdout := newLineWriter("stdout", c.OnLine)
	stderr := newLineWriter("stderr", c.OnLine)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}
	r.logger.Debug("process started", "pid", cmd.Process.Pid, "path", c.Path)

	return &process{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type process struct {
	cmd    *exec.Cmd
	stdout *lineWriter
	stderr *lineWriter
}

func (p *process) PID() int { return p.cmd.Process.Pid }

// Wait blocks until exit. A non-zero code or a fatal signal is reported as
// *domain.ExitError.
func (p *process) Wait() error {
	err := p.cmd.Wait()
	p.stdout.Flush()
	p.stderr.Flush()

	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return &domain.ExitError{Code: -1, Signal: ws.Signal().String()}
		}
		return &domain.ExitError{Code: exitErr.ExitCode()}
	}
	return fmt.Errorf("wait: %w", err)
}

// Interrupt asks the whole process group to finish (SIGINT), which lets
// ffmpeg close the output container cleanly.
func (p *process) Interrupt() error {
	return p.signal(syscall.SIGINT)
}

// Kill terminates the process group immediately.
func (p *process) Kill() error {
	return p.signal(syscall.SIGKILL)
}

func (p *process) signal(sig syscall.Signal) error {
	if err := signalGroup(p.cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal %s: %w", sig, err)
	}
	return nil
}
