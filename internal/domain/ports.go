package domain

import (
	"context"
	"iter"
)

// Command is a fully built child process invocation.
// OnLine, if set, receives every output line with the stream name ("stdout" or "stderr").
type Command struct {
	Path   string
	Args   []string
	Output string // file the run records into
	OnLine func(stream, line string)
}

// Process is a handle to a running child.
// Wait blocks until the process exits and may be called once.
type Process interface {
	PID() int
	Wait() error
	Interrupt() error
	Kill() error
}

// ProcessRunner spawns child processes.
type ProcessRunner interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// CommandBuilder turns a source into the invocation that records it.
type CommandBuilder interface {
	Build(src Source) Command
}

// DiskSampler reports free space for the filesystem holding dir.
type DiskSampler interface {
	Check(dir string) (DiskUsage, error)
}

// FileInventory lists every regular file under a root. Each call walks the tree afresh.
type FileInventory interface {
	Scan(ctx context.Context, root string) iter.Seq[FileRecord]
}

// FileRemover deletes a single file.
type FileRemover interface {
	Remove(path string) error
}

// Logger provides structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}
