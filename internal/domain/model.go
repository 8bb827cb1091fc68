package domain

import (
	"time"
)

// Restart policy defaults applied when a source leaves them unset.
const (
	DefaultRestartThreshold = 5 * time.Second
	DefaultRestartDelay     = 60 * time.Second
	DefaultOutputFormat     = "mp4"
)

// Source is one configured recording origin (a camera).
type Source struct {
	Name             string
	Endpoint         string
	EndpointArgs     map[string]string
	RestartThreshold time.Duration
	RestartDelay     time.Duration
	OutputFormat     string
	SegmentSeconds   int
	ExtraArgs        []string
}

// State is the lifecycle position of a single recorder supervisor.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateBackoff
	StateRestarting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateRestarting:
		return "restarting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SupervisorStatus is a point-in-time view of a supervisor.
type SupervisorStatus struct {
	Name      string
	State     State
	PID       int
	Restarts  int
	StartedAt time.Time
}

// FileRecord describes one regular file found under the storage directory.
type FileRecord struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// DiskUsage is the result of sampling a filesystem.
type DiskUsage struct {
	Available int64
	Total     int64
}
