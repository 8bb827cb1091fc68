package disk

import (
	"camkeep/internal/domain"
)

// Sampler reports free space on the filesystem that holds a directory.
type Sampler struct{}

// NewSampler creates a statfs-backed sampler.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Check returns the space available to unprivileged users and the total size
// of the filesystem holding dir. Failures are *domain.DiskQueryError.
func (s *Sampler) Check(dir string) (domain.DiskUsage, error) {
	usage, err := statfs(dir)
	if err != nil {
		return domain.DiskUsage{}, &domain.DiskQueryError{Path: dir, Err: err}
	}
	return usage, nil
}
