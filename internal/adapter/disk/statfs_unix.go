//go:build unix

package disk

import (
	"golang.org/x/sys/unix"

	"camkeep/internal/domain"
)

func statfs(dir string) (domain.DiskUsage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return domain.DiskUsage{}, err
	}
	bsize := int64(st.Bsize)
	return domain.DiskUsage{
		Available: int64(st.Bavail) * bsize,
		Total:     int64(st.Blocks) * bsize,
	}, nil
}
