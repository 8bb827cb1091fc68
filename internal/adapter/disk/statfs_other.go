//go:build !unix

package disk

import (
	"errors"

	"camkeep/internal/domain"
)

func statfs(string) (domain.DiskUsage, error) {
	return domain.DiskUsage{}, errors.New("disk sampling is not supported on this platform")
}
