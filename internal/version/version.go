// Package version holds build metadata set with -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Full() string {
	return fmt.Sprintf("camkeep %s, commit %s, built at %s", Version, Commit, Date)
}
