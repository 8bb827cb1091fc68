package recorder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Probe runs "<ffmpegPath> -version" and returns its first line.
func Probe(ctx context.Context, ffmpegPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", ffmpegPath, err)
	}

	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(first), nil
}
