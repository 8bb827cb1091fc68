package recorder

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"camkeep/internal/domain"
)

// TimestampLayout names output files so they sort chronologically.
const TimestampLayout = "20060102_150405"

// rtspReadTimeout is passed to ffmpeg's -timeout option, in microseconds.
const rtspReadTimeout = 10 * time.Second

// Builder constructs ffmpeg invocations that record a source into outputDir.
type Builder struct {
	ffmpegPath string
	outputDir  string
	now        func() time.Time
}

// NewBuilder creates a builder. now may be nil, meaning time.Now.
func NewBuilder(ffmpegPath, outputDir string, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{ffmpegPath: ffmpegPath, outputDir: outputDir, now: now}
}

// Build returns the command for one recording run. Each call yields a fresh
// output path stamped with the current time.
func (b *Builder) Build(src domain.Source) domain.Command {
	out := OutputPath(b.outputDir, src, b.now())
	return domain.Command{
		Path:   b.ffmpegPath,
		Args:   Args(src, out),
		Output: out,
	}
}

// Args builds the ffmpeg argument vector for src writing to outPath.
//
// RTSP defaults to UDP delivery, which silently drops packets on many
// networks, so RTSP endpoints are forced onto TCP with a read timeout.
func Args(src domain.Source, outPath string) []string {
	args := []string{"-hide_banner", "-nostdin"}
	if isRTSP(src.Endpoint) {
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", strconv.FormatInt(rtspReadTimeout.Microseconds(), 10),
		)
	}
	args = append(args, "-i", EndpointURL(src.Endpoint, src.EndpointArgs))
	if src.SegmentSeconds > 0 {
		args = append(args, "-t", strconv.Itoa(src.SegmentSeconds))
	}
	args = append(args, "-c", "copy")
	args = append(args, src.ExtraArgs...)
	return append(args, "-y", outPath)
}

// OutputPath returns <dir>/<timestamp>_<name>.<format>.
func OutputPath(dir string, src domain.Source, t time.Time) string {
	format := src.OutputFormat
	if format == "" {
		format = domain.DefaultOutputFormat
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", t.Format(TimestampLayout), src.Name, format))
}

// EndpointURL appends args to the endpoint's query string. The endpoint's
// own query is kept byte for byte; args are sorted by key so the result is
// stable across runs. A fragment stays at the end.
func EndpointURL(endpoint string, args map[string]string) string {
	if len(args) == 0 {
		return endpoint
	}
	base, frag := endpoint, ""
	if i := strings.IndexByte(endpoint, '#'); i >= 0 {
		base, frag = endpoint[:i], endpoint[i:]
	}
	return base + querySep(base) + encodeSorted(args) + frag
}

func querySep(endpoint string) string {
	switch {
	case !strings.Contains(endpoint, "?"):
		return "?"
	case strings.HasSuffix(endpoint, "?"), strings.HasSuffix(endpoint, "&"):
		return ""
	default:
		return "&"
	}
}

func encodeSorted(args map[string]string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(args[k]))
	}
	return strings.Join(parts, "&")
}

func isRTSP(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.HasPrefix(lower, "rtsp://") || strings.HasPrefix(lower, "rtsps://")
}
