package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camkeep/internal/adapter/logger"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CAMKEEP_CONFIG", "CAMKEEP_STORAGE_DIR", "CAMKEEP_CLEANUP_THRESHOLD", "CAMKEEP_LOG_LEVEL", "CAMKEEP_FFMPEG"} {
		t.Setenv(k, "")
	}
}

const minimalJSON = `{
  "storageDir": "/srv/recordings",
  "cameras": [
    {"name": "front-door", "endpoint": "rtsp://10.0.0.5/stream1"}
  ]
}`

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalJSON), "json", logger.Discard())
	require.NoError(t, err)

	assert.Equal(t, "/srv/recordings", cfg.StorageDir)
	assert.Equal(t, FallbackCleanupThreshold, cfg.CleanupThreshold, "10GB is 10 GiB")
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, DefaultShutdownGrace, cfg.ShutdownGrace)

	require.Len(t, cfg.Sources, 1)
	src := cfg.Sources[0]
	assert.Equal(t, "front-door", src.Name)
	assert.Equal(t, 5*time.Second, src.RestartThreshold)
	assert.Equal(t, 60*time.Second, src.RestartDelay)
	assert.Equal(t, "mp4", src.OutputFormat)
	assert.Zero(t, src.SegmentSeconds)
}

func TestParse_AllFields(t *testing.T) {
	clearEnv(t)

	data := `{
  "storageDir": "/data",
  "cleanupThreshold": "512MB",
  "ffmpegPath": "/usr/local/bin/ffmpeg",
  "logLevel": "debug",
  "shutdownGraceSeconds": 3,
  "cameras": [
    {
      "name": "yard",
      "endpoint": "http://cam.local/video",
      "endpointArgs": {"user": "admin", "channel": "2"},
      "restartThresholdMs": 1500,
      "restartDelayMs": 9000,
      "outputFormat": "mkv",
      "segmentSeconds": 900,
      "extraArgs": ["-an"]
    }
  ]
}`
	cfg, err := Parse([]byte(data), "json", logger.Discard())
	require.NoError(t, err)

	assert.Equal(t, int64(512*1024*1024), cfg.CleanupThreshold)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ShutdownGrace)

	src := cfg.Sources[0]
	assert.Equal(t, map[string]string{"user": "admin", "channel": "2"}, src.EndpointArgs)
	assert.Equal(t, 1500*time.Millisecond, src.RestartThreshold)
	assert.Equal(t, 9*time.Second, src.RestartDelay)
	assert.Equal(t, "mkv", src.OutputFormat)
	assert.Equal(t, 900, src.SegmentSeconds)
	assert.Equal(t, []string{"-an"}, src.ExtraArgs)
}

func TestParse_YAML(t *testing.T) {
	clearEnv(t)

	data := `
storageDir: /srv/yaml
cleanupThreshold: 2GB
cameras:
  - name: porch
    endpoint: rtsp://porch/live
    endpointArgs:
      profile: main
`
	cfg, err := Parse([]byte(data), "yaml", logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "/srv/yaml", cfg.StorageDir)
	assert.Equal(t, int64(2*1024*1024*1024), cfg.CleanupThreshold)
	assert.Equal(t, "main", cfg.Sources[0].EndpointArgs["profile"])
}

func TestParse_TOML(t *testing.T) {
	clearEnv(t)

	data := `
storageDir = "/srv/toml"
cleanupThreshold = "1GB"

[[cameras]]
name = "dock"
endpoint = "rtsp://dock/live"
restartDelayMs = 30000

[[cameras]]
name = "gate"
endpoint = "rtsp://gate/live"
`
	cfg, err := Parse([]byte(data), "toml", logger.Discard())
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "dock", cfg.Sources[0].Name)
	assert.Equal(t, 30*time.Second, cfg.Sources[0].RestartDelay)
	assert.Equal(t, "gate", cfg.Sources[1].Name)
}

func TestParse_InvalidThresholdFallsBack(t *testing.T) {
	clearEnv(t)

	data := `{"storageDir": "/d", "cleanupThreshold": "not-a-size", "cameras": [{"name": "a", "endpoint": "rtsp://a"}]}`
	var buf bytes.Buffer
	cfg, err := Parse([]byte(data), "json", logger.New(&buf, "info"))
	require.NoError(t, err, "startup continues")

	assert.Equal(t, int64(10*1024*1024*1024), cfg.CleanupThreshold)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "not-a-size")
}

func TestParse_ValidationErrors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"missing storageDir", `{"cameras": [{"name": "a", "endpoint": "rtsp://a"}]}`, "storageDir"},
		{"missing cameras", `{"storageDir": "/d"}`, "cameras"},
		{"empty cameras", `{"storageDir": "/d", "cameras": []}`, "cameras"},
		{"empty name", `{"storageDir": "/d", "cameras": [{"name": " ", "endpoint": "rtsp://a"}]}`, "cameras[0].name"},
		{"slash in name", `{"storageDir": "/d", "cameras": [{"name": "a/b", "endpoint": "rtsp://a"}]}`, "cameras[0].name"},
		{"missing endpoint", `{"storageDir": "/d", "cameras": [{"name": "a"}]}`, "cameras[0].endpoint"},
		{"duplicate name", `{"storageDir": "/d", "cameras": [{"name": "a", "endpoint": "rtsp://a"}, {"name": "a", "endpoint": "rtsp://b"}]}`, "cameras[1].name"},
		{"zero threshold", `{"storageDir": "/d", "cameras": [{"name": "a", "endpoint": "rtsp://a", "restartThresholdMs": 0}]}`, "cameras[0].restartThresholdMs"},
		{"negative delay", `{"storageDir": "/d", "cameras": [{"name": "a", "endpoint": "rtsp://a", "restartDelayMs": -5}]}`, "cameras[0].restartDelayMs"},
		{"negative grace", `{"storageDir": "/d", "shutdownGraceSeconds": -1, "cameras": [{"name": "a", "endpoint": "rtsp://a"}]}`, "shutdownGraceSeconds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "json", logger.Discard())
			require.Error(t, err)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "want *config.Error, got %T", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	clearEnv(t)

	_, err := Parse([]byte(`{"storageDir": `), "json", logger.Discard())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "decode json config"))
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CAMKEEP_STORAGE_DIR", "/env/storage")
	t.Setenv("CAMKEEP_CLEANUP_THRESHOLD", "3GB")
	t.Setenv("CAMKEEP_LOG_LEVEL", "warn")
	t.Setenv("CAMKEEP_FFMPEG", "/opt/ffmpeg")

	cfg, err := Parse([]byte(minimalJSON), "json", logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "/env/storage", cfg.StorageDir)
	assert.Equal(t, int64(3*1024*1024*1024), cfg.CleanupThreshold)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/opt/ffmpeg", cfg.FFmpegPath)
}

func TestLoad_PicksFormatFromExtension(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	path := filepath.Join(dir, "camkeep.yml")
	require.NoError(t, os.WriteFile(path, []byte("storageDir: /y\ncameras:\n  - name: a\n    endpoint: rtsp://a\n"), 0644))

	cfg, err := Load(path, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, "/y", cfg.StorageDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"), logger.Discard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestResolvePath(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, DefaultPath, ResolvePath(""))

	t.Setenv("CAMKEEP_CONFIG", "/etc/camkeep.toml")
	assert.Equal(t, "/etc/camkeep.toml", ResolvePath(""))
	assert.Equal(t, "/flag.json", ResolvePath("/flag.json"))
}

func TestParseThreshold(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 10 * 1024 * 1024 * 1024},
		{"10GB", 10 * 1024 * 1024 * 1024},
		{"500MB", 500 * 1024 * 1024},
		{"1.5GB", 1536 * 1024 * 1024},
		{"2048", 2048},
		{"garbage", FallbackCleanupThreshold},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseThreshold(tt.in, nil), "ParseThreshold(%q)", tt.in)
	}
}
