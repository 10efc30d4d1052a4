package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Effect: EffectConfig{
			MinBlockSize: 10,
			MaxBlockSize: 40,
			Step:         5,
			BlockSize:    20,
		},
		Pool:      PoolConfig{Size: 4, Policy: "block"},
		Capture:   CaptureConfig{Source: "pattern", Width: 64, Height: 48, FrameRate: 30},
		Transcode: TranscodeConfig{JPEGQuality: 85},
		Recording: RecordingConfig{QueueSize: 8, JPEGQuality: 85},
		Snapshot:  SnapshotConfig{Dir: "./snapshots", Format: "png"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	// Load without config file should use defaults
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.Empty(t, cfg.Server.APIToken)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Effect defaults
	assert.Equal(t, 10, cfg.Effect.MinBlockSize)
	assert.Equal(t, 40, cfg.Effect.MaxBlockSize)
	assert.Equal(t, 5, cfg.Effect.Step)
	assert.Equal(t, 20, cfg.Effect.BlockSize)

	// Pool defaults
	assert.Equal(t, 4, cfg.Pool.Size)
	assert.Equal(t, "block", cfg.Pool.Policy)
	assert.Equal(t, ByteSize(256*1024*1024), cfg.Pool.MaxBytes)

	// Capture defaults
	assert.Equal(t, "pattern", cfg.Capture.Source)
	assert.Equal(t, 30, cfg.Capture.FrameRate)

	// Transcode and recording defaults
	assert.Equal(t, time.Second, cfg.Transcode.FragmentDuration)
	assert.Equal(t, 85, cfg.Transcode.JPEGQuality)
	assert.Equal(t, 24*time.Hour, cfg.Transcode.Retention)
	assert.Equal(t, "@every 15m", cfg.Transcode.CleanupSchedule)
	assert.Equal(t, 8, cfg.Recording.QueueSize)

	// Snapshot defaults
	assert.Equal(t, "png", cfg.Snapshot.Format)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 60s

logging:
  level: "debug"
  format: "text"

effect:
  block_size: 35

pool:
  size: 2
  policy: fail
  max_bytes: 16MiB

capture:
  source: file
  path: /srv/loop.mp4

snapshot:
  format: tiff
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 35, cfg.Effect.BlockSize)
	assert.Equal(t, 2, cfg.Pool.Size)
	assert.Equal(t, "fail", cfg.Pool.Policy)
	assert.Equal(t, ByteSize(16*1024*1024), cfg.Pool.MaxBytes)
	assert.Equal(t, "file", cfg.Capture.Source)
	assert.Equal(t, "/srv/loop.mp4", cfg.Capture.Path)
	assert.Equal(t, "tiff", cfg.Snapshot.Format)

	// Unset values keep their defaults
	assert.Equal(t, 10, cfg.Effect.MinBlockSize)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BRICKIFY_SERVER_PORT", "3000")
	t.Setenv("BRICKIFY_SERVER_API_TOKEN", "s3cret")
	t.Setenv("BRICKIFY_LOGGING_LEVEL", "warn")
	t.Setenv("BRICKIFY_POOL_MAX_BYTES", "1GiB")
	t.Setenv("BRICKIFY_TRANSCODE_FRAGMENT_DURATION", "500ms")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.APIToken)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ByteSize(1<<30), cfg.Pool.MaxBytes)
	assert.Equal(t, 500*time.Millisecond, cfg.Transcode.FragmentDuration)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 8080
pool:
  policy: fail
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	t.Setenv("BRICKIFY_SERVER_PORT", "9000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Env should override file
	assert.Equal(t, 9000, cfg.Server.Port)
	// File value should be preserved
	assert.Equal(t, "fail", cfg.Pool.Policy)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validTestConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"min block", func(c *Config) { c.Effect.MinBlockSize = 0 }, "effect.min_block_size"},
		{"inverted bounds", func(c *Config) { c.Effect.MaxBlockSize = 5 }, "effect.max_block_size"},
		{"step", func(c *Config) { c.Effect.Step = 0 }, "effect.step"},
		{"initial block", func(c *Config) { c.Effect.BlockSize = 45 }, "effect.block_size"},
		{"pool size", func(c *Config) { c.Pool.Size = 0 }, "pool.size"},
		{"pool policy", func(c *Config) { c.Pool.Policy = "grow" }, "pool.policy"},
		{"capture source", func(c *Config) { c.Capture.Source = "webcam" }, "capture.source"},
		{"file without path", func(c *Config) { c.Capture.Source = "file" }, "capture.path"},
		{"frame rate", func(c *Config) { c.Capture.FrameRate = 0 }, "capture.frame_rate"},
		{"half geometry", func(c *Config) { c.Transcode.Width = 320 }, "set together"},
		{"quality", func(c *Config) { c.Transcode.JPEGQuality = 101 }, "transcode.jpeg_quality"},
		{"retention", func(c *Config) { c.Transcode.Retention = -time.Second }, "transcode.retention"},
		{"cleanup schedule", func(c *Config) { c.Transcode.CleanupSchedule = "every day" }, "transcode.cleanup_schedule"},
		{"queue", func(c *Config) { c.Recording.QueueSize = 0 }, "recording.queue_size"},
		{"snapshot format", func(c *Config) { c.Snapshot.Format = "gif" }, "snapshot.format"},
		{"snapshot dir", func(c *Config) { c.Snapshot.Dir = "" }, "snapshot.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_CaptureNoneSkipsGeometry(t *testing.T) {
	cfg := validTestConfig()
	cfg.Capture = CaptureConfig{Source: "none", FrameRate: 1}
	assert.NoError(t, cfg.Validate())
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", cfg.Address())
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
server:
  port: "not a number"
  invalid yaml structure
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
