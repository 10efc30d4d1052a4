// Package config provides configuration management for brickify using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMinBlockSize     = 10
	defaultMaxBlockSize     = 40
	defaultBlockStep        = 5
	defaultBlockSize        = 20
	defaultPoolSize         = 4
	defaultPoolMaxBytes     = 256 * 1024 * 1024 // 256MiB
	defaultCaptureWidth     = 640
	defaultCaptureHeight    = 480
	defaultCaptureFrameRate = 30
	defaultFragmentDuration = time.Second
	defaultJPEGQuality      = 85
	defaultRecordingQueue   = 8
	defaultRetention        = 24 * time.Hour
	defaultCleanupSchedule  = "@every 15m"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Effect    EffectConfig    `mapstructure:"effect"`
	Pool      PoolConfig      `mapstructure:"pool"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Recording RecordingConfig `mapstructure:"recording"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"` // 0 disables, needed for long preview streams
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIToken, when set, is required as a bearer token on /api routes.
	APIToken string `mapstructure:"api_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// EffectConfig holds the block size bounds collaborators step through.
type EffectConfig struct {
	MinBlockSize int `mapstructure:"min_block_size"`
	MaxBlockSize int `mapstructure:"max_block_size"`
	Step         int `mapstructure:"step"`
	BlockSize    int `mapstructure:"block_size"` // initial live block size
}

// PoolConfig holds pixel buffer pool configuration.
type PoolConfig struct {
	Size   int    `mapstructure:"size"`
	Policy string `mapstructure:"policy"` // block, fail
	// MaxBytes caps the pixel memory of one pool.
	// Supports human-readable values like "256MiB" or raw byte counts.
	MaxBytes ByteSize `mapstructure:"max_bytes"`
}

// CaptureConfig holds live capture source configuration.
type CaptureConfig struct {
	Source    string `mapstructure:"source"` // pattern, file, none
	Path      string `mapstructure:"path"`   // fMP4 file replayed by the file source
	Loop      bool   `mapstructure:"loop"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	FrameRate int    `mapstructure:"frame_rate"`
}

// TranscodeConfig holds offline transcode configuration.
type TranscodeConfig struct {
	TempDir          string        `mapstructure:"temp_dir"` // empty = os.TempDir()
	Width            int           `mapstructure:"width"`    // 0 = source width
	Height           int           `mapstructure:"height"`   // 0 = source height
	FragmentDuration time.Duration `mapstructure:"fragment_duration"`
	JPEGQuality      int           `mapstructure:"jpeg_quality"`
	// Retention is how long finished jobs and their outputs are kept by the
	// server. Zero keeps them until restart.
	Retention       time.Duration `mapstructure:"retention"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"` // cron expression or @every
}

// RecordingConfig holds live recording configuration.
type RecordingConfig struct {
	OutputDir        string        `mapstructure:"output_dir"` // empty = os.TempDir()
	QueueSize        int           `mapstructure:"queue_size"`
	FragmentDuration time.Duration `mapstructure:"fragment_duration"`
	JPEGQuality      int           `mapstructure:"jpeg_quality"`
}

// SnapshotConfig holds photo snapshot configuration.
type SnapshotConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"` // png, jpeg, bmp, tiff
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with BRICKIFY_ and use underscores for nesting.
// Example: BRICKIFY_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/brickify")
		v.AddConfigPath("$HOME/.brickify")
	}

	v.SetEnvPrefix("BRICKIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	cfg, err := Decode(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Decode unmarshals the settings held by v. ByteSize and other
// encoding.TextUnmarshaler fields are decoded from strings.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.api_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Effect defaults
	v.SetDefault("effect.min_block_size", defaultMinBlockSize)
	v.SetDefault("effect.max_block_size", defaultMaxBlockSize)
	v.SetDefault("effect.step", defaultBlockStep)
	v.SetDefault("effect.block_size", defaultBlockSize)

	// Pool defaults
	v.SetDefault("pool.size", defaultPoolSize)
	v.SetDefault("pool.policy", "block")
	v.SetDefault("pool.max_bytes", defaultPoolMaxBytes)

	// Capture defaults
	v.SetDefault("capture.source", "pattern")
	v.SetDefault("capture.path", "")
	v.SetDefault("capture.loop", true)
	v.SetDefault("capture.width", defaultCaptureWidth)
	v.SetDefault("capture.height", defaultCaptureHeight)
	v.SetDefault("capture.frame_rate", defaultCaptureFrameRate)

	// Transcode defaults
	v.SetDefault("transcode.temp_dir", "")
	v.SetDefault("transcode.width", 0)
	v.SetDefault("transcode.height", 0)
	v.SetDefault("transcode.fragment_duration", defaultFragmentDuration)
	v.SetDefault("transcode.jpeg_quality", defaultJPEGQuality)
	v.SetDefault("transcode.retention", defaultRetention)
	v.SetDefault("transcode.cleanup_schedule", defaultCleanupSchedule)

	// Recording defaults
	v.SetDefault("recording.output_dir", "")
	v.SetDefault("recording.queue_size", defaultRecordingQueue)
	v.SetDefault("recording.fragment_duration", defaultFragmentDuration)
	v.SetDefault("recording.jpeg_quality", defaultJPEGQuality)

	// Snapshot defaults
	v.SetDefault("snapshot.dir", "./snapshots")
	v.SetDefault("snapshot.format", "png")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Effect validation
	e := c.Effect
	if e.MinBlockSize < 1 {
		return fmt.Errorf("effect.min_block_size must be at least 1")
	}
	if e.MaxBlockSize < e.MinBlockSize {
		return fmt.Errorf("effect.max_block_size must not be below effect.min_block_size")
	}
	if e.Step < 1 {
		return fmt.Errorf("effect.step must be at least 1")
	}
	if e.BlockSize < e.MinBlockSize || e.BlockSize > e.MaxBlockSize {
		return fmt.Errorf("effect.block_size must be between %d and %d", e.MinBlockSize, e.MaxBlockSize)
	}

	// Pool validation
	if c.Pool.Size < 1 {
		return fmt.Errorf("pool.size must be at least 1")
	}
	validPolicies := map[string]bool{"block": true, "fail": true}
	if !validPolicies[c.Pool.Policy] {
		return fmt.Errorf("pool.policy must be one of: block, fail")
	}
	if c.Pool.MaxBytes < 0 {
		return fmt.Errorf("pool.max_bytes must not be negative")
	}

	// Capture validation
	switch c.Capture.Source {
	case "pattern", "none":
	case "file":
		if c.Capture.Path == "" {
			return fmt.Errorf("capture.path is required when capture.source is file")
		}
	default:
		return fmt.Errorf("capture.source must be one of: pattern, file, none")
	}
	if c.Capture.Source == "pattern" && (c.Capture.Width < 1 || c.Capture.Height < 1) {
		return fmt.Errorf("capture.width and capture.height must be positive")
	}
	if c.Capture.FrameRate < 1 {
		return fmt.Errorf("capture.frame_rate must be at least 1")
	}

	// Transcode validation
	if c.Transcode.Width < 0 || c.Transcode.Height < 0 {
		return fmt.Errorf("transcode.width and transcode.height must not be negative")
	}
	if (c.Transcode.Width == 0) != (c.Transcode.Height == 0) {
		return fmt.Errorf("transcode.width and transcode.height must be set together")
	}
	if err := validateQuality("transcode.jpeg_quality", c.Transcode.JPEGQuality); err != nil {
		return err
	}
	if c.Transcode.Retention < 0 {
		return fmt.Errorf("transcode.retention must not be negative")
	}
	if c.Transcode.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.Transcode.CleanupSchedule); err != nil {
			return fmt.Errorf("transcode.cleanup_schedule: %w", err)
		}
	}

	// Recording validation
	if c.Recording.QueueSize < 1 {
		return fmt.Errorf("recording.queue_size must be at least 1")
	}
	if err := validateQuality("recording.jpeg_quality", c.Recording.JPEGQuality); err != nil {
		return err
	}

	// Snapshot validation
	if c.Snapshot.Dir == "" {
		return fmt.Errorf("snapshot.dir is required")
	}
	validSnapshotFormats := map[string]bool{"png": true, "jpeg": true, "bmp": true, "tiff": true}
	if !validSnapshotFormats[c.Snapshot.Format] {
		return fmt.Errorf("snapshot.format must be one of: png, jpeg, bmp, tiff")
	}

	return nil
}

func validateQuality(key string, q int) error {
	if q < 1 || q > 100 {
		return fmt.Errorf("%s must be between 1 and 100", key)
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
