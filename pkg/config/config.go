// Package config loads HLSdrop settings from defaults, an optional YAML file,
// a .env file and HLSDROP_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/heyjunin/HLSdrop/pkg/engine"
	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/hls"
	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/heyjunin/HLSdrop/pkg/uploader"
)

// Host names accepted in upload.host.
const (
	HostAnonDrop = "anondrop"
	HostS3       = "s3"
)

// Config is the complete HLSdrop configuration.
type Config struct {
	Log       logger.Config  `yaml:"log"`
	Engine    engine.Options `yaml:"engine"`
	Transcode hls.Options    `yaml:"transcode"`
	Upload    UploadConfig   `yaml:"upload"`
	Progress  ProgressConfig `yaml:"progress"`
	Server    ServerConfig   `yaml:"server"`
	Watch     WatchConfig    `yaml:"watch"`
}

// UploadConfig selects and configures the hosting service.
type UploadConfig struct {
	Host     string        `yaml:"host"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// Concurrency is the number of segments uploaded at once. 1 keeps uploads sequential.
	Concurrency int                `yaml:"concurrency"`
	S3          uploader.S3Options `yaml:"s3"`
}

// ProgressConfig controls the optional progress file.
type ProgressConfig struct {
	File     string        `yaml:"file"`
	Format   string        `yaml:"format"`
	Throttle time.Duration `yaml:"throttle"`
}

// ServerConfig configures `hlsdrop serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	UploadDir       string        `yaml:"upload_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WatchConfig configures `hlsdrop watch`.
type WatchConfig struct {
	Dir       string        `yaml:"dir"`
	Extension string        `yaml:"extension"`
	Debounce  time.Duration `yaml:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:       logger.Config{Level: "info", Format: "console"},
		Engine:    engine.DefaultOptions(),
		Transcode: hls.DefaultOptions(),
		Upload: UploadConfig{
			Host:        HostAnonDrop,
			Endpoint:    uploader.DefaultAnonDropEndpoint,
			Concurrency: 1,
		},
		Progress: ProgressConfig{Format: "text"},
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			MaxUploadBytes:  2 << 30,
			ShutdownTimeout: 10 * time.Second,
		},
		Watch: WatchConfig{
			Extension: ".mp4",
			Debounce:  2 * time.Second,
		},
	}
}

// Load builds the configuration. path may be empty; envFile is loaded if it exists.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ValidationError, "Failed to load env file", errors.ErrInvalidOption)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ValidationError, "Failed to read config file", errors.ErrInvalidOption)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.ValidationError, "Failed to parse config file", errors.ErrInvalidOption)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from HLSDROP_* variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var firstErr error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", key, err)
				return
			}
			*dst = b
		}
	}

	str("HLSDROP_LOG_LEVEL", &c.Log.Level)
	str("HLSDROP_LOG_FORMAT", &c.Log.Format)

	str("HLSDROP_FFMPEG", &c.Engine.CoreBinary)
	str("HLSDROP_FFPROBE", &c.Engine.ProbeBinary)
	str("HLSDROP_ENGINE_CORE_URL", &c.Engine.CoreURL)
	str("HLSDROP_ENGINE_PROBE_URL", &c.Engine.ProbeURL)
	str("HLSDROP_ENGINE_CACHE_DIR", &c.Engine.CacheDir)
	str("HLSDROP_ENGINE_WORK_DIR", &c.Engine.WorkDir)
	boolean("HLSDROP_ENGINE_FAIL_FAST", &c.Engine.FailFast)

	num("HLSDROP_SEGMENT_DURATION", &c.Transcode.SegmentDuration)
	num("HLSDROP_THREADS", &c.Transcode.Threads)
	str("HLSDROP_PRESET", &c.Transcode.Preset)

	str("HLSDROP_UPLOAD_HOST", &c.Upload.Host)
	str("HLSDROP_UPLOAD_ENDPOINT", &c.Upload.Endpoint)
	dur("HLSDROP_UPLOAD_TIMEOUT", &c.Upload.Timeout)
	num("HLSDROP_UPLOAD_CONCURRENCY", &c.Upload.Concurrency)
	str("HLSDROP_S3_BUCKET", &c.Upload.S3.Bucket)
	str("HLSDROP_S3_REGION", &c.Upload.S3.Region)
	str("HLSDROP_S3_ENDPOINT", &c.Upload.S3.Endpoint)
	str("HLSDROP_S3_PREFIX", &c.Upload.S3.Prefix)
	str("HLSDROP_S3_PUBLIC_BASE_URL", &c.Upload.S3.PublicBaseURL)
	boolean("HLSDROP_S3_PATH_STYLE", &c.Upload.S3.UsePathStyle)

	str("HLSDROP_PROGRESS_FILE", &c.Progress.File)
	str("HLSDROP_PROGRESS_FORMAT", &c.Progress.Format)

	str("HLSDROP_SERVER_ADDR", &c.Server.Addr)
	if v, ok := lookup("HLSDROP_SERVER_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	str("HLSDROP_SERVER_UPLOAD_DIR", &c.Server.UploadDir)

	str("HLSDROP_WATCH_DIR", &c.Watch.Dir)
	dur("HLSDROP_WATCH_DEBOUNCE", &c.Watch.Debounce)

	if firstErr != nil {
		return errors.Wrap(firstErr, errors.ValidationError, "Invalid environment variable", errors.ErrInvalidOption)
	}
	return nil
}

// Validate checks values that would make a conversion impossible.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidOption), fmt.Sprintf(format, args...), errors.ErrInvalidOption)
	}

	if c.Transcode.SegmentDuration <= 0 {
		return invalid("transcode.segment_duration must be positive, got %d", c.Transcode.SegmentDuration)
	}
	if c.Transcode.Threads <= 0 {
		return invalid("transcode.threads must be positive, got %d", c.Transcode.Threads)
	}
	if err := c.Transcode.Validate(); err != nil {
		return invalid("%v", err)
	}
	if c.Upload.Concurrency < 1 {
		return invalid("upload.concurrency must be at least 1, got %d", c.Upload.Concurrency)
	}
	if c.Upload.Timeout < 0 {
		return invalid("upload.timeout must not be negative")
	}

	switch strings.ToLower(c.Upload.Host) {
	case HostAnonDrop:
		if c.Upload.Endpoint == "" {
			return invalid("upload.endpoint is required for the anondrop host")
		}
	case HostS3:
		if c.Upload.S3.Bucket == "" || c.Upload.S3.PublicBaseURL == "" {
			return invalid("upload.s3.bucket and upload.s3.public_base_url are required for the s3 host")
		}
	default:
		return invalid("unknown upload.host %q", c.Upload.Host)
	}

	if c.Progress.Format != "" && c.Progress.Format != "text" && c.Progress.Format != "json" {
		return invalid("progress.format must be text or json, got %q", c.Progress.Format)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
