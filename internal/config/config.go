// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the full configuration for both the API and worker binaries.
type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	Redis   RedisConfig
	Minio   MinioConfig
	Storage StorageConfig
	Render  RenderConfig
	GitHub  GitHubConfig

	// PublicURL is an optional base URL for generating absolute image URLs
	// (e.g. https://api.example.com). If unset, URLs are derived from the
	// MinIO endpoint.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`
}

type RedisConfig struct {
	Addr      string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	QueueName string `envconfig:"RENDER_QUEUE_NAME" default:"render-jobs"`
}

type StorageConfig struct {
	// Provider selects the artifact store backend: minio or localfs.
	Provider string `envconfig:"STORAGE_PROVIDER" default:"minio"`
	// LocalRoot is the artifact directory when Provider is localfs.
	LocalRoot string `envconfig:"STORAGE_LOCAL_ROOT" default:"/data/statscards"`
}

type MinioConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost"`
	Port      int    `envconfig:"MINIO_PORT" default:"9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"github-stats"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RenderConfig struct {
	// Concurrency bounds how many renders one worker process runs at once.
	Concurrency int `envconfig:"RENDER_CONCURRENCY" default:"2"`
	// TimeoutMS is the hard wall-clock limit for one composer invocation.
	TimeoutMS int `envconfig:"RENDER_TIMEOUT_MS" default:"60000"`
	// RatePerMinute caps renders across the pool in a rolling window.
	RatePerMinute int `envconfig:"RENDER_RATE_PER_MINUTE" default:"10"`
	// Scale is passed through to the composer.
	Scale float64 `envconfig:"RENDER_SCALE" default:"1"`
	// ComposerURL is the base URL of the composer sidecar.
	ComposerURL string `envconfig:"COMPOSER_BASE_URL" default:"http://localhost:3100"`
	// PrebuiltBundleDir, when set, skips the bundle build and uses the
	// artifact baked into the image (production mode).
	PrebuiltBundleDir string `envconfig:"COMPOSER_PREBUILT_BUNDLE_DIR" default:""`
	// TempDir holds per-job scratch files.
	TempDir string `envconfig:"RENDER_TEMP_DIR" default:"/tmp/statscards"`
	// FFmpegPath locates the external transcoder binary.
	FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	// WebPQuality is the transcoder output quality (0-100).
	WebPQuality int `envconfig:"WEBP_QUALITY" default:"80"`
}

type GitHubConfig struct {
	AppID         int64  `envconfig:"GITHUB_APP_ID" default:"0"`
	PrivateKeyPEM string `envconfig:"GITHUB_APP_PRIVATE_KEY" default:""`
	// InstallURL is shown to callers when a subject has no installation.
	InstallURL string `envconfig:"GITHUB_APP_INSTALL_URL" default:"https://github.com/apps/statscards/installations/new"`
	APIBaseURL string `envconfig:"GITHUB_API_BASE_URL" default:"https://api.github.com"`
}

// RenderTimeout returns the composer timeout as a duration.
func (c RenderConfig) RenderTimeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// MinioAddr returns the host:port the MinIO client dials.
func (c MinioConfig) MinioAddr() string {
	return fmt.Sprintf("%s:%d", c.Endpoint, c.Port)
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
