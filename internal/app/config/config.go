package config

import "time"

// Config provides read-only access to application configuration.
// The interface hides the configuration source (JSON, ENV, defaults) so the
// application layer does not depend on how settings are loaded.
type Config interface {
	// Core settings
	Home() string           // Base directory for avc state (AVC_HOME)
	Provider() string       // LLM provider name (AVC_PROVIDER)
	Model() string          // Model override; empty selects the provider default (AVC_MODEL)
	TimeoutSec() int        // Per-execution timeout in seconds (AVC_TIMEOUT_SEC)
	Timeout() time.Duration // Per-execution timeout as Duration

	// Call layer
	MaxRetries() int // Retry attempts for transient provider failures (AVC_MAX_RETRIES)

	// Archive
	ArchiveBackend() string // "local" or "s3" (AVC_ARCHIVE_BACKEND)
	S3Bucket() string       // Archive bucket when backend is s3 (AVC_S3_BUCKET)
	S3Prefix() string       // Optional key prefix (AVC_S3_PREFIX)
	S3Region() string       // Optional region override (AVC_S3_REGION)

	// Reports
	ReportKeep() int // Verification reports retained per ceremony (AVC_REPORT_KEEP)

	// Locking and logging
	DisableLock() bool   // Disable the advisory state lock (AVC_DISABLE_LOCK)
	StderrLevel() string // Stderr log level (AVC_STDERR_LEVEL)

	// Metadata
	ConfigSource() string // Source of configuration: "json", "env", or "default"
	SettingPath() string  // Path to setting.json if loaded from file
}

// AppConfig is the concrete implementation of Config.
type AppConfig struct {
	home       string
	provider   string
	model      string
	timeoutSec int

	maxRetries int

	archiveBackend string
	s3Bucket       string
	s3Prefix       string
	s3Region       string

	reportKeep int

	disableLock bool
	stderrLevel string

	configSource string
	settingPath  string
}

func (c *AppConfig) Home() string     { return c.home }
func (c *AppConfig) Provider() string { return c.provider }
func (c *AppConfig) Model() string    { return c.model }
func (c *AppConfig) TimeoutSec() int  { return c.timeoutSec }

// Timeout returns the per-execution timeout as a Duration.
func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.timeoutSec) * time.Second
}

func (c *AppConfig) MaxRetries() int        { return c.maxRetries }
func (c *AppConfig) ArchiveBackend() string { return c.archiveBackend }
func (c *AppConfig) S3Bucket() string       { return c.s3Bucket }
func (c *AppConfig) S3Prefix() string       { return c.s3Prefix }
func (c *AppConfig) S3Region() string       { return c.s3Region }
func (c *AppConfig) ReportKeep() int        { return c.reportKeep }
func (c *AppConfig) DisableLock() bool      { return c.disableLock }
func (c *AppConfig) StderrLevel() string    { return c.stderrLevel }
func (c *AppConfig) ConfigSource() string   { return c.configSource }
func (c *AppConfig) SettingPath() string    { return c.settingPath }

// NewAppConfig creates a new AppConfig with the given values.
// Called by the infrastructure layer after loading and merging sources.
func NewAppConfig(
	home, provider, model string, timeoutSec int,
	maxRetries int,
	archiveBackend, s3Bucket, s3Prefix, s3Region string,
	reportKeep int,
	disableLock bool, stderrLevel string,
	configSource, settingPath string,
) *AppConfig {
	return &AppConfig{
		home:           home,
		provider:       provider,
		model:          model,
		timeoutSec:     timeoutSec,
		maxRetries:     maxRetries,
		archiveBackend: archiveBackend,
		s3Bucket:       s3Bucket,
		s3Prefix:       s3Prefix,
		s3Region:       s3Region,
		reportKeep:     reportKeep,
		disableLock:    disableLock,
		stderrLevel:    stderrLevel,
		configSource:   configSource,
		settingPath:    settingPath,
	}
}
