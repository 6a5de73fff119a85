package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/avclabs/avc/internal/app/config"
)

// RawSettings is the structure of setting.json. Pointer fields distinguish
// "absent" from zero values so later sources only fill the gaps.
type RawSettings struct {
	Home       *string `json:"home"`
	Provider   *string `json:"provider"`
	Model      *string `json:"model"`
	TimeoutSec *int    `json:"timeout_sec"`

	MaxRetries *int `json:"max_retries"`

	ArchiveBackend *string `json:"archive_backend"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Prefix       *string `json:"s3_prefix"`
	S3Region       *string `json:"s3_region"`

	ReportKeep *int `json:"report_keep"`

	DisableLock *bool   `json:"disable_lock"`
	StderrLevel *string `json:"stderr_level"`
}

// LoadSettings loads configuration for the given base directory.
// Priority: AVC_* environment variables > setting.json > defaults.
func LoadSettings(baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	jsonPath := filepath.Join(baseDir, "setting.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		configSource = "json"
		settingPath = jsonPath
	}

	if applyEnvOverrides(settings) {
		configSource = "env"
	}

	applyDefaults(settings)

	return buildAppConfig(settings, configSource, settingPath), nil
}

// applyEnvOverrides overlays AVC_* environment variables onto settings.
// Returns true if any variable was set.
func applyEnvOverrides(settings *RawSettings) bool {
	overridden := false

	setStr := func(key string, dst **string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = &v
			overridden = true
		}
	}
	setInt := func(key string, dst **int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = &n
				overridden = true
			}
		}
	}
	setBool := func(key string, dst **bool) {
		if v, ok := os.LookupEnv(key); ok {
			b := toBool(v)
			*dst = &b
			overridden = true
		}
	}

	setStr("AVC_HOME", &settings.Home)
	setStr("AVC_PROVIDER", &settings.Provider)
	setStr("AVC_MODEL", &settings.Model)
	setInt("AVC_TIMEOUT_SEC", &settings.TimeoutSec)
	setInt("AVC_MAX_RETRIES", &settings.MaxRetries)
	setStr("AVC_ARCHIVE_BACKEND", &settings.ArchiveBackend)
	setStr("AVC_S3_BUCKET", &settings.S3Bucket)
	setStr("AVC_S3_PREFIX", &settings.S3Prefix)
	setStr("AVC_S3_REGION", &settings.S3Region)
	setInt("AVC_REPORT_KEEP", &settings.ReportKeep)
	setBool("AVC_DISABLE_LOCK", &settings.DisableLock)
	setStr("AVC_STDERR_LEVEL", &settings.StderrLevel)

	return overridden
}

// applyDefaults fills in default values for any nil fields.
func applyDefaults(settings *RawSettings) {
	if settings.Home == nil {
		v := ".avc"
		settings.Home = &v
	}
	if settings.Provider == nil {
		v := "anthropic"
		settings.Provider = &v
	}
	if settings.Model == nil {
		v := ""
		settings.Model = &v
	}
	if settings.TimeoutSec == nil {
		v := 300
		settings.TimeoutSec = &v
	}
	if settings.MaxRetries == nil {
		v := 3
		settings.MaxRetries = &v
	}
	if settings.ArchiveBackend == nil {
		v := "local"
		settings.ArchiveBackend = &v
	}
	if settings.S3Bucket == nil {
		v := ""
		settings.S3Bucket = &v
	}
	if settings.S3Prefix == nil {
		v := ""
		settings.S3Prefix = &v
	}
	if settings.S3Region == nil {
		v := ""
		settings.S3Region = &v
	}
	if settings.ReportKeep == nil {
		v := 10
		settings.ReportKeep = &v
	}
	if settings.DisableLock == nil {
		v := false
		settings.DisableLock = &v
	}
	if settings.StderrLevel == nil {
		v := "warn"
		settings.StderrLevel = &v
	}
}

func buildAppConfig(settings *RawSettings, configSource, settingPath string) *config.AppConfig {
	return config.NewAppConfig(
		*settings.Home,
		*settings.Provider,
		*settings.Model,
		*settings.TimeoutSec,
		*settings.MaxRetries,
		*settings.ArchiveBackend,
		*settings.S3Bucket,
		*settings.S3Prefix,
		*settings.S3Region,
		*settings.ReportKeep,
		*settings.DisableLock,
		*settings.StderrLevel,
		configSource,
		settingPath,
	)
}

// toBool converts common string representations to boolean.
func toBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// CreateDefaultSettings creates a default setting.json content.
func CreateDefaultSettings() []byte {
	settings := &RawSettings{}
	applyDefaults(settings)

	data, _ := json.MarshalIndent(settings, "", "  ")
	return data
}
