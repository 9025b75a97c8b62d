package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, resolved relative to the
// working directory of the desk binary.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string   `yaml:"port"`
	LogLevel               string   `yaml:"logLevel"`
	DataPath               string   `yaml:"dataPath"`
	StorageQuotaBytes      int64    `yaml:"storageQuotaBytes"`
	RelayURL               string   `yaml:"relayURL"`
	ForwardTimeoutSeconds  int      `yaml:"forwardTimeoutSeconds"`
	MarkCompletedOnForward bool     `yaml:"markCompletedOnForward"`
	MaxUploadBytes         int64    `yaml:"maxUploadBytes"`
	TrustedProxyCIDRs      []string `yaml:"trustedProxyCidrs"`
	WriteLimitPerMinute    int      `yaml:"writeLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DESK_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("DESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DESK_DATA_PATH"); v != "" {
		cfg.DataPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("DESK_STORAGE_QUOTA_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.StorageQuotaBytes = n
		}
	}
	if v := os.Getenv("DESK_RELAY_URL"); v != "" {
		cfg.RelayURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DESK_FORWARD_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ForwardTimeoutSeconds = n
		}
	}
	if v := os.Getenv("DESK_MARK_COMPLETED_ON_FORWARD"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MarkCompletedOnForward = b
		}
	}
	if v := os.Getenv("DESK_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("DESK_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("DESK_WRITE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.WriteLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ForwardTimeout returns the relay forward bound as a duration. Zero means
// the application default applies.
func (c FileConfig) ForwardTimeout() time.Duration {
	return time.Duration(c.ForwardTimeoutSeconds) * time.Second
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DataPath) == "" {
		return errors.New("config: dataPath is required (set in config.yaml)")
	}
	if cfg.StorageQuotaBytes < 0 {
		return errors.New("config: storageQuotaBytes must be >= 0")
	}
	if cfg.ForwardTimeoutSeconds < 0 {
		return errors.New("config: forwardTimeoutSeconds must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.WriteLimitPerMinute < 0 {
		return errors.New("config: writeLimitPerMinute must be >= 0")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
