package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, resolved relative to the
// working directory of the relay binary.
const ConfigPath = "config.yaml"

// Storage backends the relay can persist documents to.
const (
	BackendLocal = "local"
	BackendMinio = "minio"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string `yaml:"port"`
	LogLevel       string `yaml:"logLevel"`
	DataPath       string `yaml:"dataPath"`
	StorageBackend string `yaml:"storageBackend"`
	LocalDir       string `yaml:"localDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	SMTPEnabled    bool   `yaml:"smtpEnabled"`
	SMTPHost       string `yaml:"smtpHost"`
	SMTPPort       int    `yaml:"smtpPort"`
	SMTPUsername   string `yaml:"smtpUsername"`
	SMTPPassword   string `yaml:"smtpPassword"`
	SMTPFrom       string `yaml:"smtpFrom"`
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
	if v := os.Getenv("RELAY_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_DATA_PATH"); v != "" {
		cfg.DataPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_LOCAL_DIR"); v != "" {
		cfg.LocalDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("RELAY_SMTP_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SMTPEnabled = b
		}
	}
	if v := os.Getenv("RELAY_SMTP_HOST"); v != "" {
		cfg.SMTPHost = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SMTPPort = n
		}
	}
	if v := os.Getenv("RELAY_SMTP_USERNAME"); v != "" {
		cfg.SMTPUsername = strings.TrimSpace(v)
	}
	if v := os.Getenv("RELAY_SMTP_PASSWORD"); v != "" {
		cfg.SMTPPassword = v
	}
	if v := os.Getenv("RELAY_SMTP_FROM"); v != "" {
		cfg.SMTPFrom = strings.TrimSpace(v)
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendLocal
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == BackendLocal && strings.TrimSpace(cfg.LocalDir) == "" {
		cfg.LocalDir = "./data/contracts"
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DataPath) == "" {
		return errors.New("config: dataPath is required (set in config.yaml)")
	}
	switch cfg.StorageBackend {
	case BackendLocal:
	case BackendMinio:
		if cfg.MinioEndpoint == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minio backend needs minioEndpoint, minioAccessKey, minioSecretKey and minioBucket")
		}
	default:
		return fmt.Errorf("config: storageBackend must be %q or %q", BackendLocal, BackendMinio)
	}
	if cfg.SMTPEnabled {
		if cfg.SMTPHost == "" {
			return errors.New("config: smtpHost is required when smtpEnabled is true")
		}
		if cfg.SMTPFrom == "" {
			return errors.New("config: smtpFrom is required when smtpEnabled is true")
		}
	}
	return nil
}
