package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration of the SDK agent
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Storage    StorageConfig    `yaml:"storage"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Upload     UploadConfig     `yaml:"upload"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Consent    ConsentConfig    `yaml:"consent"`
	Device     DeviceConfig     `yaml:"device"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig identifies the application and where its data goes
type SiteConfig struct {
	Endpoint      string `yaml:"endpoint"`
	ClientToken   string `yaml:"client_token"`
	ApplicationID string `yaml:"application_id"`
	Service       string `yaml:"service"`
	Env           string `yaml:"env"`
	Version       string `yaml:"version"`
	Source        string `yaml:"source"`
	SdkVersion    string `yaml:"sdk_version"`
}

// StorageConfig holds batch storage limits
type StorageConfig struct {
	DataDir          string        `yaml:"data_dir"`
	MaxBatchSize     int64         `yaml:"max_batch_size"`
	MaxItemSize      int64         `yaml:"max_item_size"`
	MaxItemsPerBatch int           `yaml:"max_items_per_batch"`
	RecentDelay      time.Duration `yaml:"recent_delay"`
	OldFileThreshold time.Duration `yaml:"old_file_threshold"`
	MaxDiskSpace     int64         `yaml:"max_disk_space"`
	MaxDiskUsage     float64       `yaml:"max_disk_usage"`
}

// EncryptionConfig enables at-rest encryption of batch payloads
type EncryptionConfig struct {
	Enabled      bool   `yaml:"enabled"`
	IdentityFile string `yaml:"identity_file"`
}

// UploadConfig holds uploader and scheduler settings
type UploadConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	Gzip              bool          `yaml:"gzip"`
	SystemUserAgent   string        `yaml:"system_user_agent"`
	MinDelay          time.Duration `yaml:"min_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	DefaultDelay      time.Duration `yaml:"default_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BurstSize         int           `yaml:"burst_size"`
}

// ExecutorConfig sizes the per-feature serial executors
type ExecutorConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ConsentConfig holds the tracking consent at startup
type ConsentConfig struct {
	Initial string `yaml:"initial"`
}

// DeviceConfig describes the host the agent reports from
type DeviceConfig struct {
	Type         string `yaml:"type"`
	Name         string `yaml:"name"`
	Model        string `yaml:"model"`
	Brand        string `yaml:"brand"`
	Architecture string `yaml:"architecture"`
	BuildID      string `yaml:"build_id"`
	OsName       string `yaml:"os_name"`
	OsVersion    string `yaml:"os_version"`
}

// ServerConfig holds ops server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadConfig loads configuration from a file, then applies DDSDK_* environment overrides
func LoadConfig(filePath string) (*Config, error) {
	var cfg Config

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(&cfg); err != nil {
		return nil, err
	}

	// Set defaults if not specified
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides overrides file values with DDSDK_* variables
func applyEnvironmentOverrides(cfg *Config) error {
	v := viper.New()
	v.SetEnvPrefix("DDSDK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	keys := []string{
		"site.endpoint", "site.client_token", "site.application_id", "site.service", "site.env",
		"storage.data_dir", "upload.gzip", "upload.system_user_agent",
		"encryption.enabled", "encryption.identity_file",
		"consent.initial", "server.port", "logging.level", "logging.format",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	setString("site.endpoint", &cfg.Site.Endpoint)
	setString("site.client_token", &cfg.Site.ClientToken)
	setString("site.application_id", &cfg.Site.ApplicationID)
	setString("site.service", &cfg.Site.Service)
	setString("site.env", &cfg.Site.Env)
	setString("storage.data_dir", &cfg.Storage.DataDir)
	setString("upload.system_user_agent", &cfg.Upload.SystemUserAgent)
	setString("encryption.identity_file", &cfg.Encryption.IdentityFile)
	setString("consent.initial", &cfg.Consent.Initial)
	setString("logging.level", &cfg.Logging.Level)
	setString("logging.format", &cfg.Logging.Format)

	if v.IsSet("upload.gzip") {
		cfg.Upload.Gzip = v.GetBool("upload.gzip")
	}
	if v.IsSet("encryption.enabled") {
		cfg.Encryption.Enabled = v.GetBool("encryption.enabled")
	}
	if v.IsSet("server.port") {
		cfg.Server.Port = v.GetInt("server.port")
	}
	return nil
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Site.Endpoint == "" {
		cfg.Site.Endpoint = "https://mobile-http-intake.logs.datadoghq.com"
	}
	if cfg.Site.Service == "" {
		cfg.Site.Service = "sdkagent"
	}
	if cfg.Site.Source == "" {
		cfg.Site.Source = "android"
	}
	if cfg.Site.SdkVersion == "" {
		cfg.Site.SdkVersion = "1.11.0"
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "/var/lib/ddsdk"
	}
	if cfg.Storage.MaxBatchSize == 0 {
		cfg.Storage.MaxBatchSize = 4 * 1024 * 1024 // 4MB
	}
	if cfg.Storage.MaxItemSize == 0 {
		cfg.Storage.MaxItemSize = 512 * 1024 // 512KB
	}
	if cfg.Storage.MaxItemsPerBatch == 0 {
		cfg.Storage.MaxItemsPerBatch = 500
	}
	if cfg.Storage.RecentDelay == 0 {
		cfg.Storage.RecentDelay = 5 * time.Second
	}
	if cfg.Storage.OldFileThreshold == 0 {
		cfg.Storage.OldFileThreshold = 18 * time.Hour
	}
	if cfg.Storage.MaxDiskSpace == 0 {
		cfg.Storage.MaxDiskSpace = 128 * 1024 * 1024 // 128MB
	}
	if cfg.Storage.MaxDiskUsage == 0 {
		cfg.Storage.MaxDiskUsage = 0.95
	}

	if cfg.Upload.Timeout == 0 {
		cfg.Upload.Timeout = 45 * time.Second
	}
	if cfg.Upload.MinDelay == 0 {
		cfg.Upload.MinDelay = time.Second
	}
	if cfg.Upload.MaxDelay == 0 {
		cfg.Upload.MaxDelay = 10 * time.Second
	}
	if cfg.Upload.DefaultDelay == 0 {
		cfg.Upload.DefaultDelay = 5 * time.Second
	}
	if cfg.Upload.RequestsPerSecond == 0 {
		cfg.Upload.RequestsPerSecond = 5
	}
	if cfg.Upload.BurstSize == 0 {
		cfg.Upload.BurstSize = 2
	}

	if cfg.Executor.QueueSize == 0 {
		cfg.Executor.QueueSize = 1024
	}
	if cfg.Executor.StopTimeout == 0 {
		cfg.Executor.StopTimeout = 5 * time.Second
	}

	if cfg.Consent.Initial == "" {
		cfg.Consent.Initial = "pending"
	}

	if cfg.Device.Type == "" {
		cfg.Device.Type = "mobile"
	}
	if cfg.Device.OsName == "" {
		cfg.Device.OsName = "Android"
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8126
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 8127
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 100
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 200
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Site.ClientToken == "" {
		return fmt.Errorf("site.client_token is required")
	}
	if c.Storage.MaxItemSize > c.Storage.MaxBatchSize {
		return fmt.Errorf("storage.max_item_size must not exceed storage.max_batch_size")
	}
	if c.Storage.MaxItemsPerBatch < 1 {
		return fmt.Errorf("storage.max_items_per_batch must be positive")
	}
	if c.Storage.MaxDiskUsage < 0 || c.Storage.MaxDiskUsage > 1 {
		return fmt.Errorf("storage.max_disk_usage must be between 0 and 1")
	}
	if c.Upload.MinDelay > c.Upload.MaxDelay {
		return fmt.Errorf("upload.min_delay must not exceed upload.max_delay")
	}
	if c.Upload.DefaultDelay < c.Upload.MinDelay || c.Upload.DefaultDelay > c.Upload.MaxDelay {
		return fmt.Errorf("upload.default_delay must be between min_delay and max_delay")
	}
	if c.Encryption.Enabled && c.Encryption.IdentityFile == "" {
		return fmt.Errorf("encryption.identity_file is required when encryption is enabled")
	}
	switch c.Consent.Initial {
	case "pending", "granted", "not_granted":
	default:
		return fmt.Errorf("consent.initial must be one of pending, granted, not_granted")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}
