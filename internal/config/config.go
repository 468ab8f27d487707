package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Printer       PrinterConfig       `yaml:"printer"`
	Jobs          JobsConfig          `yaml:"jobs"`
	History       HistoryConfig       `yaml:"history"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Auth          AuthConfig          `yaml:"auth"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PrinterConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	TLS        bool          `yaml:"tls"`
	Name       string        `yaml:"name"`
	MaxCopies  int           `yaml:"max_copies"`
	Attempts   uint          `yaml:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type JobsConfig struct {
	SpoolDir         string        `yaml:"spool_dir"`
	Retention        time.Duration `yaml:"retention"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	MaxUploadMB      int64         `yaml:"max_upload_mb"`
	DefaultTonerSave bool          `yaml:"default_toner_save"`
	Converter        string        `yaml:"converter"`
	ConvertTimeout   time.Duration `yaml:"convert_timeout"`
}

type HistoryConfig struct {
	// RetentionDays is how long finished jobs stay queryable before they are
	// moved to a monthly archive file.
	RetentionDays   int           `yaml:"retention_days"`
	ArchivePath     string        `yaml:"archive_path"`
	ArchiveInterval time.Duration `yaml:"archive_interval"`
}

type NotificationsConfig struct {
	// LogPath is the file the print system appends notification lines to.
	// Empty disables the file source.
	LogPath   string `yaml:"log_path"`
	FromStart bool   `yaml:"from_start"`
}

type AuthConfig struct {
	// AccessToken is the shared secret users exchange for a session.
	AccessToken string        `yaml:"access_token"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type WebhookConfig struct {
	Workers    int           `yaml:"workers"`
	RetryCount int           `yaml:"retry_count"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
	QueueSize  int           `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printdesk.db",
		},
		Printer: PrinterConfig{
			Host:       "localhost",
			Port:       631,
			MaxCopies:  10,
			Attempts:   3,
			RetryDelay: time.Second,
		},
		Jobs: JobsConfig{
			SpoolDir:         "./data/spool",
			Retention:        time.Hour,
			SweepInterval:    time.Hour,
			MaxUploadMB:      20,
			DefaultTonerSave: true,
			Converter:        "soffice",
			ConvertTimeout:   2 * time.Minute,
		},
		History: HistoryConfig{
			ArchivePath:     "./data/archives",
			RetentionDays:   90,
			ArchiveInterval: 24 * time.Hour,
		},
		Auth: AuthConfig{
			TokenTTL: 30 * 24 * time.Hour,
		},
		Webhook: WebhookConfig{
			Workers:    3,
			RetryCount: 3,
			RetryDelay: 5 * time.Second,
			Timeout:    10 * time.Second,
			QueueSize:  100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at configPath over the defaults. A missing file
// yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides settings from PRINTDESK_* environment variables.
// Malformed numbers and durations are ignored.
func (c *Config) ApplyEnv() {
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setInt("PRINTDESK_PORT", &c.Server.Port)
	setString("PRINTDESK_DB_PATH", &c.Database.Path)

	setString("PRINTDESK_CUPS_HOST", &c.Printer.Host)
	setInt("PRINTDESK_CUPS_PORT", &c.Printer.Port)
	setString("PRINTDESK_CUPS_USER", &c.Printer.Username)
	setString("PRINTDESK_CUPS_PASSWORD", &c.Printer.Password)
	setBool("PRINTDESK_CUPS_TLS", &c.Printer.TLS)
	setString("PRINTDESK_PRINTER", &c.Printer.Name)
	setInt("PRINTDESK_MAX_COPIES", &c.Printer.MaxCopies)

	setString("PRINTDESK_SPOOL_DIR", &c.Jobs.SpoolDir)
	setDuration("PRINTDESK_RETENTION", &c.Jobs.Retention)
	setDuration("PRINTDESK_SWEEP_INTERVAL", &c.Jobs.SweepInterval)
	if v := os.Getenv("PRINTDESK_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Jobs.MaxUploadMB = n
		}
	}
	setBool("PRINTDESK_DEFAULT_TONER_SAVE", &c.Jobs.DefaultTonerSave)
	setString("PRINTDESK_CONVERTER", &c.Jobs.Converter)

	setString("PRINTDESK_ARCHIVE_PATH", &c.History.ArchivePath)
	setInt("PRINTDESK_HISTORY_DAYS", &c.History.RetentionDays)

	setString("PRINTDESK_NOTIFICATION_LOG", &c.Notifications.LogPath)

	setString("PRINTDESK_ACCESS_TOKEN", &c.Auth.AccessToken)
	setString("PRINTDESK_JWT_SECRET", &c.Auth.JWTSecret)

	setString("PRINTDESK_LOG_LEVEL", &c.Logging.Level)
	setString("PRINTDESK_LOG_FORMAT", &c.Logging.Format)
}

// MaxUploadBytes is the upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Jobs.MaxUploadMB << 20
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Printer.Name == "" {
		return fmt.Errorf("printer name is required")
	}

	if c.Printer.Port < 1 || c.Printer.Port > 65535 {
		return fmt.Errorf("printer port must be between 1 and 65535, got %d", c.Printer.Port)
	}

	if c.Printer.MaxCopies < 1 {
		return fmt.Errorf("max copies must be at least 1")
	}

	if c.Jobs.SpoolDir == "" {
		return fmt.Errorf("spool dir is required")
	}

	if c.Jobs.Retention <= 0 {
		return fmt.Errorf("job retention must be positive")
	}

	if c.Jobs.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	if c.Jobs.MaxUploadMB < 1 {
		return fmt.Errorf("max upload size must be at least 1 MB")
	}

	if c.History.RetentionDays < 1 {
		return fmt.Errorf("history retention must be at least 1 day")
	}

	if c.History.ArchiveInterval <= 0 {
		return fmt.Errorf("archive interval must be positive")
	}

	if c.Auth.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("jwt secret must be at least 32 characters")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}

	if c.Webhook.Workers < 1 {
		return fmt.Errorf("webhook workers must be at least 1")
	}

	if c.Webhook.RetryCount < 0 {
		return fmt.Errorf("webhook retry count must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}
