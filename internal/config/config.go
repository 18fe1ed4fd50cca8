package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/goodtune/timerflow/internal/timespan"
)

// Config holds the complete application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Timer         TimerConfig         `mapstructure:"timer"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Retention     RetentionConfig     `mapstructure:"retention"`
	Collector     CollectorConfig     `mapstructure:"collector"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress string `mapstructure:"bind_address"`
	APIPort     int    `mapstructure:"api_port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// TimerConfig defines timer engine behaviour
type TimerConfig struct {
	DefaultName     string `mapstructure:"default_name"`
	DefaultDuration string `mapstructure:"default_duration"` // HH:MM:SS, MM:SS or a Go duration; empty for none
	TickInterval    string `mapstructure:"tick_interval"`
	OverageGaugeCap string `mapstructure:"overage_gauge_cap"` // elapsed time at which the count-up gauge is full
}

// NotificationsConfig defines countdown notification settings
type NotificationsConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	Volume          float64 `mapstructure:"volume"`
	Muted           bool    `mapstructure:"muted"`
	CountdownVolume float64 `mapstructure:"countdown_volume"`
	CountdownMuted  bool    `mapstructure:"countdown_muted"`
	Bell            bool    `mapstructure:"bell"`
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type         string      `mapstructure:"type"` // "bolt" or "redis"
	Path         string      `mapstructure:"path"`
	FallbackPath string      `mapstructure:"fallback_path"` // local bolt file used when redis fails
	Redis        RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"` // 0 when Host already carries the port
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RetentionConfig defines how long closed sessions are kept
type RetentionConfig struct {
	SessionRetentionDays int    `mapstructure:"session_retention_days"` // 0 keeps sessions forever
	CleanupTime          string `mapstructure:"cleanup_time"`           // HH:MM
}

// CollectorConfig defines the closed-session pipeline
type CollectorConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	CacheSize int `mapstructure:"cache_size"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("TIMERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// Keys lists every recognised configuration key in dotted form.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	return v.AllKeys()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "127.0.0.1")
	v.SetDefault("server.api_port", 8080)
	v.SetDefault("server.metrics_port", 9090)

	// Timer defaults
	v.SetDefault("timer.default_name", "Timer")
	v.SetDefault("timer.default_duration", "")
	v.SetDefault("timer.tick_interval", "250ms")
	v.SetDefault("timer.overage_gauge_cap", "30m")

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.volume", 0.7)
	v.SetDefault("notifications.muted", false)
	v.SetDefault("notifications.countdown_volume", 1.0)
	v.SetDefault("notifications.countdown_muted", false)
	v.SetDefault("notifications.bell", true)

	// Storage defaults
	v.SetDefault("storage.type", "bolt")
	v.SetDefault("storage.path", "/var/lib/timerflow/timerflow.bolt")
	v.SetDefault("storage.fallback_path", "")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.min_idle_conns", 2)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Retention defaults
	v.SetDefault("retention.session_retention_days", 365)
	v.SetDefault("retention.cleanup_time", "03:00")

	// Collector defaults
	v.SetDefault("collector.queue_size", 64)
	v.SetDefault("collector.cache_size", 128)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if err := validatePort("API", cfg.Server.APIPort); err != nil {
		return err
	}
	if err := validatePort("metrics", cfg.Server.MetricsPort); err != nil {
		return err
	}

	if cfg.Timer.DefaultDuration != "" {
		if _, err := timespan.Parse(cfg.Timer.DefaultDuration); err != nil {
			return fmt.Errorf("invalid timer default_duration: %w", err)
		}
	}
	if err := validateDuration("timer tick_interval", cfg.Timer.TickInterval); err != nil {
		return err
	}
	if err := validateDuration("timer overage_gauge_cap", cfg.Timer.OverageGaugeCap); err != nil {
		return err
	}

	if err := validateVolume("notifications volume", cfg.Notifications.Volume); err != nil {
		return err
	}
	if err := validateVolume("notifications countdown_volume", cfg.Notifications.CountdownVolume); err != nil {
		return err
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "bolt"
	}
	switch cfg.Storage.Type {
	case "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required")
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage redis host is required")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", cfg.Storage.Type)
	}
	if cfg.Storage.FallbackPath != "" && cfg.Storage.Type != "redis" {
		return fmt.Errorf("storage fallback_path requires redis storage")
	}

	if cfg.Retention.SessionRetentionDays < 0 {
		return fmt.Errorf("invalid session_retention_days: %d", cfg.Retention.SessionRetentionDays)
	}
	if _, err := time.Parse("15:04", cfg.Retention.CleanupTime); err != nil {
		return fmt.Errorf("invalid retention cleanup_time %q: %w", cfg.Retention.CleanupTime, err)
	}

	if cfg.Collector.QueueSize <= 0 {
		return fmt.Errorf("invalid collector queue_size: %d", cfg.Collector.QueueSize)
	}
	if cfg.Collector.CacheSize <= 0 {
		return fmt.Errorf("invalid collector cache_size: %d", cfg.Collector.CacheSize)
	}

	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid %s port: %d", name, port)
	}
	return nil
}

func validateDuration(name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be positive", name)
	}
	return nil
}

func validateVolume(name string, volume float64) error {
	if volume < 0 || volume > 1 {
		return fmt.Errorf("invalid %s: %v (must be between 0 and 1)", name, volume)
	}
	return nil
}
