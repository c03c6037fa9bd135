package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Search    SearchConfig    `mapstructure:"search"`
	Sequence  SequenceConfig  `mapstructure:"sequence"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Log       LogConfig       `mapstructure:"log"`
	// Location is the IANA zone in which "tomorrow" and the current year
	// are computed.
	Location string `mapstructure:"location"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
	MetricsPort    int `mapstructure:"metrics_port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir holds the numbered .sql files applied on start when
	// AutoMigrate is set.
	MigrationsDir string `mapstructure:"migrations_dir"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
	// Breaker settings for the publisher.
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
}

type SearchConfig struct {
	DefaultRadiusKm   float64       `mapstructure:"default_radius_km"`
	DefaultMaxResults int           `mapstructure:"default_max_results"`
	WindowDays        int           `mapstructure:"window_days"`
	DirectoryCacheTTL time.Duration `mapstructure:"directory_cache_ttl"`
	Parallelism       int           `mapstructure:"parallelism"`
}

type SequenceConfig struct {
	DefaultMax int `mapstructure:"default_max"`
}

type BookingConfig struct {
	// EnforceScheduleGrid rejects bookings whose time is not an enumerated
	// slot of an open day.
	EnforceScheduleGrid bool          `mapstructure:"enforce_schedule_grid"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryInitialDelay   time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay       time.Duration `mapstructure:"retry_max_delay"`
}

type ScheduleConfig struct {
	RecurringHolidayMatch string `mapstructure:"recurring_holiday_match"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envOverrides are the deployment variables that win over the file.
type envOverrides struct {
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`
	DBSSLMode  string `envconfig:"DB_SSLMODE"`
	RedisURL   string `envconfig:"REDIS_URL"`
	ServerPort int    `envconfig:"SERVER_PORT"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeoutSeconds", 30)
	v.SetDefault("server.metrics_port", 9091)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "appointments")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_dir", "migrations")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.breaker_max_failures", 5)
	v.SetDefault("redis.breaker_timeout", "30s")

	v.SetDefault("search.default_radius_km", 50.0)
	v.SetDefault("search.default_max_results", 5)
	v.SetDefault("search.window_days", 30)
	v.SetDefault("search.directory_cache_ttl", "5m")
	v.SetDefault("search.parallelism", 8)

	v.SetDefault("sequence.default_max", 9999)

	v.SetDefault("booking.enforce_schedule_grid", true)
	v.SetDefault("booking.retry_attempts", 3)
	v.SetDefault("booking.retry_initial_delay", "20ms")
	v.SetDefault("booking.retry_max_delay", "500ms")

	v.SetDefault("schedule.recurring_holiday_match", "weekday")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.retention_period", "168h")
	v.SetDefault("outbox.cleanup_interval", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("location", "UTC")
}

// LoadConfig reads config.yaml from the given directories (or the usual
// locations), falls back to defaults when no file exists, then applies
// environment overrides.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}
	if env.DBHost != "" {
		cfg.Database.Host = env.DBHost
	}
	if env.DBPort != 0 {
		cfg.Database.Port = env.DBPort
	}
	if env.DBUser != "" {
		cfg.Database.User = env.DBUser
	}
	if env.DBPassword != "" {
		cfg.Database.Password = env.DBPassword
	}
	if env.DBName != "" {
		cfg.Database.Name = env.DBName
	}
	if env.DBSSLMode != "" {
		cfg.Database.SSLMode = env.DBSSLMode
	}
	if env.RedisURL != "" {
		cfg.Redis.URL = env.RedisURL
	}
	if env.ServerPort != 0 {
		cfg.Server.Port = env.ServerPort
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Schedule.RecurringHolidayMatch {
	case "weekday", "anniversary":
	default:
		return fmt.Errorf("schedule.recurring_holiday_match must be weekday or anniversary, got %q", c.Schedule.RecurringHolidayMatch)
	}
	if c.Search.DefaultRadiusKm <= 0 {
		return fmt.Errorf("search.default_radius_km must be positive")
	}
	if c.Search.DefaultMaxResults <= 0 || c.Search.WindowDays <= 0 {
		return fmt.Errorf("search.default_max_results and search.window_days must be positive")
	}
	if c.Sequence.DefaultMax <= 0 {
		return fmt.Errorf("sequence.default_max must be positive")
	}
	if _, err := time.LoadLocation(c.Location); err != nil {
		return fmt.Errorf("invalid location %q: %w", c.Location, err)
	}
	return nil
}

// TimeLocation returns the configured zone. Validate has already checked it.
func (c *Config) TimeLocation() *time.Location {
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}
