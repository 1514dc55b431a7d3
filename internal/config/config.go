// Package config loads service configuration and seed definitions.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/source-registry/internal/logger"
)

const (
	defaultServerAddress      = ":8060"
	defaultServerTimeout      = 30 * time.Second
	defaultDatabaseDriver     = DriverSQLite
	defaultSQLitePath         = "source-registry.db"
	defaultDatabasePort       = 5432
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultRedisAddress       = "localhost:6379"
	defaultRedisStream        = "source-registry-events"
	defaultUserAgent          = "NorthCloud-SourceRegistry/1.0"
	defaultFetchTimeout       = 30 * time.Second
	defaultFetchRetries       = 3
	defaultRateLimit          = 30
	defaultRobotsCacheTTL     = 24 * time.Hour
	defaultLLMModel           = "claude-sonnet-4-5"
	defaultLLMMaxTokens       = 4096
	defaultLLMTimeout         = 90 * time.Second
	defaultVisualMinScore     = 3
	defaultVisualMaxPerIntent = 3
	defaultVisualMinWidth     = 300
	defaultVisualMinHeight    = 200
	defaultWikimediaURL       = "https://commons.wikimedia.org/w/api.php"
	defaultOpenverseURL       = "https://api.openverse.org/v1/images/"
	defaultScheduleSpec       = "0 3 * * *"
	defaultSeedsFile          = "seeds.yaml"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var (
	// ErrMissingDatabase is returned when the database settings cannot produce a connection.
	ErrMissingDatabase = errors.New("database configuration is incomplete")
	// ErrUnknownDriver is returned for a driver other than postgres or sqlite3.
	ErrUnknownDriver = errors.New("unknown database driver")
)

// Config is the root configuration for the source registry.
type Config struct {
	Debug     bool            `env:"APP_DEBUG"  yaml:"debug"`
	SeedsFile string          `env:"SEEDS_FILE" yaml:"seeds_file"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
	LLM       LLMConfig       `yaml:"llm"`
	Visual    VisualConfig    `yaml:"visual"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   logger.Config   `yaml:"logging"`
}

type ServerConfig struct {
	Address         string        `env:"SERVER_ADDRESS" yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER"   yaml:"driver"`
	Path            string        `env:"DB_PATH"     yaml:"path"`
	Host            string        `env:"DB_HOST"     yaml:"host"`
	Port            int           `env:"DB_PORT"     yaml:"port"`
	User            string        `env:"DB_USER"     yaml:"user"`
	Password        string        `env:"DB_PASSWORD" yaml:"password"`
	DBName          string        `env:"DB_NAME"     yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"  yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the driver-specific data source name.
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path + "?_foreign_keys=on&_busy_timeout=5000"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis settings for lifecycle event publishing.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_EVENTS_ENABLED" yaml:"enabled"`
	Address  string `env:"REDIS_ADDRESS"        yaml:"address"`
	Password string `env:"REDIS_PASSWORD"       yaml:"password"`
	DB       int    `env:"REDIS_DB"             yaml:"db"`
	Stream   string `env:"REDIS_STREAM"         yaml:"stream"`
}

type FetcherConfig struct {
	UserAgent        string        `env:"FETCHER_USER_AGENT"  yaml:"user_agent"`
	Timeout          time.Duration `env:"FETCHER_TIMEOUT"     yaml:"timeout"`
	MaxRetries       int           `env:"FETCHER_MAX_RETRIES" yaml:"max_retries"`
	DefaultRateLimit int           `env:"FETCHER_RATE_LIMIT"  yaml:"default_rate_limit"`
	RobotsCacheTTL   time.Duration `yaml:"robots_cache_ttl"`
}

type LLMConfig struct {
	APIKey    string        `env:"ANTHROPIC_API_KEY" yaml:"api_key"`
	Model     string        `env:"LLM_MODEL"         yaml:"model"`
	MaxTokens int           `env:"LLM_MAX_TOKENS"    yaml:"max_tokens"`
	Timeout   time.Duration `env:"LLM_TIMEOUT"       yaml:"timeout"`
}

type VisualConfig struct {
	Enabled      bool   `env:"VISUAL_ENABLED" yaml:"enabled"`
	WikimediaURL string `yaml:"wikimedia_url"`
	OpenverseURL string `yaml:"openverse_url"`
	MinScore     int    `yaml:"min_score"`
	MaxPerIntent int    `yaml:"max_per_intent"`
	MinWidth     int    `yaml:"min_width"`
	MinHeight    int    `yaml:"min_height"`
}

type SchedulerConfig struct {
	Enabled bool   `env:"SCHEDULER_ENABLED" yaml:"enabled"`
	Spec    string `env:"SCHEDULER_SPEC"    yaml:"spec"`
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path is required for sqlite3", ErrMissingDatabase)
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("%w: database.host, database.user and database.dbname are required", ErrMissingDatabase)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Database.Driver)
	}
	if c.Fetcher.DefaultRateLimit <= 0 {
		return errors.New("fetcher.default_rate_limit must be positive")
	}
	return nil
}

// Load reads path (optional), applies defaults and env overrides, and validates.
func Load(path string) (*Config, error) {
	cfg, err := loadYAML(path, setDefaults)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a validated configuration built from defaults alone.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.SeedsFile == "" {
		cfg.SeedsFile = defaultSeedsFile
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultServerTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * defaultServerTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultServerTimeout
	}

	setDatabaseDefaults(&cfg.Database)

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = defaultRedisStream
	}

	if cfg.Fetcher.UserAgent == "" {
		cfg.Fetcher.UserAgent = defaultUserAgent
	}
	if cfg.Fetcher.Timeout == 0 {
		cfg.Fetcher.Timeout = defaultFetchTimeout
	}
	if cfg.Fetcher.MaxRetries == 0 {
		cfg.Fetcher.MaxRetries = defaultFetchRetries
	}
	if cfg.Fetcher.DefaultRateLimit == 0 {
		cfg.Fetcher.DefaultRateLimit = defaultRateLimit
	}
	if cfg.Fetcher.RobotsCacheTTL == 0 {
		cfg.Fetcher.RobotsCacheTTL = defaultRobotsCacheTTL
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultLLMModel
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = defaultLLMMaxTokens
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = defaultLLMTimeout
	}

	setVisualDefaults(&cfg.Visual)

	if cfg.Scheduler.Spec == "" {
		cfg.Scheduler.Spec = defaultScheduleSpec
	}
	cfg.Logging.SetDefaults()
}

func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Driver == "" {
		db.Driver = defaultDatabaseDriver
	}
	if db.Driver == DriverSQLite && db.Path == "" {
		db.Path = defaultSQLitePath
	}
	if db.Port == 0 {
		db.Port = defaultDatabasePort
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxOpenConns == 0 {
		db.MaxOpenConns = defaultMaxOpenConns
	}
	if db.MaxIdleConns == 0 {
		db.MaxIdleConns = defaultMaxIdleConns
	}
	if db.ConnMaxLifetime == 0 {
		db.ConnMaxLifetime = defaultConnMaxLifetime
	}
}

func setVisualDefaults(v *VisualConfig) {
	if v.WikimediaURL == "" {
		v.WikimediaURL = defaultWikimediaURL
	}
	if v.OpenverseURL == "" {
		v.OpenverseURL = defaultOpenverseURL
	}
	if v.MinScore == 0 {
		v.MinScore = defaultVisualMinScore
	}
	if v.MaxPerIntent == 0 {
		v.MaxPerIntent = defaultVisualMaxPerIntent
	}
	if v.MinWidth == 0 {
		v.MinWidth = defaultVisualMinWidth
	}
	if v.MinHeight == 0 {
		v.MinHeight = defaultVisualMinHeight
	}
}
