package fetcher

import "time"

const (
	defaultUserAgent      = "NorthCloud-SourceRegistry/1.0"
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultRatePerMinute  = 30
	defaultMaxRedirects   = 10
	defaultRetryDelay     = 500 * time.Millisecond
)

// Config holds fetcher settings.
type Config struct {
	UserAgent      string        `env:"FETCHER_USER_AGENT"  yaml:"user_agent"`
	RequestTimeout time.Duration `env:"FETCHER_TIMEOUT"     yaml:"timeout"`
	MaxRetries     int           `env:"FETCHER_MAX_RETRIES" yaml:"max_retries"`
	RatePerMinute  int           `env:"FETCHER_RATE_LIMIT"  yaml:"default_rate_limit"`
	RobotsCacheTTL time.Duration `yaml:"robots_cache_ttl"`
	MaxRedirects   int           `yaml:"max_redirects"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
}

// WithDefaults returns a copy of the config with defaults applied to zero-value fields.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = defaultRatePerMinute
	}
	if c.RobotsCacheTTL <= 0 {
		c.RobotsCacheTTL = defaultRobotsCacheTTL
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = defaultMaxRedirects
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}
