package logger

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum logging level (debug, info, warn, error).
	Level string `env:"LOG_LEVEL" yaml:"level"`
	// Format is "json" (default) or "console".
	Format string `env:"LOG_FORMAT" yaml:"format"`
	// Development enables zap's development encoder settings.
	Development bool `env:"LOG_DEVELOPMENT" yaml:"development"`
	// OutputPaths is a list of URLs or file paths to write logging output to.
	OutputPaths []string `yaml:"output_paths"`
	// BufferSize is the capacity of the in-memory audit ring buffer.
	BufferSize int `env:"LOG_BUFFER_SIZE" yaml:"buffer_size"`
}

// Default configuration values.
const (
	DefaultLevel      = "info"
	DefaultFormat     = "json"
	DefaultBufferSize = 1000

	FormatConsole = "console"
)

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stderr"}
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
}
