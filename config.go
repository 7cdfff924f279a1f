package stratum

// MaxDatabasesDefault bounds the number of named databases an environment
// may hold unless overridden with WithMaxDatabases.
const MaxDatabasesDefault = 64

// Config contains environment configuration parameters.
type Config struct {
	MaxDatabases int
	NoSync       bool
}

func defaultConfig() *Config {
	return &Config{
		MaxDatabases: MaxDatabasesDefault,
	}
}

func (c *Config) applyOptions(opts []Option) (*Config, error) {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Option is a function that takes a config struct and modifies it
type Option func(c *Config) error

// WithMaxDatabases sets the maximum number of named databases.
func WithMaxDatabases(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return ErrInvalid
		}
		c.MaxDatabases = n
		return nil
	}
}

// WithNoSync disables fsync on commit for the default backend. Durability
// is traded for write throughput; a crash may lose recent transactions.
func WithNoSync(enable bool) Option {
	return func(c *Config) error {
		c.NoSync = enable
		return nil
	}
}
