package testcfg

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds test-specific configuration for web API acceptance tests
type Config struct {
	MigrationsDir    string        `env:"WEB_TEST_MIGRATIONS_DIR" envDefault:"../migrator/migrations"`
	SeedTimeout      time.Duration `env:"WEB_TEST_SEED_TIMEOUT" envDefault:"5s"`
	SeedPool         string        `env:"WEB_TEST_SEED_POOL" envDefault:"alice-vapi"`
	SeedCoder        string        `env:"WEB_TEST_SEED_CODER" envDefault:"alice.test"`
	LogLevel         string        `env:"WEB_TEST_LOG_LEVEL" envDefault:"info"`
	LogHumanFriendly bool          `env:"WEB_TEST_LOG_HUMAN_FRIENDLY" envDefault:"true"`
}

// parseConfig wraps env.Parse to return (Config, error) for use with env.Must
func parseConfig() (Config, error) {
	var cfg Config
	err := env.Parse(&cfg)
	return cfg, err
}

// New loads test configuration from environment variables
func New() Config {
	return env.Must(parseConfig())
}
