package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"rebal"`
	Password string `env:"PASSWORD"                envDefault:"rebal"`
	Name     string `env:"NAME"                    envDefault:"rebal"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig points the optional run summary cache at a single Redis
// instance. Leaving the URI empty disables the cache entirely.
type RedisConfig struct {
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
}

// CacheConfig contains the run summary cache configuration (Redis-based).
type CacheConfig struct {
	// Enabled controls whether completed run summaries are cached at all.
	// When disabled the coordinator reads straight from Postgres.
	Enabled bool `env:"CACHE_ENABLED" envDefault:"true"`

	// RunTTL is the TTL for cached run summaries.
	RunTTL time.Duration `env:"CACHE_RUN_TTL" envDefault:"1h"`
}
