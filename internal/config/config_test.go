package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CAMPUSPOOL_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("CAMPUSPOOL_STORE", "memory")
	t.Setenv("CAMPUSPOOL_LOCK_TTL", "750ms")
	t.Setenv("CAMPUSPOOL_EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "jwt", cfg.Auth.Provider)
	assert.Equal(t, "none", cfg.Events.Provider)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Lock.TTL)
	assert.Equal(t, 120, cfg.RateLimit.PerMinute)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load()
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestValidateEnums(t *testing.T) {
	base := Config{Store: "postgres"}
	base.Auth = AuthConfig{Provider: "jwt", JWTSecret: "x"}
	base.Events.Provider = "none"
	base.Lock = LockConfig{Mode: "local"}
	base.RateLimit = RateLimitConfig{PerMinute: 60, Burst: 5}
	require.NoError(t, base.Validate())

	for name, mutate := range map[string]func(*Config){
		"store":    func(c *Config) { c.Store = "sqlite" },
		"auth":     func(c *Config) { c.Auth.Provider = "basic" },
		"events":   func(c *Config) { c.Events.Provider = "rabbitmq" },
		"lock":     func(c *Config) { c.Lock.Mode = "etcd" },
		"firebase": func(c *Config) { c.Auth.Provider = "firebase" },
		"redis":    func(c *Config) { c.Lock.Mode = "redis" },
		"limit":    func(c *Config) { c.RateLimit.Burst = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
