package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://:memory:")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("WORKER_POLL_INTERVAL", "250ms")

	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "UTC", cfg.FarmTimezone)
	assert.Equal(t, "csa.notifications", cfg.KafkaTopic)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.WorkerPollInterval)
	assert.False(t, cfg.UseAuth0())
	assert.NoError(t, cfg.Validate())
}

func TestFromEnvBadDuration(t *testing.T) {
	t.Setenv("WORKER_POLL_INTERVAL", "soon")
	assert.Equal(t, time.Second, FromEnv().WorkerPollInterval)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabaseURL:        "sqlite://:memory:",
			JWTSecret:          "secret",
			FarmTimezone:       "America/Chicago",
			WorkerPollInterval: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "auth0 instead of secret", mutate: func(c *Config) { c.JWTSecret = ""; c.Auth0Domain = "farm.auth0.com" }},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "DATABASE_URL"},
		{name: "missing auth", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: "AUTH0_DOMAIN"},
		{name: "bad timezone", mutate: func(c *Config) { c.FarmTimezone = "Mars/Olympus" }, wantErr: "FARM_TIMEZONE"},
		{name: "bad poll interval", mutate: func(c *Config) { c.WorkerPollInterval = 0 }, wantErr: "WORKER_POLL_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{FarmTimezone: "America/Chicago"}
	assert.Equal(t, "America/Chicago", cfg.Location().String())

	cfg.FarmTimezone = "nowhere"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestEnvironmentHelpers(t *testing.T) {
	cfg := &Config{GoEnv: "test"}
	assert.True(t, cfg.IsTest())
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}

func TestGetSetConfig(t *testing.T) {
	original := GetConfig()
	defer SetConfig(original)

	cfg := &Config{Port: "9090"}
	SetConfig(cfg)
	assert.Same(t, cfg, GetConfig())
}
