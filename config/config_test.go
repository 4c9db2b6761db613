package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("ALLOW_ROLE_ON_REGISTER", "")
	t.Setenv("JWT_TTL", "")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.False(t, cfg.Features.AllowRoleOnRegister)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 60*time.Minute, cfg.PasswordReset.TTL)
	assert.Equal(t, 10*time.Second, cfg.OAuth.Timeout)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOW_ROLE_ON_REGISTER", "true")
	t.Setenv("JWT_SECRET", "  s3cret  ")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("MQ_BACKEND", "Kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.True(t, cfg.Features.AllowRoleOnRegister)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 2*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, "kafka", cfg.MQ.Backend)
	require.Len(t, cfg.MQ.Kafka.Brokers, 2)
	assert.Equal(t, "k2:9092", cfg.MQ.Kafka.Brokers[1])
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_BOOL", "maybe")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	assert.True(t, getEnvBool("TEST_BOOL", true))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))
}
