package brsvc

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, cfg, defaultConfig)
}

func TestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("BRSVC_PORT", "9999")
	t.Setenv("BRSVC_SERVER_BINARY", "/usr/local/bin/vu")
	t.Setenv("BRSVC_MAX_SERVERS", "2")
	t.Setenv("BRSVC_QUEUE_WINDOW", "30s")
	t.Setenv("BRSVC_SERVER_TICK_RATE", "120")

	cfg, err := LoadConfig()
	assert.NilError(t, err)
	assert.Equal(t, cfg.Port, "9999")
	assert.Equal(t, cfg.ServerBinary, "/usr/local/bin/vu")
	assert.Equal(t, cfg.MaxServers, 2)
	assert.Equal(t, cfg.QueueWindow, 30*time.Second)
	assert.Equal(t, cfg.TickRate, 120)
	assert.Equal(t, cfg.MaxLobbies, defaultConfig.MaxLobbies, "unset vars keep their defaults")
}

func TestConfigValidate(t *testing.T) {
	cfg := defaultConfig
	cfg.TickRate = 45
	assert.ErrorContains(t, cfg.Validate(), "tick rate")

	cfg = defaultConfig
	cfg.GamePortEnd = cfg.GamePortStart - 1
	assert.ErrorContains(t, cfg.Validate(), "port range")

	cfg = defaultConfig
	cfg.ControlPortStart = cfg.GamePortStart + 50
	cfg.ControlPortEnd = cfg.GamePortEnd + 50
	assert.ErrorContains(t, cfg.Validate(), "overlap")

	cfg = defaultConfig
	cfg.MaxServers = 0
	assert.ErrorContains(t, cfg.Validate(), "max servers")
}
