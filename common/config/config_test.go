package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LEADS_CONFIG_DIR", t.TempDir())

	cfg, err := Load("leads")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Delivery.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Delivery.BaseDelay)
	assert.Equal(t, "jetstream", cfg.Queue.Backend)
	assert.Equal(t, "postgres://leads:@localhost:5432/leads?sslmode=disable", cfg.Database.Postgres.ConnString())
}

func TestLoad_DispatcherPort(t *testing.T) {
	t.Setenv("LEADS_CONFIG_DIR", t.TempDir())

	cfg, err := Load("dispatcher")
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
delivery:
  max_attempts: 3
  base_delay: 1s
queue:
  backend: memory
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("LEADS_CONFIG_DIR", dir)
	t.Setenv("LEADS_DELIVERY_WORKERS", "2")

	cfg, err := Load("leads")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Delivery.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Delivery.BaseDelay)
	assert.Equal(t, "memory", cfg.Queue.Backend)
	assert.Equal(t, 2, cfg.Delivery.Workers)
}

func TestLoad_InvalidQueueBackend(t *testing.T) {
	t.Setenv("LEADS_CONFIG_DIR", t.TempDir())
	t.Setenv("LEADS_QUEUE_BACKEND", "kafka")

	_, err := Load("leads")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.backend")
}

func TestValidate(t *testing.T) {
	valid := Config{
		Delivery: DeliveryConfig{Workers: 1, MaxAttempts: 1, BaseDelay: time.Second, MaxDelay: time.Minute},
		Queue:    QueueConfig{Backend: "memory"},
	}
	assert.NoError(t, valid.Validate())

	noAttempts := valid
	noAttempts.Delivery.MaxAttempts = 0
	assert.Error(t, noAttempts.Validate())

	inverted := valid
	inverted.Delivery.MaxDelay = time.Millisecond
	assert.Error(t, inverted.Validate())

	noRedis := valid
	noRedis.Queue.Backend = "jetstream"
	assert.Error(t, noRedis.Validate())
	noRedis.Redis.Enabled = true
	assert.NoError(t, noRedis.Validate())
}
