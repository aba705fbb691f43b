package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "commerce-ledger", c.Service.Name)
	assert.Equal(t, 3*time.Second, c.Ledger.LockTimeout)
	assert.True(t, c.Ledger.SerializableStock)
	assert.False(t, c.Ledger.BlockSaleOversell)

	threshold, err := c.VarianceThreshold()
	require.NoError(t, err)
	assert.Equal(t, "5", threshold.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_DB_HOST", "db.internal")
	t.Setenv("LEDGER_LEDGER_LOCK_TIMEOUT", "750ms")
	t.Setenv("LEDGER_LEDGER_BLOCK_SALE_OVERSELL", "true")
	t.Setenv("LEDGER_KAFKA_ENABLED", "true")
	t.Setenv("LEDGER_KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", c.DB.Host)
	assert.Equal(t, 750*time.Millisecond, c.Ledger.LockTimeout)
	assert.True(t, c.Ledger.BlockSaleOversell)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	content := []byte("ledger:\n  default_variance_threshold: \"10.00\"\n  timezone: Asia/Kolkata\nredis:\n  addr: localhost:6379\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	threshold, err := c.VarianceThreshold()
	require.NoError(t, err)
	assert.Equal(t, "10", threshold.String())
	assert.Equal(t, "localhost:6379", c.Redis.Addr)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	t.Setenv("LEDGER_LEDGER_DEFAULT_VARIANCE_THRESHOLD", "abc")
	_, err := Load("")
	assert.Error(t, err)
}
