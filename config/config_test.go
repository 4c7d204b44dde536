package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
listen_addr: 0.0.0.0:9000
advertise_addr: 10.0.0.5:9000
codec: binary
reassembly:
  max_pending: 128
  ttl: 10s
dispatch:
  timeout: 2s
  rate_limit: 100
  rate_burst: 20
etcd:
  endpoints: [127.0.0.1:2379]
logging:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "10.0.0.5:9000", cfg.AdvertiseAddr)
	assert.Equal(t, "binary", cfg.Codec)
	assert.Equal(t, 128, cfg.Reassembly.MaxPending)
	assert.Equal(t, 10*time.Second, cfg.Reassembly.TTL)
	assert.Equal(t, 5*time.Second, cfg.Reassembly.SweepInterval)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 100.0, cfg.Dispatch.RateLimit)
	assert.Equal(t, []string{"127.0.0.1:2379"}, cfg.Etcd.Endpoints)
	assert.Equal(t, int64(10), cfg.Etcd.LeaseTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 1200, cfg.DatagramSize)
	assert.Empty(t, cfg.Admin.ListenAddr)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "127.0.0.1:7070", cfg.ListenAddr)
	assert.Equal(t, "127.0.0.1:7071", cfg.Admin.ListenAddr)
	assert.Equal(t, "json", cfg.Codec)
	assert.Equal(t, 30*time.Second, cfg.Reassembly.TTL)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "listen_adr: 1.2.3.4:5\n"))
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	cases := map[string]string{
		"codec":         "codec: xml\n",
		"datagram size": "datagram_size: 8\n",
		"burst":         "dispatch:\n  rate_limit: 10\n",
		"format":        "logging:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
