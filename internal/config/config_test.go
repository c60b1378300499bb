package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busmon.openmbta.org/internal/appconf"
)

const validYAML = `
environment: development
feed:
  base_url: http://webservices.nextbus.com/service/publicXMLFeed
  agency: mbta
  timeout_seconds: 10
poll:
  interval_seconds: 15
  routes: ["1", "77"]
topology:
  backend: file
  dir: /var/lib/busmon/topology
trip_log:
  enabled: true
  data_dir: /var/lib/busmon/trips
server:
  port: 8080
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, appconf.Development, cfg.Env)
	assert.Equal(t, "mbta", cfg.Feed.Agency)
	assert.Equal(t, 10, cfg.Feed.TimeoutSeconds)
	assert.Equal(t, 15, cfg.Poll.IntervalSeconds)
	assert.Equal(t, []string{"1", "77"}, cfg.Poll.Routes)
	assert.Equal(t, "file", cfg.Topology.Backend)
	assert.True(t, cfg.TripLog.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.NATSURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestLoadRejectsEmptyRouteList(t *testing.T) {
	bad := `
environment: development
feed:
  base_url: http://example.com/feed
  agency: mbta
  timeout_seconds: 10
poll:
  interval_seconds: 15
  routes: []
topology:
  backend: file
  dir: /tmp/topology
server:
  port: 8080
`
	_, err := Load(writeConfig(t, bad))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownTopologyBackend(t *testing.T) {
	bad := `
environment: development
feed:
  base_url: http://example.com/feed
  agency: mbta
  timeout_seconds: 10
poll:
  interval_seconds: 15
  routes: ["1"]
topology:
  backend: redis
  dir: /tmp/topology
server:
  port: 8080
`
	_, err := Load(writeConfig(t, bad))
	assert.Error(t, err)
}

func TestLoadSqliteBackendRequiresDBPath(t *testing.T) {
	bad := `
environment: development
feed:
  base_url: http://example.com/feed
  agency: mbta
  timeout_seconds: 10
poll:
  interval_seconds: 15
  routes: ["1"]
topology:
  backend: sqlite
server:
  port: 8080
`
	_, err := Load(writeConfig(t, bad))
	assert.Error(t, err)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BUSMON_ENV", "production")
	t.Setenv("BUSMON_NATS_URL", "nats://broker:4222")
	t.Setenv("BUSMON_PORT", "9090")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, appconf.Production, cfg.Env)
	assert.Equal(t, "nats://broker:4222", cfg.NATSURL)
	assert.Equal(t, 9090, cfg.Server.Port)
}
