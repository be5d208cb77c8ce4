package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  address: 127.0.0.1
  port: 9090
  db_path: /var/lib/pairdb
security:
  cors:
    allowed_origins: ["https://app.example.com"]
  rate_limit:
    rps: 25
    burst: 50
  api_keys:
    backend: ["be-key"]
    frontend: ["fe-key"]
    admin: ["adm-key"]
logging:
  level: debug
presence:
  online_window: 2s
  typing_ttl: 1500ms
  flush_interval: 250ms
sweeper:
  enabled: true
  cron: "*/5 * * * *"
  version_keep: 3
limits:
  max_content_bytes: 64KB
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
	require.Equal(t, "/var/lib/pairdb", cfg.Server.DBPath)
	require.Equal(t, []string{"https://app.example.com"}, cfg.Security.CORS.AllowedOrigins)
	require.Equal(t, 25.0, cfg.Security.RateLimit.RPS)
	require.Equal(t, []string{"be-key"}, cfg.Security.APIKeys.Backend)
	require.Equal(t, "debug", cfg.Logging.Level)

	require.Equal(t, 2*time.Second, cfg.Presence.OnlineWindow.Duration())
	require.Equal(t, 1500*time.Millisecond, cfg.Presence.TypingTTL.Duration())
	require.Equal(t, 250*time.Millisecond, cfg.Presence.FlushInterval.Duration())

	require.True(t, cfg.Sweeper.Enabled)
	require.Equal(t, "*/5 * * * *", cfg.Sweeper.Cron)
	require.Equal(t, 3, cfg.Sweeper.VersionKeep)

	require.Equal(t, int64(64*1000), cfg.Limits.MaxContentBytes.Int64())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestDurationAcceptsBareSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "presence:\n  online_window: 3\n"))
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.Presence.OnlineWindow.Duration())
}

func TestAddrDefaults(t *testing.T) {
	var cfg Config
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestParseConfigEnvs(t *testing.T) {
	t.Setenv("PAIRDB_ADDR", "10.0.0.5:9999")
	t.Setenv("PAIRDB_DB_PATH", "/data/pairdb")
	t.Setenv("PAIRDB_API_BACKEND_KEYS", "k1, k2")
	t.Setenv("PAIRDB_ONLINE_WINDOW", "4s")

	envCfg, res := ParseConfigEnvs()
	require.True(t, res.EnvUsed)
	require.Equal(t, "10.0.0.5:9999", envCfg.Addr())
	require.Equal(t, "/data/pairdb", envCfg.Server.DBPath)
	require.Equal(t, []string{"k1", "k2"}, envCfg.Security.APIKeys.Backend)
	require.Equal(t, 4*time.Second, envCfg.Presence.OnlineWindow.Duration())

	// backend keys double as signing keys
	require.Contains(t, res.SigningKeys, "k1")
	require.Contains(t, res.SigningKeys, "k2")
}

func TestLoadEffectiveConfigPrefersExplicitConfigFlag(t *testing.T) {
	fileCfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	flags := Flags{Config: "config.yaml", Set: map[string]bool{"config": true}}
	eff, err := LoadEffectiveConfig(flags, fileCfg, true, &Config{}, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "config", eff.Source)
	require.Equal(t, "127.0.0.1:9090", eff.Addr)
	require.Equal(t, "/var/lib/pairdb", eff.DBPath)

	// explicit --config with a missing file is fatal
	_, err = LoadEffectiveConfig(flags, &Config{}, false, &Config{}, EnvResult{})
	require.Error(t, err)
}

func TestLoadEffectiveConfigFlagsWin(t *testing.T) {
	flags := Flags{Addr: ":7070", DB: "/tmp/db", Set: map[string]bool{"addr": true, "db": true}}
	eff, err := LoadEffectiveConfig(flags, &Config{}, false, &Config{}, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "flags", eff.Source)
	require.Equal(t, ":7070", eff.Addr)
	require.Equal(t, "/tmp/db", eff.DBPath)
}

func TestLoadEffectiveConfigFallsBackToEnv(t *testing.T) {
	envCfg := &Config{}
	envCfg.Server.Address = "127.0.0.1"
	envCfg.Server.Port = 6060
	envCfg.Server.DBPath = "/env/db"

	eff, err := LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg, EnvResult{EnvUsed: true})
	require.NoError(t, err)
	require.Equal(t, "env", eff.Source)
	require.Equal(t, "127.0.0.1:6060", eff.Addr)
	require.Equal(t, "/env/db", eff.DBPath)
}

func TestRuntimeSigningKeys(t *testing.T) {
	SetRuntime(&RuntimeConfig{
		SigningKeys: map[string]struct{}{"be": {}, "sign": {}},
	})
	defer SetRuntime(nil)

	keys := GetSigningKeys()
	require.Len(t, keys, 2)
	require.Contains(t, keys, "be")

	// the returned map is a copy
	delete(keys, "be")
	require.Len(t, GetSigningKeys(), 2)

	// unset runtime config yields an empty set, not nil panic fodder
	SetRuntime(nil)
	require.Empty(t, GetSigningKeys())
}
