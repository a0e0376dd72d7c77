package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConfigYAML(t *testing.T) {
	raw := []byte(`
server:
  address: 127.0.0.1
  port: 9090
  db_path: /tmp/chat
  max_body_size: 64KB
  api_keys:
    backend: [be-1]
    frontend: [fe-1]
logging:
  level: debug
chat:
  presence_ttl: 45s
  write_timeout: 2
sweeper:
  enabled: true
  cron: "0 * * * *"
`)
	cfg, err := ParseConfig(raw)
	require.NoError(t, err)
	require.NoError(t, cfg.ApplyDefaults())

	require.Equal(t, "127.0.0.1:9090", cfg.Addr())
	require.Equal(t, int64(64000), cfg.Server.MaxBodySize.Int64())
	require.Equal(t, 45*time.Second, cfg.Chat.PresenceTTL.Duration())
	require.Equal(t, 2*time.Second, cfg.Chat.WriteTimeout.Duration())
	require.Equal(t, 2000, cfg.Chat.MaxContentRunes)
	require.Equal(t, "0 * * * *", cfg.Sweeper.Cron)
	require.Equal(t, []string{"be-1"}, cfg.Server.APIKeys.Backend)
}

func TestApplyDefaultsRejectsBadCron(t *testing.T) {
	cfg := &Config{}
	cfg.Sweeper.Cron = "not a cron"
	require.Error(t, cfg.ApplyDefaults())
}

func TestParseConfigEnvsFrom(t *testing.T) {
	env := map[string]string{
		"GROUPCHAT_SERVER_PORT":       "7000",
		"GROUPCHAT_API_BACKEND_KEYS":  "a, b ,",
		"GROUPCHAT_CHAT_PRESENCE_TTL": "10s",
		"GROUPCHAT_SWEEPER_ENABLED":   "yes",
	}
	cfg, used := ParseConfigEnvsFrom(func(k string) string { return env[k] })
	require.True(t, used)
	require.Equal(t, 7000, cfg.Server.Port)
	require.Equal(t, []string{"a", "b"}, cfg.Server.APIKeys.Backend)
	require.Equal(t, 10*time.Second, cfg.Chat.PresenceTTL.Duration())
	require.True(t, cfg.Sweeper.Enabled)

	_, used = ParseConfigEnvsFrom(func(string) string { return "" })
	require.False(t, used)
}

func TestLoadEffectiveConfigSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n  db_path: "+dir+"\n  api_keys:\n    backend: [k]\n"), 0o600))

	t.Run("explicit config flag", func(t *testing.T) {
		flags, err := ParseConfigFlags([]string{"--config", path})
		require.NoError(t, err)
		fileCfg, exists, err := ParseConfigFile(flags)
		require.NoError(t, err)
		require.True(t, exists)
		eff, err := LoadEffectiveConfig(flags, fileCfg, exists, &Config{})
		require.NoError(t, err)
		require.Equal(t, "config", eff.Source)
		require.Equal(t, "0.0.0.0:9999", eff.Addr)
		require.NoError(t, ValidateConfig(eff))
	})

	t.Run("missing explicit config", func(t *testing.T) {
		flags, err := ParseConfigFlags([]string{"--config", filepath.Join(dir, "nope.yaml")})
		require.NoError(t, err)
		fileCfg, exists, err := ParseConfigFile(flags)
		require.NoError(t, err)
		_, err = LoadEffectiveConfig(flags, fileCfg, exists, &Config{})
		require.Error(t, err)
	})

	t.Run("flags override env", func(t *testing.T) {
		flags, err := ParseConfigFlags([]string{"--addr", "127.0.0.1:8181", "--db", dir})
		require.NoError(t, err)
		env := &Config{}
		env.Server.APIKeys.Backend = []string{"k"}
		eff, err := LoadEffectiveConfig(flags, &Config{}, false, env)
		require.NoError(t, err)
		require.Equal(t, "flags", eff.Source)
		require.Equal(t, "127.0.0.1:8181", eff.Addr)
		require.Equal(t, dir, eff.DBPath)
	})

	t.Run("no backend keys fails validation", func(t *testing.T) {
		flags, err := ParseConfigFlags(nil)
		require.NoError(t, err)
		eff, err := LoadEffectiveConfig(flags, &Config{}, false, &Config{})
		require.NoError(t, err)
		require.Equal(t, "env", eff.Source)
		require.Error(t, ValidateConfig(eff))
	})
}

func TestRuntimeKeys(t *testing.T) {
	cfg := &Config{}
	cfg.Server.APIKeys.Backend = []string{"be"}
	SetRuntime(RuntimeFromConfig(cfg))
	defer SetRuntime(nil)
	_, ok := GetSigningKeys()["be"]
	require.True(t, ok)
	require.Len(t, GetBackendKeys(), 1)
}
