package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"groupchat/pkg/config"
)

func effective(t *testing.T, backendKeys ...string) config.EffectiveConfigResult {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.APIKeys.Backend = backendKeys
	cfg.Server.DBPath = filepath.Join(t.TempDir(), "db")
	require.NoError(t, cfg.ApplyDefaults())
	return config.EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: cfg.Server.DBPath, Source: "flags"}
}

func TestNewRequiresBackendKeys(t *testing.T) {
	_, err := New(effective(t), "test", "none", "unknown")
	require.ErrorContains(t, err, "backend api keys")
}

func TestNewOpensStoreAndShutsDown(t *testing.T) {
	a, err := New(effective(t, "be-key"), "test", "none", "unknown")
	require.NoError(t, err)
	require.Equal(t, "initialized", a.State())
	require.True(t, a.store.Ready())
	require.Contains(t, config.GetBackendKeys(), "be-key")

	require.NoError(t, a.Shutdown(context.Background()))
	require.Equal(t, "stopped", a.State())
	require.False(t, a.store.Ready())
}

func TestDepsWireSweeperOnlyWhenRunning(t *testing.T) {
	a, err := New(effective(t, "be-key"), "test", "none", "unknown")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	d := a.deps()
	require.Nil(t, d.SweepMutes)
	require.Same(t, a.store, d.Env.Store)
	require.Contains(t, d.Security.BackendKeys, "be-key")
}
