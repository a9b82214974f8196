package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), FileName))
}

func TestLoad_NoFileReturnsDefaults(t *testing.T) {
	store := newTestStore(t)

	cfg, err := store.Load()
	require.NoError(t, err)

	assert.False(t, cfg.GlobalEnabled, "auto-yes must default to off")
	assert.Empty(t, cfg.EnabledInstances)
	assert.Equal(t, DefaultPollIntervalSecs, cfg.PollIntervalSecs)
	assert.Equal(t, DefaultCaptureLines, cfg.CaptureLines)
}

func TestLoad_CorruptFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("global_enabled = [[[not toml"), 0o600))

	_, err := store.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt), "corrupt file must surface ErrCorrupt, got %v", err)

	// The broken file must be left untouched for the user to repair
	data, readErr := os.ReadFile(store.Path())
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "not toml")
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	store := newTestStore(t)

	cfg := Default()
	cfg.GlobalEnabled = true
	cfg.EnabledInstances = []string{"work:1.0", "main:0.1"}
	require.NoError(t, store.Save(cfg))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.True(t, loaded.GlobalEnabled)
	// Save sorts for stable diffs
	assert.Equal(t, []string{"main:0.1", "work:1.0"}, loaded.EnabledInstances)
}

func TestSave_NoTempFileLeftBehind(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Save(Default()))

	_, err := os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestSave_FileIsHandEditable(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Enable("main:0.0"))

	// Simulate a hand edit between runs
	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	edited := string(data) + "\nglobal_enabled = true\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(edited), 0o600))

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.True(t, cfg.GlobalEnabled)
	assert.True(t, cfg.IsEnabled("main:0.0"))
}

func TestEnableDisable(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Enable("main:0.0"))
	require.NoError(t, store.Enable("main:0.0")) // idempotent

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"main:0.0"}, cfg.EnabledInstances)

	require.NoError(t, store.Disable("main:0.0"))
	cfg, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.EnabledInstances, "enable then disable must equal never-enabled")

	// Disabling an unknown target is a no-op
	require.NoError(t, store.Disable("ghost:9.9"))
}

func TestEnableAllDisableAll(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.EnableAll([]string{"a:0.0", "b:0.0", "a:0.0"}))
	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"a:0.0", "b:0.0"}, cfg.EnabledInstances)

	require.NoError(t, store.DisableAll())
	cfg, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.EnabledInstances)
}

func TestSetGlobal(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetGlobal(true))
	cfg, err := store.Load()
	require.NoError(t, err)
	assert.True(t, cfg.GlobalEnabled)

	require.NoError(t, store.SetGlobal(false))
	cfg, err = store.Load()
	require.NoError(t, err)
	assert.False(t, cfg.GlobalEnabled)
}

func TestIsEnabled_RequiresBothSwitches(t *testing.T) {
	cfg := Default()
	cfg.EnabledInstances = []string{"main:0.0"}

	// Instance enabled but global off: never permitted
	assert.False(t, cfg.IsEnabled("main:0.0"))

	cfg.GlobalEnabled = true
	assert.True(t, cfg.IsEnabled("main:0.0"))
	assert.False(t, cfg.IsEnabled("other:0.0"))
}

func TestUpdate_PreservesUnrelatedFields(t *testing.T) {
	store := newTestStore(t)

	cfg := Default()
	cfg.PollIntervalSecs = 7
	cfg.Theme = "light"
	cfg.Daemon.AutoLifecycle = true
	require.NoError(t, store.Save(cfg))

	require.NoError(t, store.Enable("main:0.0"))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.PollIntervalSecs)
	assert.Equal(t, "light", loaded.Theme)
	assert.True(t, loaded.Daemon.AutoLifecycle)
}

func TestUpdate_CorruptFileBlocksMutation(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("!!!"), 0o600))

	err := store.Enable("main:0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))

	// Corrupt content untouched
	data, readErr := os.ReadFile(store.Path())
	require.NoError(t, readErr)
	assert.Equal(t, "!!!", string(data))
}
