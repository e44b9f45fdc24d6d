package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))

	require.NoError(t, err)
	assert.Equal(t, "default", cfg.CurrentProfile)
	assert.Empty(t, cfg.Profiles)
	assert.Equal(t, DefaultAPIURL, cfg.GetAPIURL(""))
}

func TestSaveProfile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, cfg.SaveProfile("staging", "https://leads.staging.example.com", "tok-1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", reloaded.CurrentProfile)

	p, err := reloaded.GetProfile("")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", p.Token)
	assert.Equal(t, "https://leads.staging.example.com", reloaded.GetAPIURL("staging"))
}

func TestRemoveProfile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.SaveProfile("default", "", "tok"))

	require.NoError(t, cfg.RemoveProfile("default"))
	assert.Empty(t, cfg.CurrentProfile)

	_, err = cfg.GetProfile("default")
	assert.Error(t, err)
	assert.Error(t, cfg.RemoveProfile("default"))
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: [not a map"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}
