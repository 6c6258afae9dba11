package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/altair/internal/filex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "127.0.0.1:50051", c.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, c.OnlineCheckInterval)
	assert.Empty(t, c.DatabasePath)
	assert.Equal(t, "Local", c.Timezone)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"altair"}

	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "127.0.0.1:50051", cfg.ServerEndpointAddr)
	assert.Equal(t, 3*time.Second, cfg.OnlineCheckInterval)
}

func TestLocation(t *testing.T) {
	c := &Config{}
	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	c.Timezone = "Europe/Riga"
	loc, err = c.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Riga", loc.String())

	c.Timezone = "Mars/Olympus"
	_, err = c.Location()
	require.Error(t, err)
}

func TestResolveDatabasePath(t *testing.T) {
	t.Run("explicit path", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "nested", "mirror.db")
		c := &Config{DatabasePath: p}
		got, err := c.ResolveDatabasePath()
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.DirExists(t, filepath.Dir(p))
	})

	t.Run("data dir", func(t *testing.T) {
		home := filepath.Join(t.TempDir(), "home")
		t.Setenv(filex.HomeEnv, home)
		c := &Config{}
		got, err := c.ResolveDatabasePath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, "altair.db"), got)
		assert.DirExists(t, home)
	})
}
