package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppPort(t *testing.T) {
	t.Run("defaults to 8080", func(t *testing.T) {
		t.Setenv("APP_PORT", "")
		t.Setenv("PORT", "")
		assert.Equal(t, 8080, AppPort())
	})

	t.Run("APP_PORT wins over PORT", func(t *testing.T) {
		t.Setenv("APP_PORT", "9001")
		t.Setenv("PORT", "9002")
		assert.Equal(t, 9001, AppPort())
	})

	t.Run("PORT is used when APP_PORT is empty", func(t *testing.T) {
		t.Setenv("APP_PORT", "")
		t.Setenv("PORT", "9002")
		assert.Equal(t, 9002, AppPort())
	})

	t.Run("garbage falls back to default", func(t *testing.T) {
		t.Setenv("APP_PORT", "not-a-port")
		assert.Equal(t, 8080, AppPort())
	})
}

func TestIsProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	assert.True(t, IsProduction())

	t.Setenv("APP_ENV", "local")
	assert.False(t, IsProduction())
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "app.json")
	envPath := filepath.Join(dir, ".env")

	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"redis_addr": "json:6379", "db_driver": "mysql"}`), 0o644))
	require.NoError(t, os.WriteFile(envPath, []byte("# comment\nREDIS_ADDR=\"env:6379\"\n"), 0o644))

	t.Cleanup(func() {
		mu.Lock()
		values = defaultValues()
		mu.Unlock()
	})

	require.NoError(t, loadFromFiles(jsonPath, envPath))

	t.Setenv("REDIS_ADDR", "")
	t.Setenv("DB_DRIVER", "")
	assert.Equal(t, "env:6379", get("REDIS_ADDR", ""), ".env overrides app.json")
	assert.Equal(t, "mysql", get("DB_DRIVER", ""))

	t.Setenv("REDIS_ADDR", "process:6379")
	assert.Equal(t, "process:6379", get("REDIS_ADDR", ""), "process env overrides files")
}

func TestLoadFromFiles_MissingFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() {
		mu.Lock()
		values = defaultValues()
		mu.Unlock()
	})
	assert.NoError(t, loadFromFiles(filepath.Join(dir, "nope.json"), filepath.Join(dir, "nope.env")))
}
