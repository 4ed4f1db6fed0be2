package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/truptisatsangi/robo-defi-advisor/internal/validation"
)

// chdir changes the working directory for the duration of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, CatalogLive, cfg.CatalogMode)
	assert.Equal(t, "http://localhost:5000/metta", cfg.FactStoreURL)
	assert.Equal(t, 3*time.Second, cfg.FactTimeout)
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
	assert.Empty(t, cfg.APIKeys)
}

func TestLoad_Environment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("CATALOG_MODE", "STATIC")
	t.Setenv("FACT_TIMEOUT", "750ms")
	t.Setenv("MAX_CONCURRENCY", "not-a-number")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("API_KEYS", `{"ops":"secret"}`)

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, CatalogStatic, cfg.CatalogMode)
	assert.Equal(t, 750*time.Millisecond, cfg.FactTimeout)
	assert.Equal(t, 8, cfg.MaxConcurrency, "invalid values fall back to the default")
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, map[string]string{"ops": "secret"}, cfg.APIKeys)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DEFAULT_TOP_N=3\n"), 0o600))
	chdir(t, dir)
	// godotenv only fills variables that are unset; Setenv restores the original on cleanup
	t.Setenv("DEFAULT_TOP_N", "")
	require.NoError(t, os.Unsetenv("DEFAULT_TOP_N"))

	cfg := Load()

	assert.Equal(t, 3, cfg.DefaultTopN)
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("LIST", " aave, ,uniswap ,")
	assert.Equal(t, []string{"aave", "uniswap"}, GetEnvAsList("LIST"))
	assert.Nil(t, GetEnvAsList("MISSING_LIST_KEY"))
}

func TestLoadEngineConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := LoadEngineConfig("")
		require.NoError(t, err)
		assert.Equal(t, validation.DefaultFilterOptions(), cfg.FilterOptions())
	})

	t.Run("file keeps omitted defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "engine.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"safest_min_tvl": 5000000}`), 0o600))

		cfg, err := LoadEngineConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 5_000_000.0, cfg.SafestMinTVL)
		assert.Equal(t, validation.DefaultFilterOptions().Registry, cfg.Registry)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TRUSTED_PROTOCOLS", "aave,uniswap")
		t.Setenv("SAFEST_MIN_TVL", "1000")

		cfg, err := LoadEngineConfig("")
		require.NoError(t, err)
		assert.Equal(t, []string{"aave", "uniswap"}, cfg.Registry.Trusted)
		assert.Equal(t, 1000.0, cfg.SafestMinTVL)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := LoadEngineConfig(filepath.Join(t.TempDir(), "missing.json"))
		assert.ErrorContains(t, err, "failed to read engine config")

		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
		_, err = LoadEngineConfig(path)
		assert.ErrorContains(t, err, "failed to parse engine config")

		path = filepath.Join(t.TempDir(), "empty.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"registry": {"trusted": []}}`), 0o600))
		_, err = LoadEngineConfig(path)
		assert.ErrorContains(t, err, "trusted protocol list is empty")
	})
}
