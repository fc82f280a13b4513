package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 30, cfg.Analysis.MinClients)
	assert.InDelta(t, 0.005, cfg.Analysis.MinCoverage, 1e-12)
	assert.Equal(t, 100, cfg.Raking.MaxIterations)
	assert.InDelta(t, 1e-6, cfg.Raking.Tolerance, 1e-18)
	assert.False(t, cfg.Raking.Renormalize)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panelrep.yaml")
	content := `
server:
  port: 9090
analysis:
  min_clients: 50
raking:
  renormalize: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Analysis.MinClients)
	assert.True(t, cfg.Raking.Renormalize)
	// Untouched keys keep defaults.
	assert.InDelta(t, 0.005, cfg.Analysis.MinCoverage, 1e-12)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PANELREP_ANALYSIS_MIN_CLIENTS", "75")
	t.Setenv("PANELREP_REFERENCE_API_KEY", "secret")

	cfg, err := LoadFrom("")
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Analysis.MinClients)
	assert.Equal(t, "secret", cfg.Reference.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"bad port", "PANELREP_SERVER_PORT", "70000"},
		{"bad log level", "PANELREP_LOGGING_LEVEL", "loud"},
		{"zero min clients", "PANELREP_ANALYSIS_MIN_CLIENTS", "0"},
		{"coverage above one", "PANELREP_ANALYSIS_MIN_COVERAGE", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			_, err := LoadFrom("")
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsInvertedYears(t *testing.T) {
	t.Setenv("PANELREP_REFERENCE_START_YEAR", "2025")
	t.Setenv("PANELREP_REFERENCE_END_YEAR", "2020")
	_, err := LoadFrom("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end_year")
}
