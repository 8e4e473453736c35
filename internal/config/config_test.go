package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valuation-cli/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "valuation.db", cfg.Store.SQLitePath)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Perplexity.BaseURL)
	assert.Equal(t, "providers.yaml", cfg.Engine.ProvidersFile)
	assert.Equal(t, 45, cfg.Engine.CallTimeoutSecs)
	assert.Equal(t, 256, cfg.Engine.LedgerQueueSize)
	assert.Equal(t, 4, cfg.Benchmark.LookbackWeeks)
	assert.Equal(t, 5, cfg.Benchmark.MinSamples)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/valuation
log:
  level: debug
  format: console
server:
  port: 9090
engine:
  call_timeout_secs: 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/valuation", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Engine.CallTimeoutSecs)
	// Defaults still apply for unset values
	assert.Equal(t, 256, cfg.Engine.LedgerQueueSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("VALUATION_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("VALUATION_SERVER_PORT", "7070")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.Equal(t, 7070, cfg.Server.Port)
}

const validProvidersYAML = `
providers:
  - id: claude-vision
    name: Claude Vision
    vendor: anthropic
    model: claude-sonnet-4-5
    base_weight: 1.2
    capability: vision
    active: true
  - id: perplexity-search
    name: Perplexity Search
    vendor: perplexity
    model: sonar-pro
    base_weight: 1.0
    capability: search
    specialty: pricing
    active: true
`

func TestLoadProviders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validProvidersYAML), 0644))

	providers, err := LoadProviders(path)
	require.NoError(t, err)
	require.Len(t, providers, 2)

	assert.Equal(t, "claude-vision", providers[0].ID)
	assert.Equal(t, model.CapabilityVision, providers[0].Capability)
	assert.InDelta(t, 1.2, providers[0].BaseWeight, 0.001)
	assert.Equal(t, "pricing", providers[1].Specialty)
}

func TestLoadProvidersValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty roster", `providers: []`},
		{"missing id", `
providers:
  - name: No ID
    vendor: openai
    base_weight: 1.0
    capability: text
`},
		{"duplicate id", `
providers:
  - {id: p1, vendor: openai, base_weight: 1.0, capability: text}
  - {id: p1, vendor: gemini, base_weight: 1.0, capability: text}
`},
		{"zero base weight", `
providers:
  - {id: p1, vendor: openai, base_weight: 0, capability: text}
`},
		{"unknown capability", `
providers:
  - {id: p1, vendor: openai, base_weight: 1.0, capability: telepathy}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "providers.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0644))
			_, err := LoadProviders(path)
			require.Error(t, err)
		})
	}
}

func TestLoadProvidersMissingFile(t *testing.T) {
	_, err := LoadProviders(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	require.Error(t, InitLogger(LogConfig{Level: "shout", Format: "json"}))
}
