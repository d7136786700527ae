package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9000
  token: secret
web:
  port: 9090
viewer:
  tile_timeout: 3s
selected_module:
  VLLLM: gemini
VLLLM:
  gemini:
    type: gemini
    model_name: gemini-2.5-flash
    api_key: ${OBSERVATORY_TEST_KEY}
`

func TestParseConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("OBSERVATORY_TEST_KEY", "abc123")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Web.Port)
	assert.Equal(t, 500, cfg.Catalog.LoadDelayMS)
	assert.Equal(t, 0.8, cfg.Viewer.MinZoomRatio)
	assert.Equal(t, 2.0, cfg.Viewer.MaxZoomPixelRatio)
	assert.Equal(t, 20.0, cfg.Selection.MinSize)
	assert.Equal(t, 90, cfg.Selection.JPEGQuality)
	assert.Equal(t, 3*time.Second, cfg.TileTimeout())
	assert.Equal(t, time.Hour, cfg.TokenTTL())

	name, vcfg, err := cfg.SelectedVLLLM()
	require.NoError(t, err)
	assert.Equal(t, "gemini", name)
	assert.Equal(t, "abc123", vcfg.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingCredentialFailsFast(t *testing.T) {
	t.Setenv("OBSERVATORY_TEST_KEY", "")

	cfg, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "未选择模型", yaml: "server:\n  port: 1\n"},
		{name: "模型配置缺失", yaml: "selected_module:\n  VLLLM: nope\n"},
		{name: "未知类型", yaml: "selected_module:\n  VLLLM: x\nVLLLM:\n  x:\n    type: foo\n"},
		{name: "认证缺少密钥", yaml: "server:\n  auth:\n    enabled: true\nselected_module:\n  VLLLM: x\nVLLLM:\n  x:\n    type: ollama\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("selected_module:\n  VLLLM: local\nVLLLM:\n  local:\n    type: ollama\n"), 0644))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	_, err = LoadConfigFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
