package vlllm

import (
	"context"
	"errors"
	"testing"
	"time"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	BaseProvider
	initErr error
}

func (s *stubProvider) Initialize() error { return s.initErr }

func (s *stubProvider) Describe(ctx context.Context, img image.ImageData, prompt string) (string, error) {
	return "ok", nil
}

func TestStripThinkTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"无标签", "  Spiral Galaxy ", "Spiral Galaxy"},
		{"单段", "<think>reasoning</think>Nebula", "Nebula"},
		{"多段", "a<think>x</think>b<think>y</think>c", "abc"},
		{"未闭合", "Star<think>cut off", "Star"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThinkTags(tt.in))
		})
	}
}

func TestCreate(t *testing.T) {
	logger := utils.NewWriterLogger(nil, "info")
	var got *Config
	Register("Stub", func(config *Config, logger *utils.Logger) (Provider, error) {
		got = config
		return &stubProvider{BaseProvider: NewBaseProvider(config, logger)}, nil
	})
	Register("stub-broken", func(config *Config, logger *utils.Logger) (Provider, error) {
		return &stubProvider{initErr: errors.New("no key")}, nil
	})

	p, err := Create(&configs.VLLMConfig{Type: "stub", ModelName: "m", TopK: 40, Timeout: "5s"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "m", p.Config().ModelName)
	assert.Equal(t, 40, got.TopK)
	assert.Equal(t, 5*time.Second, got.Timeout)
	assert.Contains(t, GetRegisteredProviders(), "stub")

	_, err = Create(&configs.VLLMConfig{Type: "stub", Timeout: "bogus"}, logger)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, got.Timeout)

	_, err = Create(&configs.VLLMConfig{Type: "stub-broken"}, logger)
	assert.ErrorContains(t, err, "no key")

	_, err = Create(&configs.VLLMConfig{Type: "nope"}, logger)
	assert.ErrorContains(t, err, "未知的VLLLM提供者")
}
