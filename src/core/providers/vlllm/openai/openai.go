package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/providers/vlllm"
	"deepspace-observatory/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Provider OpenAI兼容接口的视觉模型
type Provider struct {
	vlllm.BaseProvider
	client *openai.Client
}

// NewProvider 创建OpenAI VLLLM提供者实例
func NewProvider(config *vlllm.Config, logger *utils.Logger) (vlllm.Provider, error) {
	return &Provider{BaseProvider: vlllm.NewBaseProvider(config, logger)}, nil
}

// Initialize 初始化客户端
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Describe 发送图片和提示词，返回完整回复
func (p *Provider) Describe(ctx context.Context, img image.ImageData, prompt string) (string, error) {
	config := p.Config()
	req := openai.ChatCompletionRequest{
		Model: config.ModelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL()},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt,
					},
				},
			},
		},
		MaxTokens:   config.MaxTokens,
		Temperature: float32(config.Temperature),
		TopP:        float32(config.TopP),
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("OpenAI API Error: %s", apiErr.Message)
		}
		return "", fmt.Errorf("OpenAI API Error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API Error: empty choices")
	}

	text := vlllm.StripThinkTags(resp.Choices[0].Message.Content)
	p.Logger().Debug("OpenAI Vision回复完成", map[string]interface{}{
		"model":  config.ModelName,
		"length": len(text),
	})
	return text, nil
}

// init 注册OpenAI VLLLM提供者
func init() {
	vlllm.Register("openai", NewProvider)
}
