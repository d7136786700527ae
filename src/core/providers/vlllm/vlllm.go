package vlllm

import (
	"context"
	"strings"
	"time"

	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/utils"
)

// Config VLLLM配置结构
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	TopK        int
	Timeout     time.Duration
	Data        map[string]interface{}
}

// Provider 视觉语言模型，根据一张图片和提示词返回文本描述
type Provider interface {
	Initialize() error
	Cleanup() error
	Describe(ctx context.Context, img image.ImageData, prompt string) (string, error)
	Config() *Config
}

// BaseProvider 各实现共用的配置和日志
type BaseProvider struct {
	config *Config
	logger *utils.Logger
}

// NewBaseProvider 创建基础提供者
func NewBaseProvider(config *Config, logger *utils.Logger) BaseProvider {
	return BaseProvider{config: config, logger: logger}
}

// Config 获取配置信息
func (p *BaseProvider) Config() *Config {
	return p.config
}

// Logger 日志
func (p *BaseProvider) Logger() *utils.Logger {
	return p.logger
}

// Cleanup 默认无需清理
func (p *BaseProvider) Cleanup() error {
	return nil
}

// StripThinkTags 去掉推理模型输出的<think>...</think>段落
func StripThinkTags(text string) string {
	for {
		start := strings.Index(text, "<think>")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], "</think>")
		if end < 0 {
			text = text[:start]
			break
		}
		text = text[:start] + text[start+end+len("</think>"):]
	}
	return strings.TrimSpace(text)
}
