package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/providers/vlllm"
	"deepspace-observatory/src/core/utils"
)

const defaultBaseURL = "http://localhost:11434"

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // 纯base64，不带data URL前缀
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Provider 本地Ollama视觉模型
type Provider struct {
	vlllm.BaseProvider
	httpClient *http.Client
}

// NewProvider 创建Ollama VLLLM提供者实例
func NewProvider(config *vlllm.Config, logger *utils.Logger) (vlllm.Provider, error) {
	return &Provider{BaseProvider: vlllm.NewBaseProvider(config, logger)}, nil
}

// Initialize Ollama不需要API key
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.ModelName == "" {
		return fmt.Errorf("Ollama需要配置model_name")
	}
	p.httpClient = &http.Client{Timeout: config.Timeout}
	return nil
}

// Describe 调用/api/chat，按行读取流式回复并拼接
func (p *Provider) Describe(ctx context.Context, img image.ImageData, prompt string) (string, error) {
	config := p.Config()
	body, err := json.Marshal(chatRequest{
		Model: config.ModelName,
		Messages: []chatMessage{{
			Role:    "user",
			Content: prompt,
			Images:  []string{img.Data},
		}},
		Stream: true,
		Options: map[string]interface{}{
			"temperature": config.Temperature,
			"top_p":       config.TopP,
		},
	})
	if err != nil {
		return "", fmt.Errorf("请求序列化失败: %v", err)
	}

	url := strings.TrimSuffix(config.BaseURL, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Ollama API Error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Ollama API Error: %d %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var sb strings.Builder
	decoder := json.NewDecoder(resp.Body)
	for {
		var chunk chatChunk
		if err := decoder.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("解析Ollama响应失败: %w", err)
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("Ollama API Error: %s", chunk.Error)
		}
		sb.WriteString(chunk.Message.Content)
		if chunk.Done {
			break
		}
	}

	return vlllm.StripThinkTags(sb.String()), nil
}

// init 注册Ollama VLLLM提供者
func init() {
	vlllm.Register("ollama", NewProvider)
}
