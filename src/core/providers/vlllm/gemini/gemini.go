package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/providers/vlllm"
	"deepspace-observatory/src/core/utils"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-2.5-flash"
)

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Provider Google Gemini generateContent 接口
type Provider struct {
	vlllm.BaseProvider
	httpClient *http.Client
}

// NewProvider 创建Gemini提供者
func NewProvider(config *vlllm.Config, logger *utils.Logger) (vlllm.Provider, error) {
	return &Provider{BaseProvider: vlllm.NewBaseProvider(config, logger)}, nil
}

// Initialize 检查API key并补齐默认值
func (p *Provider) Initialize() error {
	config := p.Config()
	if strings.TrimSpace(config.APIKey) == "" {
		return fmt.Errorf("API_KEY environment variable is not set")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.ModelName == "" {
		config.ModelName = defaultModel
	}
	p.httpClient = &http.Client{Timeout: config.Timeout}
	return nil
}

// Describe 图片在前、提示词在后组成一条用户消息
func (p *Provider) Describe(ctx context.Context, img image.ImageData, prompt string) (string, error) {
	config := p.Config()
	payload, err := json.Marshal(generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: img.MIMEType(), Data: img.Data}},
				{Text: prompt},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     config.Temperature,
			TopP:            config.TopP,
			TopK:            config.TopK,
			MaxOutputTokens: config.MaxTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("请求序列化失败: %v", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		strings.TrimSuffix(config.BaseURL, "/"), url.PathEscape(config.ModelName), url.QueryEscape(config.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// 去掉URL中的key再返回
		return "", fmt.Errorf("Gemini API Error: %s", redact(err.Error(), config.APIKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("Gemini API Error: %v", err)
	}
	var parsed generateResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("Gemini API Error: %s", parsed.Error.Message)
		}
		return "", fmt.Errorf("Gemini API Error: http %d", resp.StatusCode)
	}
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("Gemini API Error: prompt blocked (%s)", parsed.PromptFeedback.BlockReason)
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("Gemini API Error: no candidates")
	}

	var sb strings.Builder
	for _, pt := range parsed.Candidates[0].Content.Parts {
		if strings.TrimSpace(pt.Text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.TrimSpace(pt.Text))
	}
	p.Logger().Debug("Gemini回复完成", map[string]interface{}{
		"model":         config.ModelName,
		"finish_reason": parsed.Candidates[0].FinishReason,
		"length":        sb.Len(),
	})
	return sb.String(), nil
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(secret), "***")
	return strings.ReplaceAll(s, secret, "***")
}

func init() {
	vlllm.Register("gemini", NewProvider)
}
