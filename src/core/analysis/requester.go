package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/metrics"
	"deepspace-observatory/src/core/utils"
)

// ErrorPrefix 面向用户的错误前缀
const ErrorPrefix = "Failed to analyze region: "

// Describer 视觉模型接口，vlllm.Provider 满足该接口
type Describer interface {
	Describe(ctx context.Context, img image.ImageData, prompt string) (string, error)
}

// Requester 把提取的区域发送给视觉模型
type Requester struct {
	describer Describer
	processor *image.PayloadProcessor
	prompt    string
	logger    *utils.Logger
}

// NewRequester 创建分析请求器，prompt为空时使用默认提示词
func NewRequester(describer Describer, processor *image.PayloadProcessor, prompt string, logger *utils.Logger) *Requester {
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultPrompt
	}
	return &Requester{
		describer: describer,
		processor: processor,
		prompt:    prompt,
		logger:    logger,
	}
}

// Prompt 当前使用的提示词
func (r *Requester) Prompt() string {
	return r.prompt
}

// Analyze 分析data URL载荷，失败时返回带用户可读前缀的错误，不重试
func (r *Requester) Analyze(ctx context.Context, payload string) (string, error) {
	if strings.TrimSpace(payload) == "" {
		metrics.AnalysisTotal.WithLabelValues("rejected").Inc()
		return "", wrap(image.ErrEmptyPayload)
	}
	data, err := r.processor.ProcessDataURL(payload)
	if err != nil {
		metrics.AnalysisTotal.WithLabelValues("rejected").Inc()
		return "", wrap(err)
	}
	return r.AnalyzeImage(ctx, data)
}

// AnalyzeImage 分析已校验的图片
func (r *Requester) AnalyzeImage(ctx context.Context, data image.ImageData) (string, error) {
	start := time.Now()
	text, err := r.describer.Describe(ctx, data, r.prompt)
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AnalysisTotal.WithLabelValues("error").Inc()
		r.logger.Error("区域分析失败", map[string]interface{}{
			"error":    err.Error(),
			"duration": time.Since(start).String(),
		})
		return "", wrap(err)
	}

	metrics.AnalysisTotal.WithLabelValues("success").Inc()
	r.logger.Info("区域分析完成", map[string]interface{}{
		"format":   data.Format,
		"length":   len(text),
		"duration": time.Since(start).String(),
	})
	return text, nil
}

func wrap(err error) error {
	return fmt.Errorf("%s%w", ErrorPrefix, err)
}
