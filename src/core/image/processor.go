package image

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sync/atomic"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/core/utils"
)

// PayloadProcessor 把客户端提交的图片（data URL或上传文件）转为经过校验的ImageData
type PayloadProcessor struct {
	validator *ImageSecurityValidator
	logger    *utils.Logger
	metrics   ImageMetrics
}

// NewPayloadProcessor 创建载荷处理器
func NewPayloadProcessor(security *configs.SecurityConfig, logger *utils.Logger) *PayloadProcessor {
	return &PayloadProcessor{
		validator: NewImageSecurityValidator(security, logger),
		logger:    logger,
	}
}

// ProcessDataURL 解析并校验data URL
func (p *PayloadProcessor) ProcessDataURL(dataURL string) (ImageData, error) {
	atomic.AddInt64(&p.metrics.TotalProcessed, 1)
	atomic.AddInt64(&p.metrics.DataURLs, 1)

	data, err := ParseDataURL(dataURL)
	if err != nil {
		atomic.AddInt64(&p.metrics.FailedValidations, 1)
		return ImageData{}, err
	}
	return p.check(data)
}

// ProcessUpload 校验上传的原始图片字节，格式由内容探测
func (p *PayloadProcessor) ProcessUpload(raw []byte) (ImageData, error) {
	atomic.AddInt64(&p.metrics.TotalProcessed, 1)
	atomic.AddInt64(&p.metrics.Uploads, 1)

	if len(raw) == 0 {
		atomic.AddInt64(&p.metrics.FailedValidations, 1)
		return ImageData{}, ErrEmptyPayload
	}
	format := FormatFromMIME(http.DetectContentType(raw))
	return p.check(ImageData{Data: base64.StdEncoding.EncodeToString(raw), Format: format})
}

func (p *PayloadProcessor) check(data ImageData) (ImageData, error) {
	result := p.validator.ValidateImageData(data)
	if !result.IsValid {
		atomic.AddInt64(&p.metrics.FailedValidations, 1)
		if result.SecurityRisk != "" {
			atomic.AddInt64(&p.metrics.SecurityIncidents, 1)
			p.logger.Warn("图片载荷被拒绝", map[string]interface{}{
				"error":         result.Error.Error(),
				"security_risk": result.SecurityRisk,
				"format":        data.Format,
			})
		}
		return ImageData{}, fmt.Errorf("图片验证失败: %w", result.Error)
	}

	p.logger.Debug("图片载荷校验通过", map[string]interface{}{
		"format": result.Format,
		"width":  result.Width,
		"height": result.Height,
		"size":   result.FileSize,
	})
	data.Format = result.Format
	return data, nil
}

// GetMetrics 获取处理统计信息
func (p *PayloadProcessor) GetMetrics() ImageMetrics {
	return ImageMetrics{
		TotalProcessed:    atomic.LoadInt64(&p.metrics.TotalProcessed),
		DataURLs:          atomic.LoadInt64(&p.metrics.DataURLs),
		Uploads:           atomic.LoadInt64(&p.metrics.Uploads),
		FailedValidations: atomic.LoadInt64(&p.metrics.FailedValidations),
		SecurityIncidents: atomic.LoadInt64(&p.metrics.SecurityIncidents),
	}
}
