package image

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPayload 图片载荷为空
var ErrEmptyPayload = errors.New("image payload is empty")

// ImageData 图片数据结构
type ImageData struct {
	Data   string `json:"data,omitempty"`   // base64编码的图片数据
	Format string `json:"format,omitempty"` // 图片格式：jpeg, png, webp, gif
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid      bool   // 是否有效
	Format       string // 实际格式
	Width        int    // 图片宽度
	Height       int    // 图片高度
	FileSize     int64  // 文件大小
	Error        error  // 错误信息
	SecurityRisk string // 安全风险描述
}

// ImageMetrics 图片处理统计信息
type ImageMetrics struct {
	TotalProcessed    int64 `json:"total_processed"`    // 总处理数量
	DataURLs          int64 `json:"data_urls"`          // data URL 载荷数量
	Uploads           int64 `json:"uploads"`            // 文件上传数量
	FailedValidations int64 `json:"failed_validations"` // 验证失败次数
	SecurityIncidents int64 `json:"security_incidents"` // 安全事件次数
}

// MIMEType 返回图片的MIME类型
func (d ImageData) MIMEType() string {
	return MIMEType(d.Format)
}

// DataURL 编码为 data:<mime>;base64,<data>
func (d ImageData) DataURL() string {
	return "data:" + d.MIMEType() + ";base64," + d.Data
}

// Bytes 解码base64数据
func (d ImageData) Bytes() ([]byte, error) {
	if d.Data == "" {
		return nil, ErrEmptyPayload
	}
	raw, err := base64.StdEncoding.DecodeString(d.Data)
	if err != nil {
		return nil, fmt.Errorf("base64解码失败: %w", err)
	}
	return raw, nil
}

// MIMEType 格式名转MIME类型
func MIMEType(format string) string {
	switch strings.ToLower(format) {
	case "jpg", "jpeg", "":
		return "image/jpeg"
	default:
		return "image/" + strings.ToLower(format)
	}
}

// FormatFromMIME MIME类型转格式名
func FormatFromMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	format := strings.TrimPrefix(mime, "image/")
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

// EncodeDataURL 把原始图片字节编码为data URL
func EncodeDataURL(format string, raw []byte) string {
	return ImageData{Data: base64.StdEncoding.EncodeToString(raw), Format: format}.DataURL()
}

// ParseDataURL 解析 data:image/<fmt>;base64,<data>
func ParseDataURL(dataURL string) (ImageData, error) {
	dataURL = strings.TrimSpace(dataURL)
	if dataURL == "" {
		return ImageData{}, ErrEmptyPayload
	}
	if !strings.HasPrefix(dataURL, "data:") {
		return ImageData{}, fmt.Errorf("不是data URL")
	}
	header, data, ok := strings.Cut(dataURL[len("data:"):], ",")
	if !ok {
		return ImageData{}, fmt.Errorf("data URL缺少数据部分")
	}
	if !strings.HasSuffix(header, ";base64") {
		return ImageData{}, fmt.Errorf("只支持base64编码的data URL")
	}
	mime := strings.TrimSuffix(header, ";base64")
	if !strings.HasPrefix(strings.ToLower(mime), "image/") {
		return ImageData{}, fmt.Errorf("不支持的MIME类型: %s", mime)
	}
	if data == "" {
		return ImageData{}, ErrEmptyPayload
	}
	return ImageData{Data: data, Format: FormatFromMIME(mime)}, nil
}
