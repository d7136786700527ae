package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// DefaultSecurity 未配置安全参数时使用的限制
var DefaultSecurity = configs.SecurityConfig{
	MaxFileSize:    10 * 1024 * 1024,
	MaxPixels:      16 * 1024 * 1024,
	MaxWidth:       4096,
	MaxHeight:      4096,
	AllowedFormats: []string{"jpeg", "jpg", "png", "webp"},
	EnableDeepScan: true,
}

type signature struct {
	name  string
	magic []byte
}

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，后面还要检查WEBP标识
}

// 文件开头出现即拒绝
var executableSignatures = []signature{
	{"PE", []byte{0x4D, 0x5A}},
	{"ELF", []byte{0x7F, 0x45, 0x4C, 0x46}},
	{"Mach-O", []byte{0xCA, 0xFE, 0xBA, 0xBE}},
	{"ZIP", []byte{0x50, 0x4B, 0x03, 0x04}},
	{"GZIP", []byte{0x1F, 0x8B, 0x08}},
}

var svgScriptMarkers = []string{
	"<script", "javascript:", "vbscript:", "onload=", "onerror=",
	"eval(", "document.cookie", "<iframe", "<object", "<embed",
}

// ImageSecurityValidator 图片安全验证器
type ImageSecurityValidator struct {
	config configs.SecurityConfig
	logger *utils.Logger
}

// NewImageSecurityValidator 创建验证器，未设置的限制使用默认值
func NewImageSecurityValidator(config *configs.SecurityConfig, logger *utils.Logger) *ImageSecurityValidator {
	c := DefaultSecurity
	if config != nil {
		if config.MaxFileSize > 0 {
			c.MaxFileSize = config.MaxFileSize
		}
		if config.MaxPixels > 0 {
			c.MaxPixels = config.MaxPixels
		}
		if config.MaxWidth > 0 {
			c.MaxWidth = config.MaxWidth
		}
		if config.MaxHeight > 0 {
			c.MaxHeight = config.MaxHeight
		}
		if len(config.AllowedFormats) > 0 {
			c.AllowedFormats = config.AllowedFormats
		}
		c.EnableDeepScan = config.EnableDeepScan
	}
	return &ImageSecurityValidator{config: c, logger: logger}
}

// ValidateImageData 验证base64图片数据
func (v *ImageSecurityValidator) ValidateImageData(imageData ImageData) ValidationResult {
	raw, err := imageData.Bytes()
	if err != nil {
		return ValidationResult{Error: err, SecurityRisk: "无效的base64数据"}
	}
	return v.Validate(raw, imageData.Format)
}

// Validate 验证原始图片字节
func (v *ImageSecurityValidator) Validate(data []byte, declaredFormat string) ValidationResult {
	if len(data) == 0 {
		return ValidationResult{Error: ErrEmptyPayload}
	}
	if int64(len(data)) > v.config.MaxFileSize {
		v.logger.Warn("检测到超大文件", map[string]interface{}{
			"size":     len(data),
			"max_size": v.config.MaxFileSize,
		})
		return ValidationResult{
			Error:        fmt.Errorf("文件大小超限: %d bytes，最大允许: %d bytes", len(data), v.config.MaxFileSize),
			SecurityRisk: "文件过大",
		}
	}
	if declaredFormat != "" && !v.isFormatAllowed(declaredFormat) {
		return ValidationResult{
			Error:        fmt.Errorf("不支持的格式: %s", declaredFormat),
			SecurityRisk: "使用了不被允许的格式",
		}
	}
	if v.config.EnableDeepScan {
		if risk := v.scan(data); risk != "" {
			v.logger.Warn("检测到可疑内容", map[string]interface{}{
				"risk": risk,
				"size": len(data),
			})
			return ValidationResult{Error: fmt.Errorf("检测到潜在恶意内容"), SecurityRisk: risk}
		}
	}

	result := v.decodeConfig(data, declaredFormat)
	if !result.IsValid && declaredFormat != "" && !matchesSignature(data, declaredFormat) {
		v.logger.Debug("文件头与声明格式不符", map[string]interface{}{
			"declared_format": declaredFormat,
			"header":          fmt.Sprintf("%x", data[:min(len(data), 16)]),
		})
	}
	return result
}

func (v *ImageSecurityValidator) isFormatAllowed(format string) bool {
	for _, allowed := range v.config.AllowedFormats {
		if strings.EqualFold(allowed, format) {
			return true
		}
	}
	return false
}

// scan 返回风险描述，空字符串表示未发现问题
func (v *ImageSecurityValidator) scan(data []byte) string {
	for _, sig := range executableSignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return "文件开头检测到" + sig.name + "签名"
		}
	}
	lower := strings.ToLower(string(data[:min(len(data), 64*1024)]))
	if strings.Contains(lower, "<svg") {
		for _, marker := range svgScriptMarkers {
			if strings.Contains(lower, marker) {
				return "SVG中包含可疑脚本: " + marker
			}
		}
	}
	return ""
}

func (v *ImageSecurityValidator) decodeConfig(data []byte, format string) ValidationResult {
	result := ValidationResult{Format: format}
	cfg, actual, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("图片解码失败: %w", err)
		result.SecurityRisk = "损坏或伪装的图片数据"
		return result
	}
	if actual != "" {
		result.Format = actual
	}
	if !v.isFormatAllowed(result.Format) {
		result.Error = fmt.Errorf("不支持的格式: %s", result.Format)
		return result
	}
	if cfg.Width > v.config.MaxWidth || cfg.Height > v.config.MaxHeight {
		result.Error = fmt.Errorf("图片尺寸超限: %dx%d，最大允许: %dx%d",
			cfg.Width, cfg.Height, v.config.MaxWidth, v.config.MaxHeight)
		return result
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("像素总数超限: %d，最大允许: %d", pixels, v.config.MaxPixels)
		return result
	}
	result.IsValid = true
	result.Width = cfg.Width
	result.Height = cfg.Height
	result.FileSize = int64(len(data))
	return result
}

func matchesSignature(data []byte, format string) bool {
	magic, ok := imageSignatures[strings.ToLower(format)]
	if !ok || !bytes.HasPrefix(data, magic) {
		return false
	}
	if strings.EqualFold(format, "webp") {
		return len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP"))
	}
	return true
}
