package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenConfig Token配置
type TokenConfig struct {
	Token string `yaml:"token"`
}

// LogConfig 日志配置
type LogConfig struct {
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
	LogDir    string `yaml:"log_dir"`
	LogFile   string `yaml:"log_file"`
}

// Config 主配置结构
type Config struct {
	Server struct {
		IP    string `yaml:"ip"`
		Port  int    `yaml:"port"`
		Token string `yaml:"token"` // JWT签名密钥
		Auth  struct {
			Enabled  bool          `yaml:"enabled"`
			TokenTTL string        `yaml:"token_ttl"`
			Tokens   []TokenConfig `yaml:"tokens"`
		} `yaml:"auth"`
	} `yaml:"server"`

	Log LogConfig `yaml:"log"`

	Web struct {
		Enabled   bool   `yaml:"enabled"`
		Port      int    `yaml:"port"`
		StaticDir string `yaml:"static_dir"`
		Websocket string `yaml:"websocket"`
	} `yaml:"web"`

	Catalog   CatalogConfig   `yaml:"catalog"`
	Viewer    ViewerConfig    `yaml:"viewer"`
	Selection SelectionConfig `yaml:"selection"`

	MCP struct {
		Enabled bool   `yaml:"enabled"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"mcp"`

	DefaultPrompt string `yaml:"prompt"`

	SelectedModule map[string]string `yaml:"selected_module"`

	VLLLM map[string]VLLMConfig `yaml:"VLLLM"`
}

// CatalogConfig 目标图像目录配置
type CatalogConfig struct {
	LoadDelayMS int  `yaml:"load_delay_ms"` // 模拟网络延迟（毫秒）
	UseDatabase bool `yaml:"use_database"`  // 是否使用数据库存储目录
}

// ViewerConfig 瓦片查看器配置
type ViewerConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	MinZoomRatio      float64 `yaml:"min_zoom_ratio"`
	MaxZoomPixelRatio float64 `yaml:"max_zoom_pixel_ratio"`
	ZoomPerScroll     float64 `yaml:"zoom_per_scroll"`
	TileCacheSize     int     `yaml:"tile_cache_size"`
	TileTimeout       string  `yaml:"tile_timeout"`
	FetchConcurrency  int     `yaml:"fetch_concurrency"`
	FrameQuality      int     `yaml:"frame_quality"`
}

// SelectionConfig 框选配置
type SelectionConfig struct {
	MinSize     float64 `yaml:"min_size"`     // 宽高都必须大于该像素值
	JPEGQuality int     `yaml:"jpeg_quality"` // 提取区域的JPEG质量
}

// SecurityConfig 图片安全配置结构
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`    // 最大文件大小（字节）
	MaxPixels      int64    `yaml:"max_pixels"`       // 最大像素数量
	MaxWidth       int      `yaml:"max_width"`        // 最大宽度
	MaxHeight      int      `yaml:"max_height"`       // 最大高度
	AllowedFormats []string `yaml:"allowed_formats"`  // 允许的图片格式
	EnableDeepScan bool     `yaml:"enable_deep_scan"` // 启用深度安全扫描
}

// VLLMConfig VLLLM配置结构（视觉语言大模型）
type VLLMConfig struct {
	Type        string                 `yaml:"type"`        // gemini / openai / ollama
	ModelName   string                 `yaml:"model_name"`  // 模型名称，使用支持视觉的模型
	BaseURL     string                 `yaml:"url"`         // API地址
	APIKey      string                 `yaml:"api_key"`     // API密钥
	Temperature float64                `yaml:"temperature"` // 温度参数
	MaxTokens   int                    `yaml:"max_tokens"`  // 最大令牌数
	TopP        float64                `yaml:"top_p"`       // TopP参数
	TopK        int                    `yaml:"top_k"`       // TopK参数（gemini）
	Timeout     string                 `yaml:"timeout"`     // 请求超时
	Security    SecurityConfig         `yaml:"security"`    // 图片安全配置
	Extra       map[string]interface{} `yaml:",inline"`     // 额外配置
}

// LoadConfig 从文件加载配置
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	config, err := LoadConfigFile(path)
	return config, path, err
}

// LoadConfigFile 读取指定路径的配置，支持${ENV}形式的环境变量
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig 解析YAML配置并补齐默认值
func ParseConfig(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "info"
	}
	if c.Log.LogDir == "" {
		c.Log.LogDir = "logs"
	}
	if c.Log.LogFile == "" {
		c.Log.LogFile = "server.log"
	}
	if c.Catalog.LoadDelayMS == 0 {
		c.Catalog.LoadDelayMS = 500
	}
	if c.Viewer.Width == 0 {
		c.Viewer.Width = 1280
	}
	if c.Viewer.Height == 0 {
		c.Viewer.Height = 720
	}
	if c.Viewer.MinZoomRatio == 0 {
		c.Viewer.MinZoomRatio = 0.8
	}
	if c.Viewer.MaxZoomPixelRatio == 0 {
		c.Viewer.MaxZoomPixelRatio = 2
	}
	if c.Viewer.ZoomPerScroll == 0 {
		c.Viewer.ZoomPerScroll = 1.5
	}
	if c.Viewer.TileCacheSize == 0 {
		c.Viewer.TileCacheSize = 512
	}
	if c.Viewer.FetchConcurrency == 0 {
		c.Viewer.FetchConcurrency = 8
	}
	if c.Viewer.FrameQuality == 0 {
		c.Viewer.FrameQuality = 80
	}
	if c.Selection.MinSize == 0 {
		c.Selection.MinSize = 20
	}
	if c.Selection.JPEGQuality == 0 {
		c.Selection.JPEGQuality = 90
	}
}

// TileTimeout 单个瓦片请求超时
func (c *Config) TileTimeout() time.Duration {
	return parseDuration(c.Viewer.TileTimeout, 15*time.Second)
}

// TokenTTL JWT有效期
func (c *Config) TokenTTL() time.Duration {
	return parseDuration(c.Server.Auth.TokenTTL, time.Hour)
}

// SelectedVLLLM 返回当前选中的视觉模型配置
func (c *Config) SelectedVLLLM() (string, VLLMConfig, error) {
	name := c.SelectedModule["VLLLM"]
	if name == "" {
		return "", VLLMConfig{}, fmt.Errorf("selected_module.VLLLM 未配置")
	}
	cfg, ok := c.VLLLM[name]
	if !ok {
		return name, VLLMConfig{}, fmt.Errorf("找不到VLLLM配置: %s", name)
	}
	return name, cfg, nil
}

// Validate 启动时的配置检查，缺少模型凭据直接失败
func (c *Config) Validate() error {
	name, vcfg, err := c.SelectedVLLLM()
	if err != nil {
		return err
	}
	switch strings.ToLower(vcfg.Type) {
	case "gemini", "openai":
		if strings.TrimSpace(vcfg.APIKey) == "" {
			return fmt.Errorf("VLLLM %s (%s) 缺少 api_key，请设置 API_KEY 环境变量", name, vcfg.Type)
		}
	case "ollama":
	default:
		return fmt.Errorf("不支持的VLLLM类型: %s", vcfg.Type)
	}
	if c.Server.Auth.Enabled && c.Server.Token == "" {
		return fmt.Errorf("开启认证时必须配置 server.token")
	}
	return nil
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
