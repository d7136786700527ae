package vlllm

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/core/utils"
)

// Factory VLLLM工厂函数类型
type Factory func(config *Config, logger *utils.Logger) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register 注册VLLLM提供者工厂，由子包在init中调用
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(name)] = factory
}

// Create 按配置中的type创建并初始化提供者
func Create(vlllmConfig *configs.VLLMConfig, logger *utils.Logger) (Provider, error) {
	mu.RLock()
	factory, ok := factories[strings.ToLower(vlllmConfig.Type)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知的VLLLM提供者: %s", vlllmConfig.Type)
	}

	timeout := 60 * time.Second
	if vlllmConfig.Timeout != "" {
		if d, err := time.ParseDuration(vlllmConfig.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	config := &Config{
		Type:        vlllmConfig.Type,
		ModelName:   vlllmConfig.ModelName,
		BaseURL:     vlllmConfig.BaseURL,
		APIKey:      vlllmConfig.APIKey,
		Temperature: vlllmConfig.Temperature,
		MaxTokens:   vlllmConfig.MaxTokens,
		TopP:        vlllmConfig.TopP,
		TopK:        vlllmConfig.TopK,
		Timeout:     timeout,
		Data:        vlllmConfig.Extra,
	}

	provider, err := factory(config, logger)
	if err != nil {
		return nil, fmt.Errorf("创建VLLLM提供者失败: %v", err)
	}
	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化VLLLM提供者失败: %v", err)
	}

	logger.Debug("VLLLM提供者创建成功", map[string]interface{}{
		"type":       config.Type,
		"model_name": config.ModelName,
	})
	return provider, nil
}

// GetRegisteredProviders 获取已注册的提供者列表
func GetRegisteredProviders() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
