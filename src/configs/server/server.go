package server

import (
	"context"
	"net/http"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/core/utils"

	"github.com/gin-gonic/gin"
)

// ClientConfig 前端需要的公开配置，不含任何密钥
type ClientConfig struct {
	Websocket     string  `json:"websocket"`
	AuthEnabled   bool    `json:"auth_enabled"`
	MinSelection  float64 `json:"min_selection"`
	ZoomPerScroll float64 `json:"zoom_per_scroll"`
	ViewerWidth   int     `json:"viewer_width"`
	ViewerHeight  int     `json:"viewer_height"`
	Model         string  `json:"model,omitempty"`
}

type DefaultCfgService struct {
	logger *utils.Logger
	config *configs.Config
}

// NewDefaultCfgService 构造函数
func NewDefaultCfgService(config *configs.Config, logger *utils.Logger) (*DefaultCfgService, error) {
	service := &DefaultCfgService{
		logger: logger,
		config: config,
	}

	return service, nil
}

// Start 实现 CfgService 接口，注册所有 Cfg 相关路由
func (s *DefaultCfgService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/cfg", s.handleGet)

	s.logger.Info("Cfg HTTP服务路由注册完成")
	return nil
}

// Public 从完整配置中挑出可以公开的部分
func Public(c *configs.Config) ClientConfig {
	out := ClientConfig{
		Websocket:     c.Web.Websocket,
		AuthEnabled:   c.Server.Auth.Enabled,
		MinSelection:  c.Selection.MinSize,
		ZoomPerScroll: c.Viewer.ZoomPerScroll,
		ViewerWidth:   c.Viewer.Width,
		ViewerHeight:  c.Viewer.Height,
	}
	if _, vcfg, err := c.SelectedVLLLM(); err == nil {
		out.Model = vcfg.ModelName
	}
	return out
}

func (s *DefaultCfgService) handleGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"result":  Public(s.config),
	})
}
