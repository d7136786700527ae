package observatory

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"deepspace-observatory/src/configs"
	auth "deepspace-observatory/src/core/Auth"
	"deepspace-observatory/src/core/analysis"
	"deepspace-observatory/src/core/catalog"
	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/tiles"
	"deepspace-observatory/src/core/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// 上传图片最大10MB
	MAX_FILE_SIZE = 10 * 1024 * 1024
)

// DefaultObservatoryService 目录、瓦片代理和区域分析的HTTP接口
type DefaultObservatoryService struct {
	logger    *utils.Logger
	config    *configs.Config
	catalog   catalog.Provider
	requester *analysis.Requester
	processor *image.PayloadProcessor
	fetcher   *tiles.Fetcher
	authToken *auth.AuthToken // 为nil时不校验
}

// NewDefaultObservatoryService 构造函数
func NewDefaultObservatoryService(
	config *configs.Config,
	provider catalog.Provider,
	requester *analysis.Requester,
	processor *image.PayloadProcessor,
	fetcher *tiles.Fetcher,
	authToken *auth.AuthToken,
	logger *utils.Logger,
) *DefaultObservatoryService {
	return &DefaultObservatoryService{
		logger:    logger,
		config:    config,
		catalog:   provider,
		requester: requester,
		processor: processor,
		fetcher:   fetcher,
		authToken: authToken,
	}
}

// Start 实现 ObservatoryService 接口
func (s *DefaultObservatoryService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.Use(s.cors)
	// 预检请求由cors中间件处理
	apiGroup.OPTIONS("/*path", func(c *gin.Context) {})

	apiGroup.GET("/catalog", s.handleCatalog)
	apiGroup.GET("/catalog/:id", s.handleTarget)
	apiGroup.GET("/catalog/:id/tiles/:level/:col/:row", s.handleTile)

	apiGroup.GET("/analyze", s.handleAnalyzeStatus)
	apiGroup.POST("/analyze", s.handleAnalyze)
	apiGroup.POST("/token", s.handleToken)

	s.logger.Info("Observatory HTTP服务路由注册完成")
	return nil
}

// cors 添加CORS头，预检请求直接返回
func (s *DefaultObservatoryService) cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, Client-Id")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.Next()
}

func (s *DefaultObservatoryService) respondError(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{Success: false, Message: message})
}

// handleCatalog 目录列表，支持q搜索和sort排序
func (s *DefaultObservatoryService) handleCatalog(c *gin.Context) {
	targets, err := s.catalog.FetchCatalog(c.Request.Context())
	if err != nil {
		s.logger.Error("加载目录失败", map[string]interface{}{"error": err.Error()})
		s.respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	targets = catalog.Gallery(targets, c.Query("q"), catalog.ParseSortOrder(c.DefaultQuery("sort", string(catalog.SortAsc))))
	c.JSON(http.StatusOK, APIResponse{Success: true, Result: targets})
}

func (s *DefaultObservatoryService) findTarget(c *gin.Context) (*catalog.TargetImage, bool) {
	targets, err := s.catalog.FetchCatalog(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusBadGateway, err.Error())
		return nil, false
	}
	t, ok := catalog.Find(targets, c.Param("id"))
	if !ok {
		s.respondError(c, http.StatusNotFound, fmt.Sprintf("目标不存在: %s", c.Param("id")))
		return nil, false
	}
	return &t, true
}

// handleTarget 单个目标
func (s *DefaultObservatoryService) handleTarget(c *gin.Context) {
	t, ok := s.findTarget(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Result: t})
}

// handleTile 瓦片代理，浏览器端不受瓦片服务器CORS限制
func (s *DefaultObservatoryService) handleTile(c *gin.Context) {
	t, ok := s.findTarget(c)
	if !ok {
		return
	}

	level, errL := strconv.Atoi(c.Param("level"))
	col, errC := strconv.Atoi(c.Param("col"))
	row, errR := strconv.Atoi(strings.TrimSuffix(c.Param("row"), ".jpg"))
	if errL != nil || errC != nil || errR != nil {
		s.respondError(c, http.StatusBadRequest, "无效的瓦片坐标")
		return
	}

	pyramid, err := s.fetcher.Resolve(c.Request.Context(), t.TileSource)
	if err != nil {
		s.logger.Warn("解析瓦片源失败", map[string]interface{}{"target": t.ID, "error": err.Error()})
		s.respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	if level < pyramid.MinLevel || level > pyramid.MaxLevel {
		s.respondError(c, http.StatusNotFound, fmt.Sprintf("层级超出范围: %d", level))
		return
	}
	cols, rows := pyramid.NumTiles(level)
	if col < 0 || row < 0 || col >= cols || row >= rows {
		s.respondError(c, http.StatusNotFound, fmt.Sprintf("瓦片超出范围: %d/%d_%d", level, col, row))
		return
	}

	data, err := s.fetcher.Raw(c.Request.Context(), pyramid.TileURL(level, col, row))
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, tiles.ErrTileNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(c, status, err.Error())
		return
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// handleAnalyzeStatus 状态检查
func (s *DefaultObservatoryService) handleAnalyzeStatus(c *gin.Context) {
	name, vcfg, err := s.config.SelectedVLLLM()
	if err != nil {
		c.String(http.StatusServiceUnavailable, "区域分析接口不可用: %v", err)
		return
	}
	c.String(http.StatusOK, "区域分析接口运行正常，当前模型: %s (%s)", name, vcfg.ModelName)
}

// handleAnalyze 接受JSON的data URL或multipart的file字段
func (s *DefaultObservatoryService) handleAnalyze(c *gin.Context) {
	if err := s.verifyAuth(c); err != nil {
		s.logger.Warn("分析接口认证失败", map[string]interface{}{"error": err.Error()})
		s.respondError(c, http.StatusUnauthorized, err.Error())
		return
	}

	var (
		data image.ImageData
		err  error
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		raw, readErr := s.readUpload(c)
		if readErr != nil {
			s.respondError(c, http.StatusBadRequest, readErr.Error())
			return
		}
		data, err = s.processor.ProcessUpload(raw)
	} else {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, http.StatusBadRequest, "解析请求失败: "+err.Error())
			return
		}
		data, err = s.processor.ProcessDataURL(req.Image)
	}
	if err != nil {
		s.respondError(c, http.StatusBadRequest, analysis.ErrorPrefix+err.Error())
		return
	}

	text, err := s.requester.AnalyzeImage(c.Request.Context(), data)
	if err != nil {
		s.respondError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Result: text})
}

func (s *DefaultObservatoryService) readUpload(c *gin.Context) ([]byte, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("缺少图片文件: %v", err)
	}
	defer file.Close()

	if header.Size > MAX_FILE_SIZE {
		return nil, fmt.Errorf("图片大小超过限制，最大允许%dMB", MAX_FILE_SIZE/1024/1024)
	}
	data, err := io.ReadAll(io.LimitReader(file, MAX_FILE_SIZE+1))
	if err != nil {
		return nil, fmt.Errorf("读取图片数据失败: %v", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("图片数据为空")
	}
	return data, nil
}

// verifyAuth 开启认证时要求Bearer令牌
func (s *DefaultObservatoryService) verifyAuth(c *gin.Context) error {
	if s.authToken == nil {
		return nil
	}
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return fmt.Errorf("缺少或无效的Authorization头")
	}
	ok, _, err := s.authToken.VerifyToken(authHeader[7:])
	if err != nil || !ok {
		return fmt.Errorf("无效的认证token或token已过期")
	}
	return nil
}

// handleToken 用预共享令牌换取会话令牌
func (s *DefaultObservatoryService) handleToken(c *gin.Context) {
	if s.authToken == nil {
		s.respondError(c, http.StatusNotFound, "认证未开启")
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "解析请求失败: "+err.Error())
		return
	}
	if !s.knownToken(req.Token) {
		s.respondError(c, http.StatusUnauthorized, "预共享令牌无效")
		return
	}
	if req.ClientID == "" {
		req.ClientID = uuid.New().String()
	}
	token, exp, err := s.authToken.GenerateToken(req.ClientID)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("签发会话令牌", map[string]interface{}{"client_id": req.ClientID})
	c.JSON(http.StatusOK, APIResponse{Success: true, Result: TokenResponse{
		Token:     token,
		ClientID:  req.ClientID,
		ExpiresAt: exp.Unix(),
	}})
}

func (s *DefaultObservatoryService) knownToken(token string) bool {
	if token == "" {
		return false
	}
	for _, t := range s.config.Server.Auth.Tokens {
		if subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1 {
			return true
		}
	}
	return false
}
