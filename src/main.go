package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"deepspace-observatory/src/configs"
	"deepspace-observatory/src/configs/database"
	cfgserver "deepspace-observatory/src/configs/server"
	"deepspace-observatory/src/core"
	auth "deepspace-observatory/src/core/Auth"
	"deepspace-observatory/src/core/analysis"
	"deepspace-observatory/src/core/catalog"
	"deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/mcp"
	"deepspace-observatory/src/core/metrics"
	"deepspace-observatory/src/core/providers/vlllm"
	"deepspace-observatory/src/core/session"
	"deepspace-observatory/src/core/tiles"
	"deepspace-observatory/src/core/utils"
	"deepspace-observatory/src/core/viewer"
	"deepspace-observatory/src/observatory"

	// 导入所有providers以确保init函数被调用
	_ "deepspace-observatory/src/core/providers/vlllm/gemini"
	_ "deepspace-observatory/src/core/providers/vlllm/ollama"
	_ "deepspace-observatory/src/core/providers/vlllm/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Components 进程内共享的组件
type Components struct {
	Catalog   catalog.Provider
	Fetcher   *tiles.Fetcher
	Factory   viewer.EngineFactory
	Processor *image.PayloadProcessor
	Requester *analysis.Requester
	AuthToken *auth.AuthToken
}

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	// 缺少模型凭据时直接退出
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}

	logger, err := utils.NewLogger(&config.Log)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// BuildComponents 按配置创建目录、瓦片引擎和视觉模型
func BuildComponents(ctx context.Context, config *configs.Config, logger *utils.Logger) (*Components, error) {
	c := &Components{}

	var provider catalog.Provider = catalog.NewStaticProvider(nil, time.Duration(config.Catalog.LoadDelayMS)*time.Millisecond)
	if config.Catalog.UseDatabase {
		db, dbType, err := database.InitDB()
		if err != nil {
			return nil, fmt.Errorf("数据库连接失败: %w", err)
		}
		store := catalog.NewStoreProvider(db, logger)
		if err := store.Seed(ctx, catalog.DefaultTargets()); err != nil {
			return nil, fmt.Errorf("初始化目录数据失败: %w", err)
		}
		logger.Info("目录使用数据库存储", map[string]interface{}{"type": dbType})
		provider = store
	}
	c.Catalog = provider

	c.Fetcher = tiles.NewFetcher(tiles.FetcherConfig{
		Timeout:   config.TileTimeout(),
		CacheSize: config.Viewer.TileCacheSize,
	}, logger)
	c.Factory = viewer.TileEngineFactory(viewer.TileEngineConfig{
		Width:  config.Viewer.Width,
		Height: config.Viewer.Height,
		Limits: viewer.Limits{
			MinZoomRatio:      config.Viewer.MinZoomRatio,
			MaxZoomPixelRatio: config.Viewer.MaxZoomPixelRatio,
		},
		Concurrency: config.Viewer.FetchConcurrency,
	}, c.Fetcher, logger)

	name, vcfg, err := config.SelectedVLLLM()
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("正在初始化VLLLM服务(%s)...", name))
	describer, err := vlllm.Create(&vcfg, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化VLLLM失败: %w", err)
	}
	c.Processor = image.NewPayloadProcessor(&vcfg.Security, logger)
	c.Requester = analysis.NewRequester(describer, c.Processor, config.DefaultPrompt, logger)

	if config.Server.Auth.Enabled {
		c.AuthToken, err = auth.NewAuthToken(config.Server.Token, config.TokenTTL())
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func StartWSServer(config *configs.Config, comps *Components, logger *utils.Logger, g *errgroup.Group, groupCtx context.Context) (*core.WebSocketServer, error) {
	wsServer := core.NewWebSocketServer(config, session.Deps{
		Catalog:       comps.Catalog,
		Analyzer:      comps.Requester,
		EngineFactory: comps.Factory,
		Logger:        logger,
		Config: session.Config{
			MinSelection:   config.Selection.MinSize,
			ExtractQuality: config.Selection.JPEGQuality,
			FrameQuality:   config.Viewer.FrameQuality,
			ZoomPerScroll:  config.Viewer.ZoomPerScroll,
		},
	}, comps.AuthToken, logger)

	g.Go(func() error {
		if err := wsServer.Start(groupCtx); err != nil {
			if groupCtx.Err() != nil {
				return nil // 正常关闭
			}
			logger.Error("WebSocket 服务运行失败", map[string]interface{}{"error": err.Error()})
			return err
		}
		return nil
	})

	logger.Info("WebSocket 服务已成功启动")
	return wsServer, nil
}

func StartHttpServer(config *configs.Config, comps *Components, logger *utils.Logger, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")

	observatoryService := observatory.NewDefaultObservatoryService(
		config, comps.Catalog, comps.Requester, comps.Processor, comps.Fetcher, comps.AuthToken, logger)
	if err := observatoryService.Start(groupCtx, router, apiGroup); err != nil {
		return nil, fmt.Errorf("Observatory 服务启动失败: %w", err)
	}

	cfgService, err := cfgserver.NewDefaultCfgService(config, logger)
	if err != nil {
		return nil, err
	}
	if err := cfgService.Start(groupCtx, router, apiGroup); err != nil {
		return nil, fmt.Errorf("Cfg 服务启动失败: %w", err)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if config.MCP.Enabled {
		tools := mcp.NewToolServer("deepspace-observatory", "1.0.0", logger)
		if err := tools.RegisterObservatoryTools(mcp.RegionTools{
			Catalog:       comps.Catalog,
			EngineFactory: comps.Factory,
			Analyzer:      comps.Requester,
			Quality:       config.Selection.JPEGQuality,
			Timeout:       2 * time.Minute,
			Logger:        logger,
		}); err != nil {
			return nil, fmt.Errorf("注册MCP工具失败: %w", err)
		}
		tools.Mount(router, config.MCP.BaseURL)
	}

	if config.Web.StaticDir != "" {
		if _, err := os.Stat(config.Web.StaticDir); err == nil {
			router.NoRoute(gin.WrapH(http.FileServer(http.Dir(config.Web.StaticDir))))
		}
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://0.0.0.0:%d", config.Web.Port))

		go func() {
			<-groupCtx.Done()
			logger.Info("收到关闭信号，开始关闭HTTP服务...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP服务关闭失败", map[string]interface{}{"error": err.Error()})
			} else {
				logger.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP 服务启动失败", map[string]interface{}{"error": err.Error()})
			return err
		}
		return nil
	})

	return httpServer, nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("服务关闭过程中出现错误", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

func main() {
	// 先加载 .env，配置中的 ${API_KEY} 依赖环境变量
	if err := godotenv.Load(); err != nil {
		fmt.Println("未找到 .env 文件，使用系统环境变量")
	}

	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	comps, err := BuildComponents(ctx, config, logger)
	if err != nil {
		logger.Error("初始化组件失败", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// 用 errgroup 管理两个服务
	g, groupCtx := errgroup.WithContext(ctx)

	if _, err := StartWSServer(config, comps, logger, g, groupCtx); err != nil {
		logger.Error("启动 WebSocket 服务失败", map[string]interface{}{"error": err.Error()})
		cancel()
		os.Exit(1)
	}
	if _, err := StartHttpServer(config, comps, logger, g, groupCtx); err != nil {
		logger.Error("启动 Http 服务失败", map[string]interface{}{"error": err.Error()})
		cancel()
		os.Exit(1)
	}

	GracefulShutdown(cancel, logger, g)

	logger.Info("程序已成功退出")
}
