package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"
	"time"

	"deepspace-observatory/src/core/metrics"
	"deepspace-observatory/src/core/tiles"
	"deepspace-observatory/src/core/utils"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSurfaceUnavailable 当前没有可采样的渲染结果
	ErrSurfaceUnavailable = errors.New("rendered surface is not available")
	// ErrEngineDestroyed 引擎已销毁
	ErrEngineDestroyed = errors.New("viewer engine destroyed")
)

// Engine 可缩放图像引擎，负责金字塔加载、视口和渲染
type Engine interface {
	// Open 加载瓦片源并完成首帧渲染
	Open(ctx context.Context, src tiles.TileSource) error
	// Viewport 当前视口，Open成功前为nil
	Viewport() *Viewport
	// Render 按当前视口重新合成画面
	Render(ctx context.Context) (*image.RGBA, error)
	// Surface 最近一次渲染的像素表面
	Surface() (image.Image, error)
	// Destroy 释放资源，之后不可再使用
	Destroy()
}

// EngineFactory 每次切换瓦片源时创建新引擎
type EngineFactory func() Engine

// TileEngineConfig 瓦片引擎配置
type TileEngineConfig struct {
	Width       int
	Height      int
	Limits      Limits
	Concurrency int
}

// TileEngine 基于瓦片金字塔的CPU渲染引擎
type TileEngine struct {
	config  TileEngineConfig
	fetcher *tiles.Fetcher
	logger  *utils.Logger

	mu        sync.Mutex
	pyramid   *tiles.Pyramid
	viewport  *Viewport
	frame     *image.RGBA
	level     int
	destroyed bool
}

// NewTileEngine 创建瓦片引擎
func NewTileEngine(config TileEngineConfig, fetcher *tiles.Fetcher, logger *utils.Logger) *TileEngine {
	if config.Width <= 0 {
		config.Width = 1280
	}
	if config.Height <= 0 {
		config.Height = 720
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	return &TileEngine{config: config, fetcher: fetcher, logger: logger}
}

// TileEngineFactory 返回共享同一个下载器的引擎工厂
func TileEngineFactory(config TileEngineConfig, fetcher *tiles.Fetcher, logger *utils.Logger) EngineFactory {
	return func() Engine {
		return NewTileEngine(config, fetcher, logger)
	}
}

// Open 实现 Engine 接口
func (e *TileEngine) Open(ctx context.Context, src tiles.TileSource) error {
	pyramid, err := e.fetcher.Resolve(ctx, src)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return ErrEngineDestroyed
	}
	e.pyramid = pyramid
	e.viewport = NewViewport(e.config.Width, e.config.Height, pyramid.Width, pyramid.Height, e.config.Limits)
	e.mu.Unlock()

	_, err = e.Render(ctx)
	return err
}

// Viewport 实现 Engine 接口
func (e *TileEngine) Viewport() *Viewport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewport
}

// Level 最近一帧使用的金字塔层级
func (e *TileEngine) Level() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

type tileJob struct {
	coord  tiles.TileCoord
	bounds image.Rectangle
	img    image.Image
	err    error
}

// Render 实现 Engine 接口
func (e *TileEngine) Render(ctx context.Context) (*image.RGBA, error) {
	start := time.Now()
	defer func() {
		metrics.RenderDuration.Observe(time.Since(start).Seconds())
	}()

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil, ErrEngineDestroyed
	}
	if e.pyramid == nil || e.viewport == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("引擎尚未打开瓦片源")
	}
	pyramid := e.pyramid
	bounds := e.viewport.Bounds()
	screenScale := e.viewport.RenderedImageWidth()
	cw, ch := e.viewport.ContainerSize()
	e.mu.Unlock()

	level := pyramid.BestLevel(screenScale)
	levelW, _ := pyramid.LevelSize(level)
	levelScale := float64(levelW) // 每个视口单位对应的层像素

	visible := image.Rect(
		int(math.Floor(bounds.X*levelScale)),
		int(math.Floor(bounds.Y*levelScale)),
		int(math.Ceil((bounds.X+bounds.Width)*levelScale)),
		int(math.Ceil((bounds.Y+bounds.Height)*levelScale)),
	)
	coords := pyramid.TilesInRect(level, visible)

	jobs := make([]tileJob, len(coords))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)
	for i, c := range coords {
		i, c := i, c
		jobs[i] = tileJob{coord: c, bounds: pyramid.TileBounds(c.Level, c.Col, c.Row)}
		g.Go(func() error {
			img, err := e.fetcher.Tile(gctx, pyramid.TileURL(c.Level, c.Col, c.Row))
			jobs[i].img, jobs[i].err = img, err
			// 单个瓦片失败不影响其余瓦片
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := image.NewRGBA(image.Rect(0, 0, cw, ch))
	draw.Draw(frame, frame.Bounds(), image.Black, image.Point{}, draw.Src)

	failed := 0
	for _, job := range jobs {
		if job.err != nil {
			failed++
			continue
		}
		dst := image.Rect(
			int(math.Floor((float64(job.bounds.Min.X)/levelScale-bounds.X)*screenScale)),
			int(math.Floor((float64(job.bounds.Min.Y)/levelScale-bounds.Y)*screenScale)),
			int(math.Ceil((float64(job.bounds.Max.X)/levelScale-bounds.X)*screenScale)),
			int(math.Ceil((float64(job.bounds.Max.Y)/levelScale-bounds.Y)*screenScale)),
		)
		xdraw.ApproxBiLinear.Scale(frame, dst, job.img, job.img.Bounds(), xdraw.Over, nil)
	}
	if len(jobs) > 0 && failed == len(jobs) {
		return nil, fmt.Errorf("可见区域的%d个瓦片全部加载失败: %w", failed, jobs[0].err)
	}
	if failed > 0 {
		e.logger.Warn("部分瓦片加载失败", map[string]interface{}{
			"level":  level,
			"failed": failed,
			"total":  len(jobs),
		})
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil, ErrEngineDestroyed
	}
	e.frame = frame
	e.level = level
	return frame, nil
}

// Surface 实现 Engine 接口
func (e *TileEngine) Surface() (image.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || e.frame == nil {
		return nil, ErrSurfaceUnavailable
	}
	return e.frame, nil
}

// Destroy 实现 Engine 接口
func (e *TileEngine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
	e.frame = nil
	e.pyramid = nil
	e.viewport = nil
}
