package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"deepspace-observatory/src/core/tiles"
	"deepspace-observatory/src/core/utils"
)

// ErrNotReady 查看器尚未就绪，坐标转换和采样不可用
var ErrNotReady = errors.New("viewer is not ready")

// ErrSuperseded 加载过程中瓦片源已被替换
var ErrSuperseded = errors.New("tile source superseded")

// Status 查看器加载状态
type Status string

const (
	StatusEmpty   Status = "empty"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Event 状态变化通知
type Event struct {
	Status Status
	Err    error
}

// Listener 接收状态变化，在锁外回调
type Listener func(Event)

// ViewState 当前视图快照
type ViewState struct {
	Zoom     float64 `json:"zoom"`
	HomeZoom float64 `json:"home_zoom"`
	Center   Point   `json:"center"`
	Bounds   Rect    `json:"bounds"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
}

// Adapter 持有唯一的引擎实例，对外提供就绪状态、坐标转换和像素采样
type Adapter struct {
	factory EngineFactory
	logger  *utils.Logger

	mu         sync.Mutex
	engine     Engine
	status     Status
	generation uint64
	listener   Listener
	width      int
	height     int
}

// NewAdapter 创建查看器适配器
func NewAdapter(factory EngineFactory, logger *utils.Logger) *Adapter {
	return &Adapter{
		factory: factory,
		logger:  logger,
		status:  StatusEmpty,
	}
}

// SetListener 设置状态监听
func (a *Adapter) SetListener(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listener = l
}

// Status 当前状态
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Adapter) notify(l Listener, ev Event) {
	if l != nil {
		l(ev)
	}
}

// Open 切换瓦片源。旧引擎先销毁再创建新引擎，阻塞直到加载完成或失败。
// src为nil时只销毁当前引擎。
func (a *Adapter) Open(ctx context.Context, src tiles.TileSource) error {
	a.mu.Lock()
	if a.engine != nil {
		a.engine.Destroy()
		a.engine = nil
	}
	a.generation++
	gen := a.generation
	l := a.listener
	if src == nil {
		a.status = StatusEmpty
		a.mu.Unlock()
		a.notify(l, Event{Status: StatusEmpty})
		return nil
	}
	engine := a.factory()
	a.engine = engine
	a.status = StatusLoading
	a.mu.Unlock()
	a.notify(l, Event{Status: StatusLoading})

	err := engine.Open(ctx, src)

	a.mu.Lock()
	if gen != a.generation {
		// 已被新的瓦片源替换，新的Open负责销毁
		a.mu.Unlock()
		return ErrSuperseded
	}
	if err == nil && a.width > 0 && a.height > 0 {
		if vp := engine.Viewport(); vp != nil {
			if w, h := vp.ContainerSize(); w != a.width || h != a.height {
				vp.Resize(a.width, a.height)
				_, err = engine.Render(ctx)
			}
		}
	}
	if err != nil {
		a.status = StatusFailed
		l = a.listener
		a.mu.Unlock()
		a.logger.Error("加载瓦片源失败", map[string]interface{}{
			"kind":  src.Kind(),
			"error": err.Error(),
		})
		a.notify(l, Event{Status: StatusFailed, Err: err})
		return err
	}
	a.status = StatusReady
	l = a.listener
	a.mu.Unlock()
	a.notify(l, Event{Status: StatusReady})
	return nil
}

// Detach 立即销毁当前引擎并进入loading，之后的坐标转换和采样返回 ErrNotReady。
// 不通知监听者，调用方可能持有自己的锁；随后的 Open 会正常通知。
func (a *Adapter) Detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine != nil {
		a.engine.Destroy()
		a.engine = nil
	}
	a.generation++
	a.status = StatusLoading
}

// readyEngine 必须在持有锁时调用
func (a *Adapter) readyEngine() (Engine, *Viewport, error) {
	if a.status != StatusReady || a.engine == nil {
		return nil, nil, ErrNotReady
	}
	vp := a.engine.Viewport()
	if vp == nil {
		return nil, nil, ErrNotReady
	}
	return a.engine, vp, nil
}

// PointFromPixel 屏幕像素转视口坐标
func (a *Adapter) PointFromPixel(p Pixel) (Point, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, vp, err := a.readyEngine()
	if err != nil {
		return Point{}, err
	}
	return vp.PointFromPixel(p), nil
}

// PixelFromPoint 视口坐标转屏幕像素
func (a *Adapter) PixelFromPoint(p Point) (Pixel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, vp, err := a.readyEngine()
	if err != nil {
		return Pixel{}, err
	}
	return vp.PixelFromPoint(p), nil
}

// Surface 当前可采样的像素表面
func (a *Adapter) Surface() (image.Image, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	engine, _, err := a.readyEngine()
	if err != nil {
		return nil, ErrSurfaceUnavailable
	}
	return engine.Surface()
}

// update 在锁内修改视口并重新渲染
func (a *Adapter) update(ctx context.Context, fn func(vp *Viewport)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	engine, vp, err := a.readyEngine()
	if err != nil {
		return err
	}
	fn(vp)
	if _, err := engine.Render(ctx); err != nil {
		return fmt.Errorf("重新渲染失败: %w", err)
	}
	return nil
}

// Pan 按屏幕像素平移
func (a *Adapter) Pan(ctx context.Context, dx, dy float64) error {
	return a.update(ctx, func(vp *Viewport) { vp.PanBy(dx, dy) })
}

// Zoom 以ref为不动点缩放
func (a *Adapter) Zoom(ctx context.Context, factor float64, ref Pixel) error {
	return a.update(ctx, func(vp *Viewport) { vp.ZoomBy(factor, ref) })
}

// Home 回到完整视图
func (a *Adapter) Home(ctx context.Context) error {
	return a.update(ctx, func(vp *Viewport) { vp.GoHome() })
}

// FitBounds 缩放到指定视口区域
func (a *Adapter) FitBounds(ctx context.Context, r Rect) error {
	return a.update(ctx, func(vp *Viewport) { vp.FitBounds(r) })
}

// Resize 修改显示尺寸，未就绪时记录下来在加载完成后应用
func (a *Adapter) Resize(ctx context.Context, w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("无效的尺寸: %dx%d", w, h)
	}
	a.mu.Lock()
	a.width, a.height = w, h
	a.mu.Unlock()
	err := a.update(ctx, func(vp *Viewport) { vp.Resize(w, h) })
	if errors.Is(err, ErrNotReady) {
		return nil
	}
	return err
}

// ViewState 当前视图快照
func (a *Adapter) ViewState() (ViewState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, vp, err := a.readyEngine()
	if err != nil {
		return ViewState{}, err
	}
	w, h := vp.ContainerSize()
	return ViewState{
		Zoom:     vp.Zoom(),
		HomeZoom: vp.HomeZoom(),
		Center:   vp.Center(),
		Bounds:   vp.Bounds(),
		Width:    w,
		Height:   h,
	}, nil
}

// Frame 把当前画面编码为JPEG
func (a *Adapter) Frame(quality int) ([]byte, error) {
	surface, err := a.Surface()
	if err != nil {
		return nil, err
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, surface, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("编码画面失败: %w", err)
	}
	return buf.Bytes(), nil
}

// Close 销毁引擎，之后状态为empty
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine != nil {
		a.engine.Destroy()
		a.engine = nil
	}
	a.generation++
	a.status = StatusEmpty
}
