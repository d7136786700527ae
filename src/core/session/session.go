package session

import (
	"context"
	"errors"
	"math"
	"sync"

	"deepspace-observatory/src/core/app"
	"deepspace-observatory/src/core/catalog"
	"deepspace-observatory/src/core/metrics"
	"deepspace-observatory/src/core/selection"
	"deepspace-observatory/src/core/tiles"
	"deepspace-observatory/src/core/utils"
	"deepspace-observatory/src/core/viewer"

	"github.com/google/uuid"
)

// Sink 会话输出，一般是websocket连接
type Sink interface {
	SendState(snap Snapshot) error
	SendFrame(frame []byte) error
}

// Analyzer 区域分析，analysis.Requester 满足该接口
type Analyzer interface {
	Analyze(ctx context.Context, payload string) (string, error)
}

// Config 会话参数
type Config struct {
	MinSelection   float64
	ExtractQuality int
	FrameQuality   int
	ZoomPerScroll  float64
}

// Deps 会话依赖
type Deps struct {
	Catalog       catalog.Provider
	Analyzer      Analyzer
	EngineFactory viewer.EngineFactory
	Logger        *utils.Logger
	Config        Config
}

// Session 一个浏览器标签页的全部状态。
// 所有处理函数持有同一把锁顺序执行，异步结果通过锁重新进入。
type Session struct {
	id     string
	deps   Deps
	sink   Sink
	logger *utils.TaggedLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      app.State
	tracker    selection.State
	adapter    *viewer.Adapter
	generation uint64 // 每次切换目标加一
	openCancel context.CancelFunc
	closed     bool

	openMu sync.Mutex // 串行化查看器加载
}

// New 创建会话，调用 Start 后开始加载目录
func New(ctx context.Context, deps Deps, sink Sink) *Session {
	if deps.Config.ZoomPerScroll <= 1 {
		deps.Config.ZoomPerScroll = 1.5
	}
	id := uuid.New().String()
	s := &Session{
		id:      id,
		deps:    deps,
		sink:    sink,
		logger:  deps.Logger.WithTag("session"),
		state:   app.Initial(),
		tracker: selection.NewState(deps.Config.MinSelection),
		adapter: viewer.NewAdapter(deps.EngineFactory, deps.Logger),
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.adapter.SetListener(s.onViewerEvent)
	metrics.ActiveSessions.Inc()
	return s
}

// ID 会话ID
func (s *Session) ID() string {
	return s.id
}

// Start 推送初始状态并异步加载目录
func (s *Session) Start() {
	s.mu.Lock()
	s.emit()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		targets, err := s.deps.Catalog.FetchCatalog(s.ctx)
		if err != nil {
			s.logger.Error("加载目录失败", map[string]interface{}{"error": err.Error()})
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.state = app.CatalogLoaded(s.state, targets, err)
		if s.state.Current != nil {
			s.switchViewer(s.state.Current.TileSource)
		}
		s.emit()
	}()
}

// Snapshot 当前状态
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// emit 必须持有 s.mu
func (s *Session) emit() {
	if s.closed || s.sink == nil {
		return
	}
	if err := s.sink.SendState(s.snapshot()); err != nil {
		s.logger.Debug("推送状态失败", map[string]interface{}{"error": err.Error()})
	}
}

// emitFrame 必须持有 s.mu
func (s *Session) emitFrame() {
	if s.closed || s.sink == nil {
		return
	}
	frame, err := s.adapter.Frame(s.deps.Config.FrameQuality)
	if err != nil {
		return
	}
	if err := s.sink.SendFrame(frame); err != nil {
		s.logger.Debug("推送画面失败", map[string]interface{}{"error": err.Error()})
	}
}

// switchViewer 必须持有 s.mu。同步拆除旧引擎，取消上一次加载，在后台打开新的瓦片源
func (s *Session) switchViewer(src tiles.TileSource) {
	s.generation++
	gen := s.generation
	if s.openCancel != nil {
		s.openCancel()
	}
	// 返回前旧画面已不可用，之后的指针事件不会落在旧目标上
	s.adapter.Detach()
	ctx, cancel := context.WithCancel(s.ctx)
	s.openCancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.openMu.Lock()
		defer s.openMu.Unlock()

		s.mu.Lock()
		stale := gen != s.generation || s.closed
		s.mu.Unlock()
		if stale {
			return
		}
		_ = s.adapter.Open(ctx, src)
	}()
}

func (s *Session) onViewerEvent(ev viewer.Event) {
	if ev.Err != nil && errors.Is(ev.Err, context.Canceled) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if ev.Status == viewer.StatusFailed {
		s.logger.Warn("查看器加载失败", map[string]interface{}{"error": ev.Err.Error()})
	}
	s.emit()
	if ev.Status == viewer.StatusReady {
		s.emitFrame()
	}
}

// SelectTarget 切换目标，先复位框选再重建查看器
func (s *Session) SelectTarget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.Current
	s.state = app.SelectTarget(s.state, id)
	if s.state.Current != prev {
		s.tracker, _ = selection.Step(s.tracker, selection.Reset{}, s.adapter)
		s.switchViewer(s.state.Current.TileSource)
	}
	s.emit()
}

// PointerDown 按下
func (s *Session) PointerDown(x, y float64, button int) {
	s.pointer(selection.PointerDown{X: x, Y: y, Button: button})
}

// PointerMove 移动
func (s *Session) PointerMove(x, y float64) {
	s.pointer(selection.PointerMove{X: x, Y: y})
}

// PointerUp 抬起
func (s *Session) PointerUp() {
	s.pointer(selection.PointerUp{})
}

// PointerLeave 离开查看器
func (s *Session) PointerLeave() {
	s.pointer(selection.PointerLeave{})
}

func (s *Session) pointer(ev selection.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, out := selection.Step(s.tracker, ev, s.adapter)
	s.tracker = next
	if out.Err != nil {
		s.logger.Debug("查看器未就绪，忽略指针事件", map[string]interface{}{"error": out.Err.Error()})
		return
	}
	if out.ClearPayload {
		s.state = app.PayloadFinalized(s.state, "")
	}
	if out.Changed {
		s.state = app.SelectionChanged(s.state, out.Rect)
	}
	if out.Finalize {
		s.finalize(*out.Rect)
	}
	if out.Changed || out.ClearPayload || out.Finalize {
		s.emit()
	}
}

// finalize 必须持有 s.mu。从当前画面提取选区，失败时丢弃选区
func (s *Session) finalize(rect selection.Rect) {
	surface, err := s.adapter.Surface()
	var payload string
	if err == nil {
		payload, err = selection.Extract(surface, rect, s.deps.Config.ExtractQuality)
	}
	if err != nil {
		s.logger.Warn("无法从画面提取选区", map[string]interface{}{"error": err.Error()})
		s.tracker.Rect = nil
		s.state = app.SelectionChanged(s.state, nil)
		return
	}
	s.state = app.SelectionChanged(s.state, &rect)
	s.state = app.PayloadFinalized(s.state, payload)
}

// Analyze 发送当前载荷，无载荷或已有请求时什么都不做
func (s *Session) Analyze() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanAnalyze() {
		return
	}
	payload := s.state.Payload
	gen := s.generation
	s.state = app.BeginAnalysis(s.state)
	s.emit()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		text, err := s.deps.Analyzer.Analyze(s.ctx, payload)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		// 目标已切换或结果已被清除
		if gen != s.generation || !s.state.Analysis.Loading() {
			s.logger.Debug("丢弃过期的分析结果")
			return
		}
		s.state = app.SettleAnalysis(s.state, text, err)
		s.emit()
	}()
}

// DismissAnalysis 关闭分析结果
func (s *Session) DismissAnalysis() {
	s.update(app.DismissAnalysis)
}

// OpenGallery 打开画廊
func (s *Session) OpenGallery() {
	s.update(app.OpenGallery)
}

// CloseGallery 关闭画廊
func (s *Session) CloseGallery() {
	s.update(app.CloseGallery)
}

// SetGalleryQuery 搜索
func (s *Session) SetGalleryQuery(query string) {
	s.update(func(st app.State) app.State { return app.SetGalleryQuery(st, query) })
}

// SetGallerySort 排序
func (s *Session) SetGallerySort(order catalog.SortOrder) {
	s.update(func(st app.State) app.State { return app.SetGallerySort(st, order) })
}

// SetTab 切换信息面板
func (s *Session) SetTab(tab app.Tab) {
	s.update(func(st app.State) app.State { return app.SetTab(st, tab) })
}

func (s *Session) update(fn func(app.State) app.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	s.emit()
}

// Pan 按屏幕像素平移
func (s *Session) Pan(dx, dy float64) error {
	return s.view(func() error { return s.adapter.Pan(s.ctx, dx, dy) })
}

// Zoom 以(x, y)为中心缩放
func (s *Session) Zoom(factor, x, y float64) error {
	return s.view(func() error { return s.adapter.Zoom(s.ctx, factor, viewer.Pixel{X: x, Y: y}) })
}

// Scroll 滚轮缩放，clicks为正表示放大
func (s *Session) Scroll(clicks, x, y float64) error {
	return s.Zoom(math.Pow(s.deps.Config.ZoomPerScroll, clicks), x, y)
}

// Resize 查看器尺寸变化
func (s *Session) Resize(w, h int) error {
	return s.view(func() error { return s.adapter.Resize(s.ctx, w, h) })
}

// Home 回到完整视图
func (s *Session) Home() error {
	return s.view(func() error { return s.adapter.Home(s.ctx) })
}

func (s *Session) view(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		if errors.Is(err, viewer.ErrNotReady) {
			return nil
		}
		return err
	}
	s.emit()
	s.emitFrame()
	return nil
}

// Close 停止所有后台任务并销毁查看器
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.adapter.Close()
	metrics.ActiveSessions.Dec()
}
