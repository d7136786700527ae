package selection

import (
	"image"
	"math"

	"deepspace-observatory/src/core/viewer"
)

// DefaultMinSize 宽高都必须超过该像素值才会提取区域
const DefaultMinSize = 20

// Phase 框选状态
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
)

func (p Phase) String() string {
	if p == PhaseDragging {
		return "dragging"
	}
	return "idle"
}

// Rect 屏幕像素矩形，相对查看器左上角
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Exceeds 宽高是否都严格大于min
func (r Rect) Exceeds(min float64) bool {
	return r.Width > min && r.Height > min
}

// Image 取整为整数像素矩形
func (r Rect) Image() image.Rectangle {
	x := int(math.Round(r.X))
	y := int(math.Round(r.Y))
	return image.Rect(x, y, x+int(math.Round(r.Width)), y+int(math.Round(r.Height)))
}

// Normalize 由两个角点得到宽高非负的矩形
func Normalize(a, b viewer.Pixel) Rect {
	return Rect{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// Converter 像素与视口坐标互转，由查看器适配器实现
type Converter interface {
	PointFromPixel(p viewer.Pixel) (viewer.Point, error)
	PixelFromPoint(p viewer.Point) (viewer.Pixel, error)
}

// State 框选状态机的状态
type State struct {
	Phase   Phase
	Anchor  viewer.Point // 按下位置，视口坐标
	Rect    *Rect
	MinSize float64
}

// NewState 创建空闲状态
func NewState(minSize float64) State {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return State{MinSize: minSize}
}

// Event 指针事件
type Event interface {
	isEvent()
}

// PointerDown 按下，Button 0 为主键
type PointerDown struct {
	X, Y   float64
	Button int
}

// PointerMove 移动
type PointerMove struct {
	X, Y float64
}

// PointerUp 抬起
type PointerUp struct{}

// PointerLeave 指针离开查看器
type PointerLeave struct{}

// Reset 切换目标时清空
type Reset struct{}

func (PointerDown) isEvent()  {}
func (PointerMove) isEvent()  {}
func (PointerUp) isEvent()    {}
func (PointerLeave) isEvent() {}
func (Reset) isEvent()        {}

// Output 一次转换的副作用描述
type Output struct {
	Changed      bool  // Rect 需要通知上层
	Rect         *Rect // 新的选框，nil表示无选框
	ClearPayload bool  // 清除已提取的载荷
	Finalize     bool  // 需要按 Rect 从画面提取区域
	Err          error // 坐标转换失败
}

// Step 状态转换，不修改入参
func Step(s State, ev Event, conv Converter) (State, Output) {
	if s.MinSize <= 0 {
		s.MinSize = DefaultMinSize
	}
	switch e := ev.(type) {
	case PointerDown:
		if e.Button != 0 {
			return s, Output{}
		}
		px := viewer.Pixel{X: e.X, Y: e.Y}
		anchor, err := conv.PointFromPixel(px)
		if err != nil {
			return s, Output{Err: err}
		}
		rect := &Rect{X: e.X, Y: e.Y}
		return State{Phase: PhaseDragging, Anchor: anchor, Rect: rect, MinSize: s.MinSize},
			Output{Changed: true, Rect: rect, ClearPayload: true}

	case PointerMove:
		if s.Phase != PhaseDragging {
			return s, Output{}
		}
		// 按下点随平移缩放而变化，每次都重新投影
		start, err := conv.PixelFromPoint(s.Anchor)
		if err != nil {
			return s, Output{Err: err}
		}
		rect := Normalize(start, viewer.Pixel{X: e.X, Y: e.Y})
		s.Rect = &rect
		return s, Output{Changed: true, Rect: &rect}

	case PointerUp, PointerLeave:
		if s.Phase != PhaseDragging {
			return s, Output{}
		}
		rect := s.Rect
		next := State{Phase: PhaseIdle, MinSize: s.MinSize}
		if rect != nil && rect.Exceeds(s.MinSize) {
			next.Rect = rect
			return next, Output{Rect: rect, Finalize: true}
		}
		return next, Output{Changed: true, ClearPayload: true}

	case Reset:
		return State{Phase: PhaseIdle, MinSize: s.MinSize}, Output{Changed: true, ClearPayload: true}
	}
	return s, Output{}
}
