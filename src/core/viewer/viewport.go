package viewer

import "math"

// Point 视口坐标（图像宽度归一化为1）
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pixel 屏幕像素坐标，相对查看器左上角
type Pixel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect 视口坐标系中的矩形
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Limits 缩放和平移约束
type Limits struct {
	MinZoomRatio      float64 // 相对home缩放的最小比例
	MaxZoomPixelRatio float64 // 屏幕像素与图像像素的最大比例
}

// DefaultLimits 与前端查看器保持一致的默认约束
var DefaultLimits = Limits{MinZoomRatio: 0.8, MaxZoomPixelRatio: 2}

// Viewport 记录容器尺寸、缩放和中心点，负责像素和视口坐标互转
type Viewport struct {
	containerW float64
	containerH float64
	aspect     float64 // 图像高/宽
	imageWidth float64 // 原图像素宽度
	zoom       float64
	center     Point
	limits     Limits
}

// NewViewport 创建视口并定位到home位置
func NewViewport(containerW, containerH int, imageWidth, imageHeight int, limits Limits) *Viewport {
	if limits.MinZoomRatio <= 0 {
		limits.MinZoomRatio = DefaultLimits.MinZoomRatio
	}
	if limits.MaxZoomPixelRatio <= 0 {
		limits.MaxZoomPixelRatio = DefaultLimits.MaxZoomPixelRatio
	}
	v := &Viewport{
		containerW: float64(max(containerW, 1)),
		containerH: float64(max(containerH, 1)),
		aspect:     float64(imageHeight) / float64(max(imageWidth, 1)),
		imageWidth: float64(max(imageWidth, 1)),
		limits:     limits,
	}
	v.GoHome()
	return v
}

// ContainerSize 容器像素尺寸
func (v *Viewport) ContainerSize() (int, int) {
	return int(v.containerW), int(v.containerH)
}

// Zoom 当前缩放，1表示图像宽度正好铺满容器宽度
func (v *Viewport) Zoom() float64 { return v.zoom }

// Center 当前中心点
func (v *Viewport) Center() Point { return v.center }

// HomeZoom 完整显示图像时的缩放
func (v *Viewport) HomeZoom() float64 {
	containerAspect := v.containerH / v.containerW
	if v.aspect > containerAspect {
		// 图像更高，按高度适配
		return containerAspect / v.aspect
	}
	return 1
}

// MinZoom 最小缩放
func (v *Viewport) MinZoom() float64 {
	return v.HomeZoom() * v.limits.MinZoomRatio
}

// MaxZoom 最大缩放，屏幕像素与图像像素之比不超过限制
func (v *Viewport) MaxZoom() float64 {
	m := v.limits.MaxZoomPixelRatio * v.imageWidth / v.containerW
	if home := v.HomeZoom(); m < home {
		return home
	}
	return m
}

// GoHome 回到完整显示图像的位置
func (v *Viewport) GoHome() {
	v.zoom = v.HomeZoom()
	v.center = Point{X: 0.5, Y: v.aspect / 2}
	v.constrain()
}

// Bounds 当前可见区域（视口坐标）
func (v *Viewport) Bounds() Rect {
	w := 1 / v.zoom
	h := w * v.containerH / v.containerW
	return Rect{X: v.center.X - w/2, Y: v.center.Y - h/2, Width: w, Height: h}
}

// scale 每个视口单位对应的屏幕像素
func (v *Viewport) scale() float64 {
	return v.containerW * v.zoom
}

// RenderedImageWidth 整幅图像当前在屏幕上的像素宽度
func (v *Viewport) RenderedImageWidth() float64 {
	return v.scale()
}

// PointFromPixel 屏幕像素转视口坐标
func (v *Viewport) PointFromPixel(p Pixel) Point {
	b := v.Bounds()
	s := v.scale()
	return Point{X: b.X + p.X/s, Y: b.Y + p.Y/s}
}

// PixelFromPoint 视口坐标转屏幕像素
func (v *Viewport) PixelFromPoint(p Point) Pixel {
	b := v.Bounds()
	s := v.scale()
	return Pixel{X: (p.X - b.X) * s, Y: (p.Y - b.Y) * s}
}

// PanBy 按屏幕像素平移，正值表示内容向左上移动
func (v *Viewport) PanBy(dx, dy float64) {
	s := v.scale()
	v.center.X += dx / s
	v.center.Y += dy / s
	v.constrain()
}

// ZoomBy 以ref像素为不动点缩放
func (v *Viewport) ZoomBy(factor float64, ref Pixel) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	anchor := v.PointFromPixel(ref)
	v.zoom = clamp(v.zoom*factor, v.MinZoom(), v.MaxZoom())
	// 保持anchor仍在ref像素下
	s := v.scale()
	w := 1 / v.zoom
	h := w * v.containerH / v.containerW
	v.center = Point{
		X: anchor.X - ref.X/s + w/2,
		Y: anchor.Y - ref.Y/s + h/2,
	}
	v.constrain()
}

// FitBounds 缩放并居中，使r完整可见
func (v *Viewport) FitBounds(r Rect) {
	if r.Width <= 0 || r.Height <= 0 {
		return
	}
	zw := 1 / r.Width
	zh := (v.containerH / v.containerW) / r.Height
	v.zoom = clamp(math.Min(zw, zh), v.MinZoom(), v.MaxZoom())
	v.center = Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
	v.constrain()
}

// Resize 修改容器尺寸，保持中心和相对缩放
func (v *Viewport) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	v.containerW = float64(w)
	v.containerH = float64(h)
	v.zoom = clamp(v.zoom, v.MinZoom(), v.MaxZoom())
	v.constrain()
}

// constrain 保证图像始终可见：可见区域小于图像时不能越界，大于图像时居中
func (v *Viewport) constrain() {
	b := v.Bounds()
	v.center.X = constrainAxis(v.center.X, b.Width, 1)
	v.center.Y = constrainAxis(v.center.Y, b.Height, v.aspect)
}

func constrainAxis(center, visible, extent float64) float64 {
	if visible >= extent {
		return extent / 2
	}
	return clamp(center, visible/2, extent-visible/2)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
