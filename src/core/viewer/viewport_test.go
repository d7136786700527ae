package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func wideViewport() *Viewport {
	// 2:1 图像放进 2:1 容器
	return NewViewport(1000, 500, 2000, 1000, DefaultLimits)
}

func TestViewport_HomeAndLimits(t *testing.T) {
	tests := []struct {
		name    string
		vp      *Viewport
		home    float64
		min     float64
		max     float64
		center  Point
		boundsW float64
		boundsH float64
	}{
		{"宽图适配宽度", wideViewport(), 1, 0.8, 4, Point{0.5, 0.25}, 1, 0.5},
		{"高图适配高度", NewViewport(1000, 500, 1000, 2000, DefaultLimits), 0.25, 0.2, 2, Point{0.5, 1}, 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.home, tt.vp.HomeZoom(), eps)
			assert.InDelta(t, tt.min, tt.vp.MinZoom(), eps)
			assert.InDelta(t, tt.max, tt.vp.MaxZoom(), eps)
			assert.InDelta(t, tt.home, tt.vp.Zoom(), eps)
			assert.InDelta(t, tt.center.X, tt.vp.Center().X, eps)
			assert.InDelta(t, tt.center.Y, tt.vp.Center().Y, eps)
			b := tt.vp.Bounds()
			assert.InDelta(t, tt.boundsW, b.Width, eps)
			assert.InDelta(t, tt.boundsH, b.Height, eps)
		})
	}
}

func TestViewport_PixelPointRoundTrip(t *testing.T) {
	vp := wideViewport()
	vp.ZoomBy(3, Pixel{X: 123, Y: 321})

	for _, px := range []Pixel{{0, 0}, {500, 250}, {999, 1}, {42.5, 17.25}} {
		back := vp.PixelFromPoint(vp.PointFromPixel(px))
		assert.InDelta(t, px.X, back.X, 1e-6)
		assert.InDelta(t, px.Y, back.Y, 1e-6)
	}

	p := wideViewport().PointFromPixel(Pixel{X: 500, Y: 250})
	assert.InDelta(t, 0.5, p.X, eps)
	assert.InDelta(t, 0.25, p.Y, eps)
}

func TestViewport_ZoomKeepsAnchorUnderCursor(t *testing.T) {
	vp := wideViewport()
	ref := Pixel{X: 250, Y: 125}
	anchor := vp.PointFromPixel(ref)

	vp.ZoomBy(2, ref)

	assert.InDelta(t, 2, vp.Zoom(), eps)
	assert.InDelta(t, 0.375, vp.Center().X, eps)
	assert.InDelta(t, 0.1875, vp.Center().Y, eps)
	px := vp.PixelFromPoint(anchor)
	assert.InDelta(t, ref.X, px.X, 1e-6)
	assert.InDelta(t, ref.Y, px.Y, 1e-6)
}

func TestViewport_ZoomClamped(t *testing.T) {
	vp := wideViewport()
	vp.ZoomBy(100, Pixel{X: 500, Y: 250})
	assert.InDelta(t, 4, vp.Zoom(), eps)

	vp.ZoomBy(0.0001, Pixel{X: 500, Y: 250})
	assert.InDelta(t, 0.8, vp.Zoom(), eps)
	// 可见区域大于图像时居中
	assert.InDelta(t, 0.5, vp.Center().X, eps)
	assert.InDelta(t, 0.25, vp.Center().Y, eps)

	before := vp.Zoom()
	vp.ZoomBy(0, Pixel{})
	vp.ZoomBy(-1, Pixel{})
	assert.Equal(t, before, vp.Zoom())
}

func TestViewport_PanConstrained(t *testing.T) {
	vp := wideViewport()
	// home时图像铺满宽度，不能横向平移
	vp.PanBy(300, 0)
	assert.InDelta(t, 0.5, vp.Center().X, eps)

	vp.ZoomBy(2, Pixel{X: 500, Y: 250})
	vp.PanBy(100, 0)
	assert.InDelta(t, 0.55, vp.Center().X, eps)

	vp.PanBy(1e6, 1e6)
	assert.InDelta(t, 0.75, vp.Center().X, eps)
	assert.InDelta(t, 0.375, vp.Center().Y, eps)
}

func TestViewport_ZoomMovesEarlierPointOnScreen(t *testing.T) {
	vp := wideViewport()
	start := vp.PointFromPixel(Pixel{X: 100, Y: 100})

	vp.ZoomBy(2, Pixel{X: 500, Y: 250})

	// 起点锚定在图像上，屏幕位置随缩放变化
	px := vp.PixelFromPoint(start)
	assert.InDelta(t, -300, px.X, 1e-6)
	assert.InDelta(t, -50, px.Y, 1e-6)
}

func TestViewport_FitBoundsAndResize(t *testing.T) {
	vp := wideViewport()
	vp.FitBounds(Rect{X: 0.25, Y: 0.125, Width: 0.5, Height: 0.25})
	assert.InDelta(t, 2, vp.Zoom(), eps)
	assert.InDelta(t, 0.5, vp.Center().X, eps)
	assert.InDelta(t, 0.25, vp.Center().Y, eps)

	vp.FitBounds(Rect{})
	assert.InDelta(t, 2, vp.Zoom(), eps)

	vp.GoHome()
	vp.Resize(500, 500)
	w, h := vp.ContainerSize()
	assert.Equal(t, 500, w)
	assert.Equal(t, 500, h)
	assert.InDelta(t, 1, vp.Zoom(), eps)
	assert.InDelta(t, 0.25, vp.Center().Y, eps)
	assert.InDelta(t, 8, vp.MaxZoom(), eps)
}
