package selection

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"

	coreimage "deepspace-observatory/src/core/image"
	"deepspace-observatory/src/core/viewer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaleConverter 视口坐标 = (像素 + offset) / scale，可在拖动中途修改模拟缩放
type scaleConverter struct {
	scale  float64
	offset float64
	err    error
}

func (c *scaleConverter) PointFromPixel(p viewer.Pixel) (viewer.Point, error) {
	if c.err != nil {
		return viewer.Point{}, c.err
	}
	return viewer.Point{X: (p.X + c.offset) / c.scale, Y: (p.Y + c.offset) / c.scale}, nil
}

func (c *scaleConverter) PixelFromPoint(p viewer.Point) (viewer.Pixel, error) {
	if c.err != nil {
		return viewer.Pixel{}, c.err
	}
	return viewer.Pixel{X: p.X*c.scale - c.offset, Y: p.Y*c.scale - c.offset}, nil
}

func run(t *testing.T, conv Converter, events ...Event) (State, Output) {
	t.Helper()
	s := NewState(DefaultMinSize)
	var out Output
	for _, ev := range events {
		s, out = Step(s, ev, conv)
	}
	return s, out
}

func TestStep_PointerDownStartsDrag(t *testing.T) {
	conv := &scaleConverter{scale: 100}
	s, out := run(t, conv, PointerDown{X: 50, Y: 60})

	assert.Equal(t, PhaseDragging, s.Phase)
	assert.True(t, out.Changed)
	assert.True(t, out.ClearPayload)
	assert.Equal(t, &Rect{X: 50, Y: 60}, out.Rect)
	assert.InDelta(t, 0.5, s.Anchor.X, 1e-9)
}

func TestStep_NonPrimaryButtonIgnored(t *testing.T) {
	s, out := run(t, &scaleConverter{scale: 1}, PointerDown{X: 5, Y: 5, Button: 2})
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, Output{}, out)
}

func TestStep_NormalizesAllQuadrants(t *testing.T) {
	tests := []struct {
		name string
		to   PointerMove
		want Rect
	}{
		{"右下", PointerMove{X: 150, Y: 130}, Rect{X: 100, Y: 100, Width: 50, Height: 30}},
		{"左上", PointerMove{X: 60, Y: 70}, Rect{X: 60, Y: 70, Width: 40, Height: 30}},
		{"右上", PointerMove{X: 140, Y: 20}, Rect{X: 100, Y: 20, Width: 40, Height: 80}},
		{"左下", PointerMove{X: 10, Y: 190}, Rect{X: 10, Y: 100, Width: 90, Height: 90}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out := run(t, &scaleConverter{scale: 1}, PointerDown{X: 100, Y: 100}, tt.to)
			require.NotNil(t, out.Rect)
			assert.Equal(t, tt.want, *out.Rect)
			assert.GreaterOrEqual(t, out.Rect.Width, 0.0)
			assert.GreaterOrEqual(t, out.Rect.Height, 0.0)
		})
	}
}

func TestStep_ZoomMidDragReprojectsAnchor(t *testing.T) {
	conv := &scaleConverter{scale: 100}
	s := NewState(DefaultMinSize)
	s, _ = Step(s, PointerDown{X: 100, Y: 100}, conv)

	// 中途放大一倍，按下点的屏幕位置变为200
	conv.scale = 200
	s, out := Step(s, PointerMove{X: 250, Y: 260}, conv)
	require.NotNil(t, out.Rect)
	assert.Equal(t, Rect{X: 200, Y: 200, Width: 50, Height: 60}, *out.Rect)
	assert.Equal(t, PhaseDragging, s.Phase)
}

func TestStep_FinalizeThreshold(t *testing.T) {
	tests := []struct {
		name     string
		w, h     float64
		finalize bool
	}{
		{"刚好20不提取", 20, 50, false},
		{"高度不足", 50, 10, false},
		{"零尺寸", 0, 0, false},
		{"21x21提取", 21, 21, true},
		{"大区域", 300, 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, out := run(t, &scaleConverter{scale: 1},
				PointerDown{X: 10, Y: 10},
				PointerMove{X: 10 + tt.w, Y: 10 + tt.h},
				PointerUp{},
			)
			assert.Equal(t, PhaseIdle, s.Phase)
			assert.Equal(t, tt.finalize, out.Finalize)
			if tt.finalize {
				require.NotNil(t, out.Rect)
				assert.Equal(t, tt.w, out.Rect.Width)
				assert.False(t, out.ClearPayload)
			} else {
				assert.Nil(t, out.Rect)
				assert.Nil(t, s.Rect)
				assert.True(t, out.Changed)
				assert.True(t, out.ClearPayload)
			}
		})
	}
}

func TestStep_LeaveWhileDraggingActsAsUp(t *testing.T) {
	_, out := run(t, &scaleConverter{scale: 1},
		PointerDown{X: 0, Y: 0}, PointerMove{X: 40, Y: 40}, PointerLeave{})
	assert.True(t, out.Finalize)

	s, out := run(t, &scaleConverter{scale: 1}, PointerLeave{})
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, Output{}, out)

	_, out = run(t, &scaleConverter{scale: 1}, PointerUp{})
	assert.Equal(t, Output{}, out)
}

func TestStep_ResetMidDrag(t *testing.T) {
	s, out := run(t, &scaleConverter{scale: 1},
		PointerDown{X: 0, Y: 0}, PointerMove{X: 40, Y: 40}, Reset{})
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Nil(t, s.Rect)
	assert.True(t, out.ClearPayload)

	// 之后的抬起不会再提取
	_, out = Step(s, PointerUp{}, &scaleConverter{scale: 1})
	assert.False(t, out.Finalize)
}

func TestStep_ConverterNotReady(t *testing.T) {
	conv := &scaleConverter{scale: 1, err: viewer.ErrNotReady}
	s, out := run(t, conv, PointerDown{X: 1, Y: 1})
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.True(t, errors.Is(out.Err, viewer.ErrNotReady))
}

func TestExtract(t *testing.T) {
	surface := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(surface, image.Rect(100, 0, 200, 100), &image.Uniform{C: color.RGBA{G: 255, A: 255}}, image.Point{}, draw.Src)

	url, err := Extract(surface, Rect{X: 120, Y: 10, Width: 40, Height: 30}, 90)
	require.NoError(t, err)
	data, err := coreimage.ParseDataURL(url)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", data.Format)

	raw, err := data.Bytes()
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 40, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())
	_, g, _, _ := img.At(20, 15).RGBA()
	assert.Greater(t, g, uint32(0xf000))

	// 超出画面的部分为黑色
	url, err = Extract(surface, Rect{X: 180, Y: 80, Width: 40, Height: 40}, 0)
	require.NoError(t, err)
	data, _ = coreimage.ParseDataURL(url)
	raw, _ = data.Bytes()
	img, _, err = image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	r, g, b, _ := img.At(35, 35).RGBA()
	assert.Less(t, r+g+b, uint32(0x1000))
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract(nil, Rect{Width: 30, Height: 30}, 90)
	assert.Error(t, err)

	_, err = Extract(image.NewRGBA(image.Rect(0, 0, 10, 10)), Rect{Width: 0, Height: 30}, 90)
	assert.ErrorIs(t, err, ErrEmptyRect)
}
