package viewer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"deepspace-observatory/src/core/tiles"
	"deepspace-observatory/src/core/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var red = color.RGBA{R: 255, A: 255}

func solidPNG(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// tileServer 对所有路径返回红色瓦片，missing中的路径返回404
func tileServer(t *testing.T, missing ...string) (*httptest.Server, *int32) {
	t.Helper()
	body := solidPNG(t, red)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		for _, m := range missing {
			if strings.HasSuffix(r.URL.Path, m) {
				http.NotFound(w, r)
				return
			}
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testPyramid(base string) tiles.StructuredPyramid {
	return tiles.StructuredPyramid{
		Width:       512,
		Height:      256,
		TileSize:    256,
		MinLevel:    0,
		MaxLevel:    9,
		URLTemplate: base + "/{level}/{col}_{row}.png",
	}
}

func newTestEngine(t *testing.T) *TileEngine {
	t.Helper()
	logger := utils.NewWriterLogger(nil, "debug")
	fetcher := tiles.NewFetcher(tiles.FetcherConfig{Timeout: 5 * time.Second, CacheSize: 64}, logger)
	return NewTileEngine(TileEngineConfig{Width: 512, Height: 256, Concurrency: 4}, fetcher, logger)
}

func TestTileEngine_RenderFullLevel(t *testing.T) {
	srv, hits := tileServer(t)
	engine := newTestEngine(t)

	require.NoError(t, engine.Open(context.Background(), testPyramid(srv.URL)))
	assert.Equal(t, 9, engine.Level())
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	surface, err := engine.Surface()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 512, 256), surface.Bounds())
	for _, p := range []image.Point{{10, 10}, {400, 200}, {256, 128}} {
		r, g, b, _ := surface.At(p.X, p.Y).RGBA()
		assert.Equal(t, uint32(0xffff), r, "point %v", p)
		assert.Zero(t, g)
		assert.Zero(t, b)
	}

	// 再次渲染走缓存
	_, err = engine.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestTileEngine_MissingTilesLeaveBlack(t *testing.T) {
	srv, _ := tileServer(t, "/9/1_0.png")
	engine := newTestEngine(t)

	require.NoError(t, engine.Open(context.Background(), testPyramid(srv.URL)))
	surface, err := engine.Surface()
	require.NoError(t, err)

	r, _, _, _ := surface.At(100, 100).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	r, g, b, a := surface.At(400, 100).RGBA()
	assert.Zero(t, r+g+b)
	assert.Equal(t, uint32(0xffff), a)
}

func TestTileEngine_AllTilesMissingFails(t *testing.T) {
	srv, _ := tileServer(t, ".png")
	engine := newTestEngine(t)

	err := engine.Open(context.Background(), testPyramid(srv.URL))
	require.Error(t, err)
	assert.ErrorIs(t, err, tiles.ErrTileNotFound)

	_, err = engine.Surface()
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
}

func TestTileEngine_DestroyDropsSurface(t *testing.T) {
	srv, _ := tileServer(t)
	engine := newTestEngine(t)
	require.NoError(t, engine.Open(context.Background(), testPyramid(srv.URL)))

	engine.Destroy()
	_, err := engine.Surface()
	assert.ErrorIs(t, err, ErrSurfaceUnavailable)
	assert.Nil(t, engine.Viewport())
	_, err = engine.Render(context.Background())
	assert.ErrorIs(t, err, ErrEngineDestroyed)
}

func TestTileEngine_ZoomSelectsDeeperLevel(t *testing.T) {
	srv, _ := tileServer(t)
	engine := newTestEngine(t)
	src := testPyramid(srv.URL)
	src.Width, src.Height, src.MaxLevel = 2048, 1024, 11
	require.NoError(t, engine.Open(context.Background(), src))
	assert.Equal(t, 9, engine.Level())

	engine.Viewport().ZoomBy(4, Pixel{X: 256, Y: 128})
	_, err := engine.Render(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, engine.Level())

	surface, err := engine.Surface()
	require.NoError(t, err)
	r, _, _, _ := surface.At(256, 128).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}
