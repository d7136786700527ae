package selection

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	coreimage "deepspace-observatory/src/core/image"

	xdraw "golang.org/x/image/draw"
)

// DefaultQuality 提取区域的JPEG质量
const DefaultQuality = 90

// ErrEmptyRect 提取区域为空
var ErrEmptyRect = errors.New("selection rectangle is empty")

// Extract 从画面中复制rect区域到同尺寸的新图像并编码为JPEG data URL。
// 超出画面的部分保持黑色。
func Extract(surface image.Image, rect Rect, quality int) (string, error) {
	if surface == nil {
		return "", errors.New("没有可采样的画面")
	}
	src := rect.Image()
	if src.Empty() {
		return "", ErrEmptyRect
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	dst := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	xdraw.Copy(dst, image.Point{}, surface, src, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("编码选区失败: %w", err)
	}
	return coreimage.EncodeDataURL("jpeg", buf.Bytes()), nil
}
