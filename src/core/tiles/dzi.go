package tiles

import (
	"encoding/xml"
	"fmt"
	"math"
	"strings"
)

// dziImage DZI清单的XML结构
type dziImage struct {
	XMLName  xml.Name `xml:"Image"`
	TileSize int      `xml:"TileSize,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	Format   string   `xml:"Format,attr"`
	Size     struct {
		Width  int `xml:"Width,attr"`
		Height int `xml:"Height,attr"`
	} `xml:"Size"`
}

// ParseDZI 解析DZI清单，manifestURL用于推导瓦片目录
func ParseDZI(manifestURL string, data []byte) (*Pyramid, error) {
	var img dziImage
	if err := xml.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("解析DZI清单失败: %w", err)
	}
	w, h := img.Size.Width, img.Size.Height
	if w <= 0 || h <= 0 || img.TileSize <= 0 {
		return nil, fmt.Errorf("DZI清单参数无效: %dx%d tile=%d", w, h, img.TileSize)
	}
	format := img.Format
	if format == "" {
		format = "jpg"
	}

	maxDim := w
	if h > maxDim {
		maxDim = h
	}
	maxLevel := int(math.Ceil(math.Log2(float64(maxDim))))

	base := manifestURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(strings.TrimSuffix(base, ".dzi"), ".xml")
	filesDir := base + "_files"

	return NewPyramid(w, h, img.TileSize, img.Overlap, 0, maxLevel, func(level, col, row int) string {
		return fmt.Sprintf("%s/%d/%d_%d.%s", filesDir, level, col, row, format)
	})
}
