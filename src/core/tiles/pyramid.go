package tiles

import (
	"fmt"
	"image"
	"math"
)

// Pyramid 解析后的金字塔几何信息
type Pyramid struct {
	Width    int
	Height   int
	TileSize int
	Overlap  int
	MinLevel int
	MaxLevel int
	tileURL  func(level, col, row int) string
}

// NewPyramid 创建金字塔
func NewPyramid(width, height, tileSize, overlap, minLevel, maxLevel int, tileURL func(level, col, row int) string) (*Pyramid, error) {
	if width <= 0 || height <= 0 || tileSize <= 0 {
		return nil, fmt.Errorf("无效的金字塔参数: %dx%d tile=%d", width, height, tileSize)
	}
	if minLevel < 0 || maxLevel < minLevel {
		return nil, fmt.Errorf("无效的层级范围: [%d, %d]", minLevel, maxLevel)
	}
	if tileURL == nil {
		return nil, fmt.Errorf("缺少瓦片URL函数")
	}
	return &Pyramid{
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		Overlap:  overlap,
		MinLevel: minLevel,
		MaxLevel: maxLevel,
		tileURL:  tileURL,
	}, nil
}

// FromStructured 由结构化描述创建金字塔
func FromStructured(src StructuredPyramid) (*Pyramid, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return NewPyramid(src.Width, src.Height, src.TileSize, src.TileOverlap, src.MinLevel, src.MaxLevel, src.TileURL)
}

// AspectRatio 高/宽
func (p *Pyramid) AspectRatio() float64 {
	return float64(p.Height) / float64(p.Width)
}

// LevelScale 该层相对全分辨率的缩放比例
func (p *Pyramid) LevelScale(level int) float64 {
	return math.Pow(0.5, float64(p.MaxLevel-level))
}

// LevelSize 该层的像素尺寸
func (p *Pyramid) LevelSize(level int) (int, int) {
	scale := p.LevelScale(level)
	w := int(math.Ceil(float64(p.Width) * scale))
	h := int(math.Ceil(float64(p.Height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// NumTiles 该层的瓦片行列数
func (p *Pyramid) NumTiles(level int) (cols, rows int) {
	w, h := p.LevelSize(level)
	cols = (w + p.TileSize - 1) / p.TileSize
	rows = (h + p.TileSize - 1) / p.TileSize
	return cols, rows
}

// TileBounds 瓦片在该层像素坐标中的范围，包含重叠部分
func (p *Pyramid) TileBounds(level, col, row int) image.Rectangle {
	w, h := p.LevelSize(level)
	x0 := col * p.TileSize
	y0 := row * p.TileSize
	if col > 0 {
		x0 -= p.Overlap
	}
	if row > 0 {
		y0 -= p.Overlap
	}
	x1 := (col+1)*p.TileSize + p.Overlap
	y1 := (row+1)*p.TileSize + p.Overlap
	if x1 > w {
		x1 = w
	}
	if y1 > h {
		y1 = h
	}
	return image.Rect(x0, y0, x1, y1)
}

// TileURL 瓦片地址
func (p *Pyramid) TileURL(level, col, row int) string {
	return p.tileURL(level, col, row)
}

// BestLevel 选择宽度不小于屏幕渲染宽度的最低层级
func (p *Pyramid) BestLevel(renderedWidth float64) int {
	for level := p.MinLevel; level <= p.MaxLevel; level++ {
		w, _ := p.LevelSize(level)
		if float64(w) >= renderedWidth {
			return level
		}
	}
	return p.MaxLevel
}

// TileCoord 瓦片坐标
type TileCoord struct {
	Level int
	Col   int
	Row   int
}

// String 作为缓存键使用
func (c TileCoord) String() string {
	return fmt.Sprintf("%d/%d_%d", c.Level, c.Col, c.Row)
}

// TilesInRect 返回与该层像素矩形相交的瓦片
func (p *Pyramid) TilesInRect(level int, r image.Rectangle) []TileCoord {
	w, h := p.LevelSize(level)
	r = r.Intersect(image.Rect(0, 0, w, h))
	if r.Empty() {
		return nil
	}
	cols, rows := p.NumTiles(level)
	c0, c1 := r.Min.X/p.TileSize, (r.Max.X-1)/p.TileSize
	r0, r1 := r.Min.Y/p.TileSize, (r.Max.Y-1)/p.TileSize
	if c1 >= cols {
		c1 = cols - 1
	}
	if r1 >= rows {
		r1 = rows - 1
	}
	coords := make([]TileCoord, 0, (c1-c0+1)*(r1-r0+1))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			coords = append(coords, TileCoord{Level: level, Col: col, Row: row})
		}
	}
	return coords
}
