package tiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SourceKind 瓦片源类型
type SourceKind string

const (
	KindManifest SourceKind = "manifest" // 远程DZI清单
	KindPyramid  SourceKind = "pyramid"  // 结构化金字塔描述
)

// TileSource 瓦片源描述，只有 RemoteManifest 和 StructuredPyramid 两种实现
type TileSource interface {
	Kind() SourceKind
	isTileSource()
}

// RemoteManifest 指向标准deep-zoom清单(.dzi)的URL
type RemoteManifest struct {
	URL string `json:"url"`
}

func (RemoteManifest) Kind() SourceKind { return KindManifest }
func (RemoteManifest) isTileSource()    {}

// StructuredPyramid 直接给出金字塔尺寸和瓦片URL模板
//
// URLTemplate 支持的占位符: {z} (level-LevelOffset), {level}, {x}/{col}, {y}/{row}
type StructuredPyramid struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	TileSize    int    `json:"tile_size"`
	TileOverlap int    `json:"tile_overlap"`
	MinLevel    int    `json:"min_level"`
	MaxLevel    int    `json:"max_level"`
	URLTemplate string `json:"url_template"`
	LevelOffset int    `json:"level_offset"`
}

func (StructuredPyramid) Kind() SourceKind { return KindPyramid }
func (StructuredPyramid) isTileSource()    {}

// TileURL 按模板生成瓦片地址
func (p StructuredPyramid) TileURL(level, col, row int) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(level-p.LevelOffset),
		"{level}", strconv.Itoa(level),
		"{x}", strconv.Itoa(col),
		"{col}", strconv.Itoa(col),
		"{y}", strconv.Itoa(row),
		"{row}", strconv.Itoa(row),
	)
	return r.Replace(p.URLTemplate)
}

// Validate 检查结构化描述的完整性
func (p StructuredPyramid) Validate() error {
	switch {
	case p.Width <= 0 || p.Height <= 0:
		return fmt.Errorf("无效的金字塔尺寸: %dx%d", p.Width, p.Height)
	case p.TileSize <= 0:
		return fmt.Errorf("无效的瓦片大小: %d", p.TileSize)
	case p.TileOverlap < 0:
		return fmt.Errorf("无效的瓦片重叠: %d", p.TileOverlap)
	case p.MinLevel < 0 || p.MaxLevel < p.MinLevel:
		return fmt.Errorf("无效的层级范围: [%d, %d]", p.MinLevel, p.MaxLevel)
	case p.URLTemplate == "":
		return errors.New("缺少瓦片URL模板")
	}
	return nil
}

type sourceEnvelope struct {
	Type SourceKind `json:"type"`
	RemoteManifest
	StructuredPyramid
}

// MarshalSource 序列化为带type字段的JSON
func MarshalSource(src TileSource) ([]byte, error) {
	switch s := src.(type) {
	case RemoteManifest:
		return json.Marshal(struct {
			Type SourceKind `json:"type"`
			RemoteManifest
		}{KindManifest, s})
	case StructuredPyramid:
		return json.Marshal(struct {
			Type SourceKind `json:"type"`
			StructuredPyramid
		}{KindPyramid, s})
	case nil:
		return nil, errors.New("瓦片源为空")
	default:
		return nil, fmt.Errorf("未知的瓦片源类型: %T", src)
	}
}

// UnmarshalSource 从带type字段的JSON还原瓦片源
func UnmarshalSource(data []byte) (TileSource, error) {
	var env sourceEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析瓦片源失败: %w", err)
	}
	switch env.Type {
	case KindManifest:
		if env.RemoteManifest.URL == "" {
			return nil, errors.New("清单瓦片源缺少url")
		}
		return env.RemoteManifest, nil
	case KindPyramid:
		if err := env.StructuredPyramid.Validate(); err != nil {
			return nil, err
		}
		return env.StructuredPyramid, nil
	default:
		return nil, fmt.Errorf("未知的瓦片源类型: %q", env.Type)
	}
}
