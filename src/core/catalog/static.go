package catalog

import (
	"context"
	"time"

	"deepspace-observatory/src/core/tiles"
)

// DefaultTargets 内置目录
func DefaultTargets() []TargetImage {
	return []TargetImage{
		{
			ID:           "lro-moon",
			Name:         "Lunar Reconnaissance Orbiter",
			Description:  "A global mosaic of our Moon, captured by the LRO's Wide Angle Camera.",
			ThumbnailURL: "https://solarsystem.nasa.gov/system/stellar_items/image_files/38_moon_400x400.jpg",
			// NASA Trek WMTS，z = level - 9
			TileSource: tiles.StructuredPyramid{
				Width:       131072,
				Height:      65536,
				TileSize:    256,
				TileOverlap: 0,
				MinLevel:    9,
				MaxLevel:    17,
				URLTemplate: "https://trek.nasa.gov/tiles/Moon/EQ/LRO_WAC_Mosaic_Global_303ppd_v02/1.0.0/default/default028mm/{z}/{y}/{x}.jpg",
				LevelOffset: 9,
			},
		},
		{
			ID:           "whirlpool-galaxy",
			Name:         "Whirlpool Galaxy (M51)",
			Description:  "A classic spiral galaxy, notable for its well-defined spiral arms and its companion galaxy, NGC 5195.",
			ThumbnailURL: "https://cdn.worldwidetelescope.org/wwtweb/thumbnail.aspx?name=m51",
			TileSource:   tiles.RemoteManifest{URL: "https://cdn.worldwidetelescope.org/wwtweb/dzi/m51.dzi"},
		},
		{
			ID:           "andromeda-galaxy",
			Name:         "Andromeda Galaxy (M31)",
			Description:  "The largest and sharpest-ever image of our galactic neighbor, Andromeda.",
			ThumbnailURL: "https://cdn.worldwidetelescope.org/wwtweb/thumbnail.aspx?name=heic1502a_10000",
			TileSource:   tiles.RemoteManifest{URL: "https://cdn.worldwidetelescope.org/wwtweb/dzi/heic1502a_10000.dzi"},
		},
	}
}

// StaticProvider 固定目录，模拟网络延迟后返回
type StaticProvider struct {
	targets []TargetImage
	delay   time.Duration
}

// NewStaticProvider targets为nil时使用内置目录
func NewStaticProvider(targets []TargetImage, delay time.Duration) *StaticProvider {
	if targets == nil {
		targets = DefaultTargets()
	}
	return &StaticProvider{targets: targets, delay: delay}
}

// FetchCatalog 实现 Provider 接口
func (p *StaticProvider) FetchCatalog(ctx context.Context) ([]TargetImage, error) {
	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]TargetImage, len(p.targets))
	copy(out, p.targets)
	return out, nil
}
