package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"deepspace-observatory/src/core/tiles"
)

// TargetImage 可浏览的观测目标，加载后不可变
type TargetImage struct {
	ID           string
	Name         string
	Description  string
	ThumbnailURL string
	TileSource   tiles.TileSource
}

type targetJSON struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	ThumbnailURL string          `json:"thumbnail_url"`
	TileSource   json.RawMessage `json:"tile_source"`
}

// MarshalJSON 瓦片源带type字段输出
func (t TargetImage) MarshalJSON() ([]byte, error) {
	src, err := tiles.MarshalSource(t.TileSource)
	if err != nil {
		return nil, fmt.Errorf("目标 %s: %w", t.ID, err)
	}
	return json.Marshal(targetJSON{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		ThumbnailURL: t.ThumbnailURL,
		TileSource:   src,
	})
}

// UnmarshalJSON 还原瓦片源
func (t *TargetImage) UnmarshalJSON(data []byte) error {
	var raw targetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	src, err := tiles.UnmarshalSource(raw.TileSource)
	if err != nil {
		return fmt.Errorf("目标 %s: %w", raw.ID, err)
	}
	*t = TargetImage{
		ID:           raw.ID,
		Name:         raw.Name,
		Description:  raw.Description,
		ThumbnailURL: raw.ThumbnailURL,
		TileSource:   src,
	}
	return nil
}

// Provider 目录来源
type Provider interface {
	FetchCatalog(ctx context.Context) ([]TargetImage, error)
}
