package catalog

import (
	"context"
	"fmt"

	"deepspace-observatory/src/core/tiles"
	"deepspace-observatory/src/core/utils"
	"deepspace-observatory/src/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StoreProvider 数据库中的目录
type StoreProvider struct {
	db     *gorm.DB
	logger *utils.Logger
}

// NewStoreProvider 创建数据库目录
func NewStoreProvider(db *gorm.DB, logger *utils.Logger) *StoreProvider {
	return &StoreProvider{db: db, logger: logger}
}

// Seed 表为空时写入初始目录
func (p *StoreProvider) Seed(ctx context.Context, targets []TargetImage) error {
	var count int64
	if err := p.db.WithContext(ctx).Model(&models.Target{}).Count(&count).Error; err != nil {
		return fmt.Errorf("查询目录失败: %w", err)
	}
	if count > 0 {
		return nil
	}

	rows := make([]models.Target, 0, len(targets))
	for i, t := range targets {
		src, err := tiles.MarshalSource(t.TileSource)
		if err != nil {
			return fmt.Errorf("目标 %s: %w", t.ID, err)
		}
		rows = append(rows, models.Target{
			ID:           t.ID,
			Name:         t.Name,
			Description:  t.Description,
			ThumbnailURL: t.ThumbnailURL,
			TileSource:   datatypes.JSON(src),
			Position:     i,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := p.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("写入初始目录失败: %w", err)
	}
	p.logger.Info("初始目录写入完成", map[string]interface{}{"count": len(rows)})
	return nil
}

// FetchCatalog 实现 Provider 接口，无法解析的记录跳过并记录日志
func (p *StoreProvider) FetchCatalog(ctx context.Context) ([]TargetImage, error) {
	var rows []models.Target
	if err := p.db.WithContext(ctx).Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取目录失败: %w", err)
	}

	targets := make([]TargetImage, 0, len(rows))
	for _, row := range rows {
		src, err := tiles.UnmarshalSource([]byte(row.TileSource))
		if err != nil {
			p.logger.Warn("跳过无效的目录记录", map[string]interface{}{
				"id":    row.ID,
				"error": err.Error(),
			})
			continue
		}
		targets = append(targets, TargetImage{
			ID:           row.ID,
			Name:         row.Name,
			Description:  row.Description,
			ThumbnailURL: row.ThumbnailURL,
			TileSource:   src,
		})
	}
	return targets, nil
}
