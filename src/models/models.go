package models

import (
	"gorm.io/datatypes"
)

// Target 目录中的一个观测目标
type Target struct {
	ID           string         `gorm:"primaryKey;size:64"`
	Name         string         `gorm:"size:255;not null"`
	Description  string         `gorm:"type:text"`
	ThumbnailURL string         `gorm:"size:512"`
	TileSource   datatypes.JSON // 带type字段的瓦片源描述
	Position     int            // 展示顺序
}
