package session

import (
	"deepspace-observatory/src/core/analysis"
	"deepspace-observatory/src/core/app"
	"deepspace-observatory/src/core/catalog"
	"deepspace-observatory/src/core/selection"
	"deepspace-observatory/src/core/viewer"
)

// GalleryView 画廊浮层，只在打开时带目标列表
type GalleryView struct {
	Open    bool                  `json:"open"`
	Query   string                `json:"query"`
	Sort    catalog.SortOrder     `json:"sort"`
	Targets []catalog.TargetImage `json:"targets,omitempty"`
}

// ViewerView 查看器状态
type ViewerView struct {
	Status  viewer.Status     `json:"status"`
	Loading bool              `json:"loading"`
	View    *viewer.ViewState `json:"view,omitempty"`
}

// Snapshot 发给客户端的完整状态
type Snapshot struct {
	Type           string               `json:"type"`
	SessionID      string               `json:"session_id"`
	CatalogLoading bool                 `json:"catalog_loading"`
	CatalogError   string               `json:"catalog_error,omitempty"`
	NoTarget       bool                 `json:"no_target"`
	Current        *catalog.TargetImage `json:"current"`
	Targets        int                  `json:"targets"`
	Gallery        GalleryView          `json:"gallery"`
	Viewer         ViewerView           `json:"viewer"`
	Selection      *selection.Rect      `json:"selection"`
	Dragging       bool                 `json:"dragging"`
	CanAnalyze     bool                 `json:"can_analyze"`
	Analysis       analysis.State       `json:"analysis"`
	Tab            app.Tab              `json:"tab"`
}

// snapshot 必须持有 s.mu
func (s *Session) snapshot() Snapshot {
	st := s.state
	snap := Snapshot{
		Type:           "state",
		SessionID:      s.id,
		CatalogLoading: st.CatalogLoading,
		CatalogError:   st.CatalogError,
		NoTarget:       st.NoTarget(),
		Current:        st.Current,
		Targets:        len(st.Catalog),
		Gallery: GalleryView{
			Open:  st.Gallery.Open,
			Query: st.Gallery.Query,
			Sort:  st.Gallery.Sort,
		},
		Selection: st.Selection,
		Dragging:  s.tracker.Phase == selection.PhaseDragging,
		// 按钮只在有选区和载荷时出现
		CanAnalyze: st.Selection != nil && st.CanAnalyze(),
		Analysis:   st.Analysis,
		Tab:        st.Tab,
	}
	if st.Gallery.Open {
		snap.Gallery.Targets = app.VisibleGallery(st)
	}

	status := s.adapter.Status()
	snap.Viewer = ViewerView{Status: status, Loading: status == viewer.StatusLoading}
	if vs, err := s.adapter.ViewState(); err == nil {
		snap.Viewer.View = &vs
	}
	return snap
}
