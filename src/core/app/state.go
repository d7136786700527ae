package app

import (
	"deepspace-observatory/src/core/analysis"
	"deepspace-observatory/src/core/catalog"
	"deepspace-observatory/src/core/selection"
)

// Tab 信息面板标签页
type Tab string

const (
	TabDescription Tab = "description"
	TabAnalysis    Tab = "analysis"
)

// GalleryState 画廊浮层
type GalleryState struct {
	Open  bool              `json:"open"`
	Query string            `json:"query"`
	Sort  catalog.SortOrder `json:"sort"`
}

// State 整个页面的状态，所有修改都通过下面的纯函数完成
type State struct {
	CatalogLoading bool
	Catalog        []catalog.TargetImage
	CatalogError   string
	Current        *catalog.TargetImage
	Selection      *selection.Rect
	Payload        string // 已提取区域的data URL，空表示没有
	Analysis       analysis.State
	Tab            Tab
	Gallery        GalleryState
}

// Initial 启动时的状态，目录加载中
func Initial() State {
	return State{
		CatalogLoading: true,
		Analysis:       analysis.Idle(),
		Tab:            TabDescription,
		Gallery:        GalleryState{Sort: catalog.SortAsc},
	}
}

// NoTarget 目录加载完成但没有可显示的目标
func (s State) NoTarget() bool {
	return !s.CatalogLoading && s.Current == nil
}

// CatalogLoaded 目录加载结束，成功时默认选中第一个目标
func CatalogLoaded(s State, targets []catalog.TargetImage, err error) State {
	s.CatalogLoading = false
	if err != nil {
		s.Catalog = nil
		s.CatalogError = err.Error()
		return s
	}
	s.Catalog = targets
	s.CatalogError = ""
	if len(targets) > 0 {
		first := targets[0]
		s = resetTarget(s, &first)
	}
	return s
}

// SelectTarget 切换目标。选中当前目标时只关闭画廊
func SelectTarget(s State, id string) State {
	if s.Current != nil && s.Current.ID == id {
		s.Gallery.Open = false
		return s
	}
	t, ok := catalog.Find(s.Catalog, id)
	if !ok {
		return s
	}
	s = resetTarget(s, &t)
	s.Gallery.Open = false
	return s
}

func resetTarget(s State, t *catalog.TargetImage) State {
	s.Current = t
	s.Selection = nil
	s.Payload = ""
	s.Analysis = analysis.Idle()
	s.Tab = TabDescription
	return s
}

// SelectionChanged 选框变化。nil表示清空选区，同时清空载荷和分析结果
func SelectionChanged(s State, rect *selection.Rect) State {
	s.Selection = rect
	if rect == nil {
		s.Payload = ""
		s.Analysis = analysis.Idle()
		if s.Tab == TabAnalysis {
			s.Tab = TabDescription
		}
	}
	return s
}

// PayloadFinalized 框选完成得到的载荷，空串表示清除
func PayloadFinalized(s State, payload string) State {
	s.Payload = payload
	return s
}

// CanAnalyze 有载荷且没有进行中的请求
func (s State) CanAnalyze() bool {
	return s.Payload != "" && !s.Analysis.Loading()
}

// BeginAnalysis 开始分析，无载荷或已在进行时不变
func BeginAnalysis(s State) State {
	if !s.CanAnalyze() {
		return s
	}
	s.Analysis = analysis.Begin(s.Analysis)
	s.Tab = TabAnalysis
	return s
}

// SettleAnalysis 请求结束，无论成功失败都清除载荷
func SettleAnalysis(s State, text string, err error) State {
	if err != nil {
		s.Analysis = analysis.Fail(s.Analysis, err.Error())
	} else {
		s.Analysis = analysis.Succeed(s.Analysis, text)
	}
	s.Payload = ""
	return s
}

// DismissAnalysis 关闭分析结果，等同于清除选区
func DismissAnalysis(s State) State {
	return SelectionChanged(s, nil)
}

// OpenGallery 打开画廊，搜索和排序回到默认值，不影响当前目标
func OpenGallery(s State) State {
	s.Gallery = GalleryState{Open: true, Sort: catalog.SortAsc}
	return s
}

// CloseGallery 关闭画廊
func CloseGallery(s State) State {
	s.Gallery.Open = false
	return s
}

// SetGalleryQuery 设置搜索词
func SetGalleryQuery(s State, query string) State {
	s.Gallery.Query = query
	return s
}

// SetGallerySort 设置排序
func SetGallerySort(s State, order catalog.SortOrder) State {
	s.Gallery.Sort = order
	return s
}

// SetTab 切换标签页，未知值忽略
func SetTab(s State, tab Tab) State {
	if tab == TabDescription || tab == TabAnalysis {
		s.Tab = tab
	}
	return s
}

// VisibleGallery 画廊中当前可见的目标
func VisibleGallery(s State) []catalog.TargetImage {
	return catalog.Gallery(s.Catalog, s.Gallery.Query, s.Gallery.Sort)
}
