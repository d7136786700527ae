package app

import (
	"errors"
	"testing"

	"deepspace-observatory/src/core/analysis"
	"deepspace-observatory/src/core/catalog"
	"deepspace-observatory/src/core/selection"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaded() State {
	return CatalogLoaded(Initial(), catalog.DefaultTargets(), nil)
}

// busy 当前目标上已有选区、载荷和分析结果
func busy() State {
	s := loaded()
	s = SelectionChanged(s, &selection.Rect{X: 1, Y: 2, Width: 50, Height: 60})
	s = PayloadFinalized(s, "data:image/jpeg;base64,QUJD")
	s = BeginAnalysis(s)
	s = SettleAnalysis(s, "Spiral Galaxy", nil)
	s = SelectionChanged(s, &selection.Rect{X: 5, Y: 5, Width: 30, Height: 30})
	return PayloadFinalized(s, "data:image/jpeg;base64,REVG")
}

func TestCatalogLoaded(t *testing.T) {
	s := Initial()
	assert.True(t, s.CatalogLoading)
	assert.False(t, s.NoTarget())

	s = loaded()
	assert.False(t, s.CatalogLoading)
	require.NotNil(t, s.Current)
	assert.Equal(t, "lro-moon", s.Current.ID)

	failed := CatalogLoaded(Initial(), nil, errors.New("network down"))
	assert.False(t, failed.CatalogLoading)
	assert.Empty(t, failed.Catalog)
	assert.Equal(t, "network down", failed.CatalogError)
	assert.True(t, failed.NoTarget())

	empty := CatalogLoaded(Initial(), []catalog.TargetImage{}, nil)
	assert.True(t, empty.NoTarget())
}

func TestSelectTargetResetsEverything(t *testing.T) {
	states := map[string]State{
		"空闲":   loaded(),
		"有结果":  busy(),
		"分析中":  BeginAnalysis(busy()),
		"分析失败": SettleAnalysis(BeginAnalysis(busy()), "", errors.New("x")),
	}
	for name, s := range states {
		for _, target := range catalog.DefaultTargets() {
			if s.Current.ID == target.ID {
				continue
			}
			t.Run(name+"/"+target.ID, func(t *testing.T) {
				got := SelectTarget(OpenGallery(s), target.ID)
				require.NotNil(t, got.Current)
				assert.Equal(t, target.ID, got.Current.ID)
				assert.Nil(t, got.Selection)
				assert.Empty(t, got.Payload)
				assert.Equal(t, analysis.Idle(), got.Analysis)
				assert.Equal(t, TabDescription, got.Tab)
				assert.False(t, got.Gallery.Open)
			})
		}
	}
}

func TestSelectSameTargetOnlyClosesGallery(t *testing.T) {
	s := OpenGallery(busy())
	got := SelectTarget(s, "lro-moon")
	assert.False(t, got.Gallery.Open)
	assert.Equal(t, s.Payload, got.Payload)
	assert.Equal(t, s.Selection, got.Selection)
	assert.Equal(t, s.Analysis, got.Analysis)

	unknown := SelectTarget(s, "nope")
	assert.Equal(t, s, unknown)
}

func TestBeginAnalysisWithoutPayloadIsNoop(t *testing.T) {
	s := loaded()
	assert.Equal(t, s, BeginAnalysis(s))

	s = SelectionChanged(s, &selection.Rect{Width: 40, Height: 40})
	assert.Equal(t, s, BeginAnalysis(s))
}

func TestAnalysisLifecycle(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		err    error
		status analysis.Status
		msg    string
	}{
		{"成功", "Nebula", nil, analysis.StatusSuccess, "Nebula"},
		{"失败", "", errors.New("Failed to analyze region: quota"), analysis.StatusError, "Failed to analyze region: quota"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := busy()
			s = BeginAnalysis(s)
			assert.Equal(t, analysis.StatusLoading, s.Analysis.Status)
			assert.Equal(t, TabAnalysis, s.Tab)
			// 载荷在请求结束前保留，但不能重复开始
			assert.False(t, s.CanAnalyze())
			assert.Equal(t, s, BeginAnalysis(s))

			s = SettleAnalysis(s, tt.text, tt.err)
			assert.Equal(t, tt.status, s.Analysis.Status)
			assert.Equal(t, tt.msg, s.Analysis.Message())
			assert.Empty(t, s.Payload)
			assert.False(t, s.CanAnalyze())
		})
	}
}

func TestSelectionClearedResetsAnalysis(t *testing.T) {
	s := SettleAnalysis(BeginAnalysis(busy()), "text", nil)
	require.Equal(t, TabAnalysis, s.Tab)

	s = SelectionChanged(s, nil)
	assert.Nil(t, s.Selection)
	assert.Empty(t, s.Payload)
	assert.Equal(t, analysis.Idle(), s.Analysis)
	assert.Equal(t, TabDescription, s.Tab)

	d := DismissAnalysis(SettleAnalysis(BeginAnalysis(busy()), "text", nil))
	assert.Equal(t, s.Analysis, d.Analysis)
	assert.Nil(t, d.Selection)
}

func TestGallery(t *testing.T) {
	s := loaded()
	s = OpenGallery(s)
	s = SetGalleryQuery(s, "moon")
	visible := VisibleGallery(s)
	require.Len(t, visible, 1)
	assert.Equal(t, "Lunar Reconnaissance Orbiter", visible[0].Name)

	s = SetGalleryQuery(s, "")
	s = SetGallerySort(s, catalog.SortDesc)
	visible = VisibleGallery(s)
	assert.Equal(t, "Whirlpool Galaxy (M51)", visible[0].Name)

	// 关闭画廊不改变当前目标，重新打开时搜索条件复位
	before := s.Current
	s = CloseGallery(s)
	assert.Equal(t, before, s.Current)
	s = OpenGallery(s)
	assert.Equal(t, GalleryState{Open: true, Sort: catalog.SortAsc}, s.Gallery)
}

func TestSetTab(t *testing.T) {
	s := SetTab(loaded(), TabAnalysis)
	assert.Equal(t, TabAnalysis, s.Tab)
	s = SetTab(s, Tab("bogus"))
	assert.Equal(t, TabAnalysis, s.Tab)
	assert.Equal(t, TabDescription, SetTab(s, TabDescription).Tab)
}
