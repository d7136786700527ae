package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deepspace-observatory/src/core/catalog"
	"deepspace-observatory/src/core/selection"
	"deepspace-observatory/src/core/utils"
	"deepspace-observatory/src/core/viewer"

	"github.com/mark3labs/mcp-go/mcp"
)

// Analyzer 区域分析
type Analyzer interface {
	Analyze(ctx context.Context, payload string) (string, error)
}

// RegionTools 目录和区域分析工具的依赖
type RegionTools struct {
	Catalog       catalog.Provider
	EngineFactory viewer.EngineFactory
	Analyzer      Analyzer
	Quality       int
	Timeout       time.Duration
	Logger        *utils.Logger
}

// AddToolListTargets 注册 list_targets
func (s *ToolServer) AddToolListTargets(deps RegionTools) error {
	tool := mcp.NewTool("list_targets",
		mcp.WithDescription("列出可以浏览的天文目标图像，可按名称或描述搜索"),
		mcp.WithString("query", mcp.Description("搜索关键字，不区分大小写")),
		mcp.WithString("sort", mcp.Description("a-z 或 z-a")),
	)
	return s.AddTool(tool, func(ctx context.Context, args map[string]interface{}) (string, error) {
		targets, err := deps.Catalog.FetchCatalog(ctx)
		if err != nil {
			return "", err
		}
		query, _ := args["query"].(string)
		order, _ := args["sort"].(string)

		type item struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		items := []item{}
		for _, t := range catalog.Gallery(targets, query, catalog.ParseSortOrder(order)) {
			items = append(items, item{ID: t.ID, Name: t.Name, Description: t.Description})
		}
		data, err := json.Marshal(items)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}

// AddToolDescribeRegion 注册 describe_region，在无界面的查看器中定位区域并分析
func (s *ToolServer) AddToolDescribeRegion(deps RegionTools) error {
	tool := mcp.NewTool("describe_region",
		mcp.WithDescription("描述目标图像中的一个矩形区域。坐标以图像宽度为1归一化，y方向按相同比例"),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("list_targets 返回的目标ID")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("区域左上角x")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("区域左上角y")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("区域宽度")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("区域高度")),
	)
	return s.AddTool(tool, func(ctx context.Context, args map[string]interface{}) (string, error) {
		id, _ := args["target_id"].(string)
		region, err := regionArg(args)
		if err != nil {
			return "", err
		}
		if deps.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deps.Timeout)
			defer cancel()
		}

		targets, err := deps.Catalog.FetchCatalog(ctx)
		if err != nil {
			return "", err
		}
		target, ok := catalog.Find(targets, id)
		if !ok {
			return "", fmt.Errorf("目标不存在: %s", id)
		}

		payload, err := captureRegion(ctx, deps, target, region)
		if err != nil {
			return "", err
		}
		return deps.Analyzer.Analyze(ctx, payload)
	})
}

func regionArg(args map[string]interface{}) (viewer.Rect, error) {
	var vals [4]float64
	for i, key := range []string{"x", "y", "width", "height"} {
		v, ok := args[key].(float64)
		if !ok {
			return viewer.Rect{}, fmt.Errorf("缺少数值参数: %s", key)
		}
		vals[i] = v
	}
	r := viewer.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	if r.Width <= 0 || r.Height <= 0 {
		return viewer.Rect{}, fmt.Errorf("区域宽高必须为正: %gx%g", r.Width, r.Height)
	}
	return r, nil
}

// captureRegion 打开目标，缩放到区域后按选区规则提取JPEG
func captureRegion(ctx context.Context, deps RegionTools, target catalog.TargetImage, region viewer.Rect) (string, error) {
	adapter := viewer.NewAdapter(deps.EngineFactory, deps.Logger)
	defer adapter.Close()

	if err := adapter.Open(ctx, target.TileSource); err != nil {
		return "", err
	}
	if err := adapter.FitBounds(ctx, region); err != nil {
		return "", err
	}

	tl, err := adapter.PixelFromPoint(viewer.Point{X: region.X, Y: region.Y})
	if err != nil {
		return "", err
	}
	br, err := adapter.PixelFromPoint(viewer.Point{X: region.X + region.Width, Y: region.Y + region.Height})
	if err != nil {
		return "", err
	}
	rect := selection.Normalize(tl, br)

	surface, err := adapter.Surface()
	if err != nil {
		return "", err
	}
	return selection.Extract(surface, rect, deps.Quality)
}

// RegisterObservatoryTools 注册全部工具
func (s *ToolServer) RegisterObservatoryTools(deps RegionTools) error {
	if err := s.AddToolListTargets(deps); err != nil {
		return err
	}
	return s.AddToolDescribeRegion(deps)
}
