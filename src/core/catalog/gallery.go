package catalog

import (
	"sort"
	"strings"
)

// SortOrder 画廊排序方式
type SortOrder string

const (
	SortAsc  SortOrder = "a-z"
	SortDesc SortOrder = "z-a"
)

// ParseSortOrder 未知值按升序处理
func ParseSortOrder(s string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(s))) == SortDesc {
		return SortDesc
	}
	return SortAsc
}

// Filter 名称或描述包含query（不区分大小写），空query返回全部
func Filter(targets []TargetImage, query string) []TargetImage {
	q := strings.ToLower(query)
	out := make([]TargetImage, 0, len(targets))
	for _, t := range targets {
		if q == "" ||
			strings.Contains(strings.ToLower(t.Name), q) ||
			strings.Contains(strings.ToLower(t.Description), q) {
			out = append(out, t)
		}
	}
	return out
}

// Sort 按名称排序，返回新切片
func Sort(targets []TargetImage, order SortOrder) []TargetImage {
	out := make([]TargetImage, len(targets))
	copy(out, targets)
	sort.SliceStable(out, func(i, j int) bool {
		if order == SortDesc {
			return out[i].Name > out[j].Name
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Gallery 先过滤再排序
func Gallery(targets []TargetImage, query string, order SortOrder) []TargetImage {
	return Sort(Filter(targets, query), order)
}

// Find 按ID查找
func Find(targets []TargetImage, id string) (TargetImage, bool) {
	for _, t := range targets {
		if t.ID == id {
			return t, true
		}
	}
	return TargetImage{}, false
}
