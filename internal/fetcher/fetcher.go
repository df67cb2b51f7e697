// Package fetcher 分页增量拉取：外部接口按时间倒序分页，只取游标之后的新记录。
package fetcher

import (
	"context"
	"fmt"
	"sort"

	"GachaSync/internal/interfaces"
)

// DefaultMaxPages 单次拉取的页数上限
const DefaultMaxPages = 75

// PageFunc 拉取第 page 页（从1开始），页内按时间倒序
type PageFunc[T interfaces.Timestamped] func(ctx context.Context, page int) ([]T, error)

// SplitNewer 返回页内时间戳严格大于 cursor 的前缀长度（页内倒序，二分查找）
func SplitNewer[T interfaces.Timestamped](page []T, cursor int64) int {
	return sort.Search(len(page), func(i int) bool { return page[i].Timestamp() <= cursor })
}

// FetchNew 从第1页开始拉取，直到某页出现不新于 cursor 的记录、遇到空页或达到页数上限。
// 返回按时间正序排列的新记录；cursor 为0时拉取全部。任一页失败则整体失败。
func FetchNew[T interfaces.Timestamped](ctx context.Context, fetch PageFunc[T], cursor int64, maxPages int) ([]T, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	var out []T
	for page := 1; page <= maxPages; page++ {
		items, err := fetch(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("拉取第%d页失败: %w", page, err)
		}
		if len(items) == 0 {
			break
		}
		split := SplitNewer(items, cursor)
		out = append(out, items[:split]...)
		if split < len(items) {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
