package forum

import (
	"sort"

	"github.com/npezzotti/cryptoforum/internal/types"
)

// Ordered returns the render order of a room: the first occurrence of
// each id, sorted ascending by timestamp. Items with equal timestamps
// keep their insertion order. The input is not modified.
func Ordered(items []types.Item) []types.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]types.Item, 0, len(items))

	for _, item := range items {
		id := item.Id()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortKey() < out[j].SortKey()
	})

	return out
}
