package geo

import (
	"sort"

	"github.com/antzucaro/matchr"

	"github.com/John-Robertt/marcatop/internal/domain"
)

// JoinedShape 是连接了球员数的多边形；Count 为 nil 表示该国没有球员。
type JoinedShape struct {
	Shape
	Count *int
}

// minSuggestScore 以下的相似度不给出建议。
const minSuggestScore = 0.8

// Join 按小写国家名把国籍频数左连接到多边形上。
// 找不到多边形的国籍作为 UnmatchedCountry 返回（按 count 降序、name 升序），
// 这些球员不会出现在地图上。
func Join(shapes []Shape, nationality domain.FreqTable) ([]JoinedShape, []domain.UnmatchedCountry) {
	counts := make(map[string]int, len(nationality))
	names := make(map[string]string, len(nationality))
	for _, c := range nationality {
		k := Key(c.Value)
		counts[k] += c.N
		if _, ok := names[k]; !ok {
			names[k] = c.Value
		}
	}

	known := make(map[string]bool, len(shapes))
	out := make([]JoinedShape, 0, len(shapes))
	for _, s := range shapes {
		known[s.Key] = true
		js := JoinedShape{Shape: s}
		if n, ok := counts[s.Key]; ok {
			n := n
			js.Count = &n
		}
		out = append(out, js)
	}

	var unmatched []domain.UnmatchedCountry
	for k, n := range counts {
		if known[k] {
			continue
		}
		unmatched = append(unmatched, domain.UnmatchedCountry{
			Name:       names[k],
			Count:      n,
			Suggestion: suggest(k, shapes),
		})
	}
	sort.Slice(unmatched, func(i, j int) bool {
		if unmatched[i].Count != unmatched[j].Count {
			return unmatched[i].Count > unmatched[j].Count
		}
		return unmatched[i].Name < unmatched[j].Name
	})
	return out, unmatched
}

// suggest 返回 Jaro-Winkler 最相近的多边形名称（低于阈值返回空）。
func suggest(key string, shapes []Shape) string {
	best, bestScore := "", 0.0
	for _, s := range shapes {
		score := matchr.JaroWinkler(key, s.Key, false)
		if score > bestScore || (score == bestScore && s.Name < best) {
			best, bestScore = s.Name, score
		}
	}
	if bestScore < minSuggestScore {
		return ""
	}
	return best
}

// CountRange 返回已连接多边形中球员数的最小值与最大值（没有任何连接时均为 0）。
func CountRange(joined []JoinedShape) (lo, hi int) {
	first := true
	for _, j := range joined {
		if j.Count == nil {
			continue
		}
		if first {
			lo, hi, first = *j.Count, *j.Count, false
			continue
		}
		lo = min(lo, *j.Count)
		hi = max(hi, *j.Count)
	}
	return lo, hi
}
