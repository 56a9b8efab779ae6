package engine

import "sort"

// Resolve reduces a set of possibly overlapping detections over one text to a
// non-overlapping selection. The input is not mutated.
//
// 算法：按 (start 升序, end 降序) 排序后从左到右扫描——同一起点时先看最长的命中。
// 候选与最近一个已接受的 span 重叠时，比较 score，高者胜出；相等则保留先接受的
// （稳定性）。这是一个贪心的区间调度启发式，不是全局最优：三个以上连环重叠的
// span 按从左到右逐对裁决，可能放弃一个全局上更优的组合。
func Resolve(spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}

	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End > sorted[j].End
	})

	accepted := make([]Span, 0, len(sorted))
	for _, cand := range sorted {
		if len(accepted) == 0 {
			accepted = append(accepted, cand)
			continue
		}
		last := accepted[len(accepted)-1]
		if cand.Start >= last.End {
			accepted = append(accepted, cand)
			continue
		}
		// Conflict. Identical ranges with different types are a genuine
		// conflict too: only one type can occupy the range.
		if cand.Score > last.Score {
			accepted[len(accepted)-1] = cand
		}
	}
	return accepted
}
