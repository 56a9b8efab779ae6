package engine

import "regexp"

// tokenPattern is the placeholder wire grammar: "<" ENTITY_TYPE "_" INTEGER ">"
// with ENTITY_TYPE in [A-Z_]+ and INTEGER >= 1. Anything the external
// processor emits that matches this grammar is treated as a placeholder
// claim; anything else (e.g. "<PERSON_0>", "<person_1>") is ordinary text.
var tokenPattern = regexp.MustCompile(`<[A-Z_]+_[1-9][0-9]*>`)

// RestoreKnown replaces known placeholder tokens with their originals but
// leaves unrecognized tokens in place. It exists for diagnostics (exposing
// the pre-cleanup intermediate); Reconstruct is the lossy final pass.
func RestoreKnown(text string, mapping []MappingEntry) string {
	reverse := make(map[string]string, len(mapping))
	for _, e := range mapping {
		reverse[e.Placeholder] = e.Original
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		if original, ok := reverse[token]; ok {
			return original
		}
		return token
	})
}

// ReconstructStats counts what happened during one reconstruction pass.
type ReconstructStats struct {
	Restored int // tokens replaced with their recorded original
	Stripped int // well-formed tokens absent from the mapping, removed
}

// Reconstruct replaces every placeholder token in text with its recorded
// original value. Tokens matching the grammar but missing from the mapping
// are hallucinations (or corruptions) by the external processor and are
// stripped to the empty string — a deliberate lossy fallback, not an error.
// An empty mapping still runs the strip pass.
func Reconstruct(text string, mapping []MappingEntry) string {
	out, _ := ReconstructWithStats(text, mapping)
	return out
}

// ReconstructWithStats is Reconstruct plus restore/strip counts.
//
// 这里刻意用一次正则遍历完成“还原 + 清理”，而不是逐条 ReplaceAll 后再清理：
// 替换产生的文本不会被重新扫描，因此即使某个原文本身长得像占位符
// （比如用户的原始输入就包含 "<PERSON_2>"），还原后也不会被第二轮误删。
func ReconstructWithStats(text string, mapping []MappingEntry) (string, ReconstructStats) {
	reverse := make(map[string]string, len(mapping))
	for _, e := range mapping {
		reverse[e.Placeholder] = e.Original
	}

	var stats ReconstructStats
	out := tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		if original, ok := reverse[token]; ok {
			stats.Restored++
			return original
		}
		stats.Stripped++
		return ""
	})
	return out, stats
}
