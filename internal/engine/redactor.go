package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Result is the output of one redaction pass. Mapping is everything needed to
// reverse the substitution; the engine keeps no state across calls, so the
// caller owns persistence or forwarding of both fields.
type Result struct {
	RedactedText string         `json:"redacted_text"`
	Mapping      []MappingEntry `json:"mapping"`
}

// Redact resolves overlaps among the detections and splices a canonical
// placeholder over every surviving span. It is all-or-nothing: any span that
// falls outside the text fails the whole call before a single byte is
// touched, since a partially substituted buffer would be consistent with no
// mapping.
//
// 替换按 start 降序（从右往左）进行：占位符长度与原文不同，会移动其右侧所有
// 偏移；先处理右侧意味着未处理的左侧 span 引用的前缀始终未被改动。副作用是
// 计数器按“处理顺序”递增——同一类型多个不同值时，最靠右的先拿到 _1。这是
// 对外承诺的契约（有测试钉住），不是实现巧合。
func Redact(text string, spans []Span) (Result, error) {
	for _, s := range spans {
		if s.Start < 0 || s.End <= s.Start {
			return Result{}, fmt.Errorf("%w: %s range [%d,%d)", ErrInvalidSpan, s.Type, s.Start, s.End)
		}
		if s.End > len(text) {
			return Result{}, fmt.Errorf("%w: %s range [%d,%d) exceeds text length %d", ErrInvalidSpan, s.Type, s.Start, s.End, len(text))
		}
	}

	resolved := Resolve(spans)
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].Start > resolved[j].Start
	})

	table := NewTable()
	buf := text
	for _, s := range resolved {
		// Offsets index the original text; the prefix buf[:s.Start] is still
		// identical to it because all earlier splices happened at >= s.End.
		placeholder, _ := table.Placeholder(text[s.Start:s.End], s.Type)
		var b strings.Builder
		b.Grow(len(buf) - (s.End - s.Start) + len(placeholder))
		b.WriteString(buf[:s.Start])
		b.WriteString(placeholder)
		b.WriteString(buf[s.End:])
		buf = b.String()
	}

	return Result{RedactedText: buf, Mapping: table.Entries()}, nil
}
