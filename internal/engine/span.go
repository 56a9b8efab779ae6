package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// EntityType is a normalized entity category name ("PERSON", "CREDIT_CARD").
// 为保证占位符 <TYPE_n> 可被稳定识别与还原，类型名只允许 [A-Z_]+（见 token 语法）。
type EntityType string

// ErrInvalidSpan reports a malformed detection range: zero-length, inverted,
// negative, or (at redaction time) out of the text's bounds.
var ErrInvalidSpan = errors.New("invalid span")

// Span is a single detection result over one text buffer.
//
// Start/End are half-open byte offsets into the text the detector scanned.
// The whole engine works in byte offsets; adapters for detectors that report
// rune offsets must convert before constructing a Span (see detect.AnalyzerDetector).
// Spans are value types: produced fresh per redaction call, filtered and
// reordered but never mutated.
type Span struct {
	Type   EntityType
	Start  int
	End    int
	Score  float64
	Source string
}

// NewSpan validates and builds a Span. Zero-length and inverted ranges are
// rejected here so they can never reach the overlap resolver; out-of-bounds
// ranges are only detectable later, against a concrete text (see Redact).
func NewSpan(typ string, start, end int, score float64, source string) (Span, error) {
	t := NormalizeType(typ)
	if t == "" {
		return Span{}, fmt.Errorf("%w: empty entity type %q", ErrInvalidSpan, typ)
	}
	if start < 0 {
		return Span{}, fmt.Errorf("%w: negative start %d", ErrInvalidSpan, start)
	}
	if end <= start {
		return Span{}, fmt.Errorf("%w: range [%d,%d) is empty or inverted", ErrInvalidSpan, start, end)
	}
	return Span{Type: t, Start: start, End: end, Score: score, Source: source}, nil
}

// overlaps reports whether two spans share at least one byte.
func (s Span) overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// NormalizeType folds an arbitrary detector-supplied category name into the
// [A-Z_]+ alphabet of the placeholder grammar:
//   - 小写转大写；空白与 '-' 归一为 '_'
//   - 其余字符（包括数字）直接丢弃，避免产生无法还原的占位符
//
// An empty result means the name had no usable characters; callers treat that
// as an invalid span.
func NormalizeType(s string) EntityType {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
			lastUnderscore = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_' || r == '-' || unicode.IsSpace(r):
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			// drop
		}
	}
	return EntityType(strings.Trim(b.String(), "_"))
}
