package config

import (
	"strings"
	"unicode"
)

// SanitizePatternValue 清理用户输入的匹配值：
// - 去除前后空白
// - 移除不可见控制字符/格式字符（如 0x1F、BOM、零宽字符等）
//
// 目的：避免“看起来一样但实际不匹配”的隐形字符导致规则不生效。
// 分类名的归一化见 engine.NormalizeType（占位符语法只允许 [A-Z_]+）。
func SanitizePatternValue(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		// C0 控制字符与 DEL
		if r < 0x20 || r == 0x7f {
			continue
		}
		// 其他控制/格式字符（包含常见零宽字符、BOM 等）
		if unicode.IsControl(r) || unicode.In(r, unicode.Cf) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
