package detect

import "fmt"

type builtinRule struct {
	pattern  string
	category string
	score    float64
}

var builtinRules = map[string]builtinRule{
	// 内置规则面向“开箱即用”的覆盖面，不追求检出精度（检出质量不在引擎职责内）。
	// 分类名只用 [A-Z_]，否则占位符语法无法承载（见 engine.NormalizeType）。
	// 需要保留边界字符的规则使用捕获组，引擎只上报第一个捕获组的范围。

	"email": {
		pattern:  `(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`,
		category: "EMAIL",
		score:    0.95,
	},
	"us_phone": {
		pattern:  `(?:^|\D)(\(?\d{3}\)?[-. ]\d{3}[-. ]?\d{4})(?:$|\D)`,
		category: "PHONE",
		score:    0.7,
	},
	"us_ssn": {
		pattern:  `(?:^|\D)(\d{3}-\d{2}-\d{4})(?:$|\D)`,
		category: "SSN",
		score:    0.85,
	},
	"credit_card": {
		// 13-16 位，可带空格或连字符分隔；不做 Luhn 校验。
		pattern:  `(?:^|\D)(\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{1,4})(?:$|\D)`,
		category: "CREDIT_CARD",
		score:    0.75,
	},
	"china_phone": {
		pattern:  `(?:^|\D)(1[3-9]\d{9})(?:$|\D)`,
		category: "CHINA_PHONE",
		score:    0.8,
	},
	"china_id": {
		pattern:  `(?:^|\D)(\d{17}[\dXx])(?:$|\D)`,
		category: "CHINA_ID",
		score:    0.85,
	},
	"ip_address": {
		// 不校验每段 0-255 范围；目标是覆盖面而非精度。
		pattern:  `(?:\d{1,3}\.){3}\d{1,3}`,
		category: "IP_ADDRESS",
		score:    0.6,
	},
	"mac_address": {
		pattern:  `(?i)(?:[0-9a-f]{2}:){5}[0-9a-f]{2}`,
		category: "MAC_ADDRESS",
		score:    0.9,
	},
	"uuid": {
		pattern:  `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[1-5][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}`,
		category: "UUID",
		score:    0.95,
	},
	"api_key": {
		pattern:  `(?i)(?:api[_-]?key|access[_-]?key|secret[_-]?key|token)[\s:=]+([A-Za-z0-9_\-]{16,})`,
		category: "API_KEY",
		score:    0.8,
	},
}

// AddBuiltin enables one named builtin rule (typically driven by the
// detect.builtin config list).
func (d *PatternDetector) AddBuiltin(name string) error {
	rule, ok := builtinRules[name]
	if !ok {
		return fmt.Errorf("unknown builtin rule: %s", name)
	}
	return d.AddRegex(rule.pattern, rule.category, rule.score)
}
