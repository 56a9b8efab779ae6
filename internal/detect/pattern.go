package detect

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/inkdust2021/promptveil/internal/engine"
)

const (
	// keywordScore is the confidence for exact keyword hits. A literal match
	// is as certain as this detector gets.
	keywordScore = 1.0
	// defaultRegexScore applies to user-supplied regex rules that don't set
	// their own confidence.
	defaultRegexScore = 0.85
)

type patternRule struct {
	re       *regexp.Regexp
	category engine.EntityType
	score    float64
}

// PatternDetector matches configured keywords and regex rules. It is the
// in-process pattern backend; scores are static per rule since a regex either
// matches or it doesn't.
type PatternDetector struct {
	keywords map[string]engine.EntityType
	rules    []patternRule
	exclude  map[string]bool
}

// NewPatternDetector creates an empty pattern detector.
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		keywords: make(map[string]engine.EntityType),
		exclude:  make(map[string]bool),
	}
}

// Name implements Detector.
func (d *PatternDetector) Name() string { return "pattern" }

// AddKeyword registers an exact keyword for a category.
func (d *PatternDetector) AddKeyword(keyword, category string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("empty keyword")
	}
	typ := engine.NormalizeType(category)
	if typ == "" {
		return fmt.Errorf("keyword %q: unusable category %q", keyword, category)
	}
	d.keywords[keyword] = typ
	return nil
}

// AddRegex registers a regex rule. When the pattern has a capturing group the
// first group's range is reported instead of the whole match, so rules can
// anchor on boundary characters without redacting them.
func (d *PatternDetector) AddRegex(pattern, category string, score float64) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	typ := engine.NormalizeType(category)
	if typ == "" {
		return fmt.Errorf("pattern %q: unusable category %q", pattern, category)
	}
	if score <= 0 {
		score = defaultRegexScore
	}
	d.rules = append(d.rules, patternRule{re: re, category: typ, score: score})
	return nil
}

// AddExclude marks a literal value to never be reported.
func (d *PatternDetector) AddExclude(value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		d.exclude[value] = true
	}
}

// Detect implements Detector. Offsets are byte offsets into text.
func (d *PatternDetector) Detect(_ context.Context, text string) ([]engine.Span, error) {
	var spans []engine.Span

	for keyword, category := range d.keywords {
		idx := 0
		for {
			pos := strings.Index(text[idx:], keyword)
			if pos == -1 {
				break
			}
			start := idx + pos
			end := start + len(keyword)
			if !d.exclude[text[start:end]] {
				s, err := engine.NewSpan(string(category), start, end, keywordScore, d.Name())
				if err == nil {
					spans = append(spans, s)
				}
			}
			idx = end
		}
	}

	for _, rule := range d.rules {
		locs := rule.re.FindAllStringSubmatchIndex(text, -1)
		for _, loc := range locs {
			if len(loc) < 2 {
				continue
			}
			start, end := loc[0], loc[1]
			// 有捕获组时只上报第一个捕获组的范围（保留规则锚定的边界字符）。
			if len(loc) >= 4 && loc[2] >= 0 && loc[3] >= 0 {
				start, end = loc[2], loc[3]
			}
			if start < 0 || end <= start || end > len(text) {
				continue
			}
			if d.exclude[text[start:end]] {
				continue
			}
			s, err := engine.NewSpan(string(rule.category), start, end, rule.score, d.Name())
			if err != nil {
				continue
			}
			spans = append(spans, s)
		}
	}

	return spans, nil
}
