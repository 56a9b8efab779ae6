package detect

import (
	"fmt"

	"github.com/inkdust2021/promptveil/internal/config"
	"github.com/inkdust2021/promptveil/internal/engine"
)

// NewPipelineFromConfig builds the detection pipeline described by cfg: one
// pattern detector carrying the built-in rules plus user keywords/regexes,
// and optionally a remote analyzer detector.
func NewPipelineFromConfig(cfg config.DetectConfig) (*Pipeline, error) {
	d := NewPatternDetector()

	for _, name := range cfg.Builtin {
		if err := d.AddBuiltin(name); err != nil {
			return nil, fmt.Errorf("builtin rule %q: %w", name, err)
		}
	}
	for _, kw := range cfg.Keywords {
		if err := d.AddKeyword(kw.Value, kw.Category); err != nil {
			return nil, err
		}
	}
	for _, rp := range cfg.Regex {
		if err := d.AddRegex(rp.Pattern, rp.Category, rp.Score); err != nil {
			return nil, err
		}
	}
	for _, ex := range cfg.Exclude {
		d.AddExclude(ex)
	}

	detectors := []Detector{d}
	if cfg.Analyzer.Enabled && cfg.Analyzer.URL != "" {
		detectors = append(detectors, NewAnalyzerDetector(
			cfg.Analyzer.URL,
			cfg.Analyzer.Language,
			cfg.Analyzer.Entities,
			cfg.Analyzer.TimeoutDuration(),
		))
	}

	p := NewPipeline(cfg.ScoreThreshold, detectors...)
	for typ, min := range cfg.TypeThresholds {
		p.SetTypeThreshold(engine.EntityType(typ), min)
	}
	return p, nil
}
