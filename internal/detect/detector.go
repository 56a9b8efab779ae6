package detect

import (
	"context"
	"log/slog"

	"github.com/inkdust2021/promptveil/internal/engine"
)

// Detector proposes sensitive spans over a text. Backends (pattern rules,
// remote analyzers, models) all hide behind this interface; nothing
// downstream branches on backend identity.
type Detector interface {
	Name() string
	Detect(ctx context.Context, text string) ([]engine.Span, error)
}

// Pipeline runs a fixed set of detectors over one text and filters their
// candidates by confidence before overlap resolution. A Pipeline is an
// explicitly constructed value handed to whoever needs it — never a package
// global — so concurrent requests share no mutable detection state.
type Pipeline struct {
	detectors []Detector
	threshold float64
	perType   map[engine.EntityType]float64
}

// NewPipeline creates a pipeline with a default minimum score. Candidates
// scoring below the threshold are dropped before overlap resolution, so a
// low-confidence span can never displace a high-confidence one it overlaps.
func NewPipeline(threshold float64, detectors ...Detector) *Pipeline {
	return &Pipeline{
		detectors: detectors,
		threshold: threshold,
		perType:   make(map[engine.EntityType]float64),
	}
}

// SetTypeThreshold overrides the minimum score for one entity type.
func (p *Pipeline) SetTypeThreshold(typ engine.EntityType, min float64) {
	p.perType[typ] = min
}

// Detect collects candidates from every detector. A failing detector
// contributes an empty span set instead of failing the request: other
// backends may still have produced valid spans, so the pipeline degrades to
// "no redaction by that detector" (logged at warn).
func (p *Pipeline) Detect(ctx context.Context, text string) []engine.Span {
	var candidates []engine.Span
	for _, d := range p.detectors {
		spans, err := d.Detect(ctx, text)
		if err != nil {
			slog.Warn("Detector unavailable, skipping its contribution",
				"detector", d.Name(), "error", err)
			continue
		}
		candidates = append(candidates, spans...)
	}

	if len(candidates) == 0 {
		return nil
	}
	kept := candidates[:0]
	for _, s := range candidates {
		if s.Score < p.minScore(s.Type) {
			continue
		}
		kept = append(kept, s)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func (p *Pipeline) minScore(typ engine.EntityType) float64 {
	if min, ok := p.perType[typ]; ok {
		return min
	}
	return p.threshold
}
