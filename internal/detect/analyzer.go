package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/inkdust2021/promptveil/internal/engine"
)

// AnalyzerDetector queries a Presidio-style analyzer service over HTTP. The
// analyzer reports character (rune) offsets, matching how such services index
// text; the adapter converts them to the engine's byte offsets and validates
// every result before it can reach the resolver.
type AnalyzerDetector struct {
	url      string
	language string
	entities []string
	client   *http.Client
}

// NewAnalyzerDetector creates a remote analyzer backend. entities limits what
// the analyzer is asked for; nil means the analyzer's defaults.
func NewAnalyzerDetector(url, language string, entities []string, timeout time.Duration) *AnalyzerDetector {
	if language == "" {
		language = "en"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AnalyzerDetector{
		url:      url,
		language: language,
		entities: entities,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Detector.
func (d *AnalyzerDetector) Name() string { return "analyzer" }

type analyzerRequest struct {
	Text     string   `json:"text"`
	Language string   `json:"language"`
	Entities []string `json:"entities,omitempty"`
}

type analyzerResult struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Detect implements Detector. A transport or decode failure is returned as-is
// so the pipeline can degrade to "no redaction by this detector".
func (d *AnalyzerDetector) Detect(ctx context.Context, text string) ([]engine.Span, error) {
	body, err := json.Marshal(analyzerRequest{Text: text, Language: d.language, Entities: d.entities})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	var results []analyzerResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode analyzer response: %w", err)
	}

	// byteAt[i] 是第 i 个 rune 的字节偏移；末尾补 len(text) 使 end 可以取到文本末。
	byteAt := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		byteAt = append(byteAt, i)
	}
	byteAt = append(byteAt, len(text))

	var spans []engine.Span
	for _, r := range results {
		if r.Start < 0 || r.End <= r.Start || r.End >= len(byteAt) {
			slog.Warn("Analyzer result out of range, dropped",
				"entity_type", r.EntityType, "start", r.Start, "end", r.End)
			continue
		}
		s, err := engine.NewSpan(r.EntityType, byteAt[r.Start], byteAt[r.End], r.Score, d.Name())
		if err != nil {
			slog.Warn("Analyzer result rejected", "error", err)
			continue
		}
		spans = append(spans, s)
	}
	return spans, nil
}
