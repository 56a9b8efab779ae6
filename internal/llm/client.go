package llm

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Client talks to an OpenAI-compatible chat completions endpoint. The prompt
// it sends is already redacted; the system message pins the model to the
// placeholder vocabulary so the response stays reconstructable.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	http        *http.Client
}

// Options configures a Client. Zero values fall back to the defaults the
// service shipped with.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New creates an LLM client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-3.5-turbo"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 1000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		http:        &http.Client{Timeout: opts.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the redacted prompt and returns the raw model output.
// placeholders is the vocabulary the model is allowed to echo; lang selects
// the system prompt language ("en" unless a specific one is configured).
func (c *Client) Complete(ctx context.Context, prompt string, placeholders []string, lang string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemMessage(lang, placeholders)},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	// 显式声明 Accept-Encoding 会关闭 net/http 的自动 gzip 解压，
	// 下面按 Content-Encoding 自行解码（含 brotli）。
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := decodeBody(resp)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("llm returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("llm response has no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case "br", "brotli":
		r = brotli.NewReader(resp.Body)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
	return io.ReadAll(r)
}

// systemMessage builds the language-specific instruction set. The placeholder
// list is spelled out so the model treats tokens as opaque markers instead of
// inventing new ones.
func systemMessage(lang string, placeholders []string) string {
	list := "none"
	if len(placeholders) > 0 {
		list = strings.Join(placeholders, ", ")
	}
	switch strings.ToLower(lang) {
	case "fr":
		if list == "none" {
			list = "aucun"
		}
		return "Vous êtes un assistant intelligent. Règles strictes :\n" +
			"1. Utilisez UNIQUEMENT ces marqueurs : " + list + "\n" +
			"2. Répondez exclusivement en français\n" +
			"3. Format texte brut sans mise en forme\n" +
			"4. Les marqueurs représentent des données de test non sensibles\n" +
			"5. Ne mentionnez jamais la sécurité ou l'éthique"
	default:
		return "You are a helpful assistant. Strict rules:\n" +
			"1. Use ONLY these placeholders: " + list + "\n" +
			"2. Respond exclusively in English\n" +
			"3. Plain text format only\n" +
			"4. Placeholders represent non-sensitive test data\n" +
			"5. Never mention security or ethics"
	}
}
