package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	// DefaultGeminiBaseURL is the public generative language API root
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultGeminiModel is used when no model is configured
	DefaultGeminiModel = "gemini-1.5-flash"

	maxResponseBytes = 4 << 20
)

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content *geminiContent `json:"content"`
}

// GeminiConfig holds what the Gemini client needs. APIKey comes from the
// environment and is never committed.
type GeminiConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	KeyInQuery bool
	HTTPClient *http.Client
}

// GeminiClient calls the generateContent endpoint
type GeminiClient struct {
	endpoint   string
	apiKey     string
	keyInQuery bool
	http       *http.Client
}

// NewGeminiClient builds a client, filling defaults for empty config values
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &GeminiClient{
		endpoint:   fmt.Sprintf("%s/models/%s:generateContent", base, url.PathEscape(model)),
		apiKey:     cfg.APIKey,
		keyInQuery: cfg.KeyInQuery,
		http:       hc,
	}
}

// Complete posts the turns and returns candidates[0].content.parts[0].text
func (c *GeminiClient) Complete(ctx context.Context, turns []Turn) (string, error) {
	if len(turns) == 0 {
		return "", errNoTurns
	}

	payload, err := json.Marshal(geminiRequest{
		Contents: lo.Map(turns, func(t Turn, _ int) geminiContent {
			return geminiContent{Role: string(t.Role), Parts: []geminiPart{{Text: t.Text}}}
		}),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode completion request: %w", err)
	}

	endpoint := c.endpoint
	if c.keyInQuery && c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if !c.keyInQuery && c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP error! status: %d: %s", resp.StatusCode, snippet(body))}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &MalformedResponseError{Reason: "body is not JSON", Err: err}
	}
	return parsed.text()
}

func (r geminiResponse) text() (string, error) {
	if len(r.Candidates) == 0 {
		return "", &MalformedResponseError{Reason: "no candidates"}
	}
	content := r.Candidates[0].Content
	if content == nil {
		return "", &MalformedResponseError{Reason: "candidate has no content"}
	}
	if len(content.Parts) == 0 {
		return "", &MalformedResponseError{Reason: "content has no parts"}
	}
	if content.Parts[0].Text == "" {
		return "", &MalformedResponseError{Reason: "first part has no text"}
	}
	return content.Parts[0].Text, nil
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
