package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"mailsift/internal/logger"
	"mailsift/internal/metrics"
	"mailsift/internal/models"

	"go.uber.org/zap"
)

const (
	// DefaultCategory is assigned when classification cannot produce one.
	DefaultCategory = "Uncategorized"

	// fallbackSummary is the fixed diagnostic stored when the call fails.
	fallbackSummary = "classification failed"

	// maxBodyChars bounds the prompt size and provider latency.
	maxBodyChars = 2000
)

// errBadStatus marks a non-2xx reply from the service, separating it from
// transport failures in the fallback metrics.
var errBadStatus = errors.New("classifier service returned error status")

// Result is the classifier's verdict for one message.
type Result struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// Client wraps the external text-generation service. Two wire modes are
// supported: "generate" (Ollama /api/generate) and "chat" (OpenAI-style
// /v1/chat/completions). The call fails soft: any transport, status or parse
// problem yields the default result, never an error.
type Client struct {
	url        string
	model      string
	mode       string
	timeout    time.Duration
	httpClient *http.Client
}

func New(url, model, mode string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		model:      model,
		mode:       mode,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Classify asks the model to pick a category and summarize the message. The
// body is truncated to maxBodyChars before submission.
func (c *Client) Classify(ctx context.Context, subject, body string, categories []models.Category) Result {
	body = truncate(body, maxBodyChars)
	prompt := buildPrompt(subject, body, categories)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	content, err := c.call(ctx, prompt)
	if err != nil {
		reason := "request"
		if errors.Is(err, errBadStatus) {
			reason = "status"
		}
		metrics.RecordClassifierCall(c.mode, "error", time.Since(start))
		metrics.ClassifierFallbacks.WithLabelValues(reason).Inc()
		logger.L.Warn("classifier call failed", zap.Error(err))
		return Result{Category: DefaultCategory, Summary: fallbackSummary}
	}
	metrics.RecordClassifierCall(c.mode, "ok", time.Since(start))

	var parsed Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &parsed); err != nil {
		metrics.ClassifierFallbacks.WithLabelValues("parse").Inc()
		logger.L.Warn("classifier reply was not valid JSON",
			zap.String("reply", content), zap.Error(err))
		return Result{Category: DefaultCategory, Summary: fallbackSummary}
	}

	if parsed.Category == "" {
		parsed.Category = DefaultCategory
	}
	return parsed
}

// truncate cuts s to at most max bytes without splitting a UTF-8 rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// call performs one round trip and returns the model's textual reply.
func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	var payload any
	switch c.mode {
	case "chat":
		payload = chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "user", Content: prompt},
			},
		}
	default: // generate
		payload = generateRequest{Model: c.model, Prompt: prompt, Stream: false}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s", errBadStatus, resp.Status)
	}

	if c.mode == "chat" {
		var reply chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
			return "", err
		}
		if len(reply.Choices) == 0 {
			return "", fmt.Errorf("classifier reply had no choices")
		}
		return reply.Choices[0].Message.Content, nil
	}

	var reply generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", err
	}
	return reply.Response, nil
}

// buildPrompt enumerates the categories 1-indexed and instructs the model to
// reply with strict JSON.
func buildPrompt(subject, body string, categories []models.Category) string {
	var list strings.Builder
	for i, cat := range categories {
		fmt.Fprintf(&list, "(%d) %s: %s\n", i+1, cat.Name, cat.Description)
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are an AI email assistant. Assign the best category and give a 1-2 sentence summary.

Categories:
%s
Email:
Subject: %s

%s

Respond with JSON:
{ "category": string, "summary": string }
`, list.String(), subject, body))
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}
