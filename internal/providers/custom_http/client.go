package custom_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"showchat/internal/providers"
)

// Client talks to an arbitrary JSON chat endpoint described by a body
// template, for self-hosted models that speak neither vendor dialect.
type Config struct {
	URL          string
	APIKey       string
	BodyTemplate string
	ResponsePath string
	HTTPClient   *http.Client
	MaxAttempts  int
	BackoffBase  time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.ResponsePath == "" {
		cfg.ResponsePath = "response"
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{cfg: cfg}
}

var _ providers.Provider = (*Client)(nil)

func (c *Client) Chat(ctx context.Context, req providers.ChatRequest) (providers.ChatResponse, error) {
	body, err := c.renderBody(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		text, overloaded, err := c.callOnce(ctx, body)
		if err == nil {
			return providers.ChatResponse{Text: text, Attempts: attempt + 1}, nil
		}
		if !overloaded {
			return providers.ChatResponse{}, err
		}
		lastErr = &providers.OverloadedError{Err: err, Attempts: attempt + 1}
		if attempt == c.cfg.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return providers.ChatResponse{}, ctx.Err()
		case <-time.After(c.cfg.BackoffBase * (1 << attempt)):
		}
	}

	if lastErr == nil {
		lastErr = &providers.OverloadedError{Err: fmt.Errorf("failed after %d attempts", c.cfg.MaxAttempts), Attempts: c.cfg.MaxAttempts}
	}
	return providers.ChatResponse{}, lastErr
}

func (c *Client) renderBody(req providers.ChatRequest) ([]byte, error) {
	if strings.TrimSpace(c.cfg.BodyTemplate) == "" {
		payload := map[string]any{
			"model":         req.Model,
			"system_prompt": req.SystemPrompt,
			"prompt":        req.UserPrompt,
			"max_tokens":    req.MaxTokens,
			"temperature":   req.Temperature,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal custom payload: %w", err)
		}
		return b, nil
	}

	tpl, err := template.New("custom_http_body").Option("missingkey=zero").Parse(c.cfg.BodyTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, map[string]any{
		"Model":        req.Model,
		"SystemPrompt": req.SystemPrompt,
		"UserPrompt":   req.UserPrompt,
		"MaxTokens":    req.MaxTokens,
		"Temperature":  req.Temperature,
	}); err != nil {
		return nil, fmt.Errorf("render body template: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Client) callOnce(ctx context.Context, body []byte) (text string, overloaded bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("provider temporary status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	text, err = extractField(respBody, c.cfg.ResponsePath)
	if err != nil {
		return "", false, err
	}
	return text, false, nil
}

// extractField pulls a string out of a JSON document by a dot-separated path.
func extractField(body []byte, path string) (string, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("decode custom response: %w", err)
	}

	cur := doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("response path %q not found", path)
		}
		cur, ok = m[part]
		if !ok {
			return "", fmt.Errorf("response path %q not found", path)
		}
	}

	s, ok := cur.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("response path %q is not a non-empty string", path)
	}
	return s, nil
}
