package anthropic_messages

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

	"showchat/internal/providers"
)

type Config struct {
	BaseURL     string
	APIKey      string
	APIVersion  string
	HTTPClient  *http.Client
	MaxAttempts int
	BackoffBase time.Duration
}

type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-06-01"
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
	body, endpointURL, err := c.buildPayload(req)
	if err != nil {
		return providers.ChatResponse{}, err
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		text, overloaded, err := c.callOnce(ctx, endpointURL, body)
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
		backoff := c.cfg.BackoffBase * (1 << attempt)
		select {
		case <-ctx.Done():
			return providers.ChatResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr == nil {
		lastErr = &providers.OverloadedError{Err: fmt.Errorf("failed after %d attempts", c.cfg.MaxAttempts), Attempts: c.cfg.MaxAttempts}
	}
	return providers.ChatResponse{}, lastErr
}

func (c *Client) buildPayload(req providers.ChatRequest) ([]byte, string, error) {
	endpointURL, err := c.buildEndpointURL()
	if err != nil {
		return nil, "", err
	}

	payload := map[string]any{
		"model": req.Model,
		"messages": []map[string]string{
			{"role": "user", "content": req.UserPrompt},
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		payload["system"] = req.SystemPrompt
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	} else {
		payload["max_tokens"] = 1024
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal messages payload: %w", err)
	}
	return b, endpointURL, nil
}

func (c *Client) callOnce(ctx context.Context, endpointURL string, body []byte) (text string, overloaded bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", c.cfg.APIVersion)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errType, errMsg := parseErrorBody(respBody)
		if isOverloadStatus(resp.StatusCode) || isOverloadType(errType) {
			return "", true, fmt.Errorf("provider temporary status %d (%s)", resp.StatusCode, errType)
		}
		if errMsg != "" {
			return "", false, fmt.Errorf("provider status %d: %s", resp.StatusCode, errMsg)
		}
		return "", false, fmt.Errorf("provider status %d", resp.StatusCode)
	}

	text, err = parseMessagesResponse(respBody)
	if err != nil {
		return "", false, err
	}
	return text, false, nil
}

func (c *Client) buildEndpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", fmt.Errorf("base url is empty")
	}
	if strings.HasSuffix(base, "/messages") {
		return base, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	path := strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	u.Path = path + "/messages"
	return u.String(), nil
}

func parseMessagesResponse(body []byte) (string, error) {
	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode messages response: %w", err)
	}
	parts := make([]string, 0, len(resp.Content))
	for _, block := range resp.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("missing text content in messages response")
	}
	return strings.Join(parts, "\n"), nil
}

func parseErrorBody(body []byte) (errType, errMsg string) {
	var resp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", ""
	}
	return resp.Error.Type, resp.Error.Message
}

func isOverloadStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func isOverloadType(errType string) bool {
	switch strings.ToLower(strings.TrimSpace(errType)) {
	case "overloaded_error", "rate_limit_error":
		return true
	default:
		return false
	}
}
