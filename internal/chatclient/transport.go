package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ServerError is a non-2xx reply from the chat endpoint. Retry mirrors the
// server's structured flag.
type ServerError struct {
	Status  int
	Message string
	Retry   bool
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat endpoint status %d", e.Status)
	}
	return fmt.Sprintf("chat endpoint status %d: %s", e.Status, e.Message)
}

func asServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Transport posts chat turns to the showchat service.
type Transport struct {
	baseURL    string
	httpClient *http.Client
}

func NewTransport(baseURL string, hc *http.Client) *Transport {
	if hc == nil {
		hc = &http.Client{Timeout: 90 * time.Second}
	}
	return &Transport{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: hc,
	}
}

var _ Sender = (*Transport)(nil)

func (t *Transport) Send(ctx context.Context, message, projectContext string) (Reply, error) {
	payload, err := json.Marshal(map[string]string{
		"message":         message,
		"project_context": projectContext,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Error string `json:"error"`
			Retry bool   `json:"retry"`
		}
		_ = json.Unmarshal(body, &envelope)
		return Reply{}, &ServerError{Status: resp.StatusCode, Message: envelope.Error, Retry: envelope.Retry}
	}

	var envelope struct {
		Response     string `json:"response"`
		LimitReached bool   `json:"limit_reached"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Reply{}, fmt.Errorf("decode chat response: %w", err)
	}
	return Reply{Text: envelope.Response, LimitReached: envelope.LimitReached}, nil
}
