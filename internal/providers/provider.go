package providers

import (
	"context"
	"errors"
	"fmt"
)

type ChatRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

type ChatResponse struct {
	Text string
	// Attempts is how many upstream calls the completion took.
	Attempts int
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// OverloadedError marks a failure the upstream classified as transient
// overload. Callers may retry; any other error is terminal.
type OverloadedError struct {
	Err      error
	Attempts int
}

func (e *OverloadedError) Error() string {
	if e.Err == nil {
		return "provider overloaded"
	}
	return fmt.Sprintf("provider overloaded: %v", e.Err)
}

func (e *OverloadedError) Unwrap() error { return e.Err }

// IsOverloaded reports whether err is (or wraps) an overload classification.
func IsOverloaded(err error) bool {
	var oe *OverloadedError
	return errors.As(err, &oe)
}
