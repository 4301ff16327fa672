package registry

import (
	"fmt"
	"net/http"
	"time"

	"showchat/internal/providers"
	"showchat/internal/providers/anthropic_messages"
	"showchat/internal/providers/custom_http"
	"showchat/internal/providers/openai_compat"
)

type BuildOptions struct {
	Kind        string
	BaseURL     string
	APIKey      string
	APIVersion  string
	HTTPClient  *http.Client
	MaxAttempts int
	BackoffBase time.Duration
}

func Build(opts BuildOptions) (providers.Provider, error) {
	switch opts.Kind {
	case "anthropic_messages", "anthropic":
		return anthropic_messages.New(anthropic_messages.Config{
			BaseURL:     opts.BaseURL,
			APIKey:      opts.APIKey,
			APIVersion:  opts.APIVersion,
			HTTPClient:  opts.HTTPClient,
			MaxAttempts: opts.MaxAttempts,
			BackoffBase: opts.BackoffBase,
		}), nil

	case "openai_compat", "openai-compatible", "openai":
		return openai_compat.New(openai_compat.Config{
			BaseURL:     opts.BaseURL,
			APIKey:      opts.APIKey,
			HTTPClient:  opts.HTTPClient,
			MaxAttempts: opts.MaxAttempts,
			BackoffBase: opts.BackoffBase,
		}), nil

	case "custom_http", "custom-http":
		return custom_http.New(custom_http.Config{
			URL:         opts.BaseURL,
			APIKey:      opts.APIKey,
			HTTPClient:  opts.HTTPClient,
			MaxAttempts: opts.MaxAttempts,
			BackoffBase: opts.BackoffBase,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported provider kind %q", opts.Kind)
	}
}
