// Package llm abstracts the text-completion backend. The engine only
// depends on the Client contract: one synchronous call and one streaming
// call, both bounded by a per-request timeout.
package llm

import (
	"context"
	"strings"
	"time"
)

// Request is a normalized completion request.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// FragmentHandler receives streamed text fragments as they arrive. A
// non-nil return aborts the stream.
type FragmentHandler func(fragment string) error

// Client is the completion backend contract. CompleteStream's fragment
// sequence is finite and not restartable; a fresh call is required per
// turn.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	CompleteStream(ctx context.Context, req Request, onFragment FragmentHandler) (string, error)
}

// Config controls client construction.
type Config struct {
	Mode    string
	APIKey  string
	BaseURL string
}

// New builds a client for the configured mode. "auto" picks Groq when an
// API key is present and otherwise degrades to a not-configured client so
// the service still boots and surfaces a structured error per turn.
func New(cfg Config) Client {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "mock":
		return NewMockClient()
	case "groq":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return notConfiguredClient{}
		}
		return NewGroqClient(cfg.BaseURL, cfg.APIKey)
	default: // auto
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewGroqClient(cfg.BaseURL, cfg.APIKey)
		}
		return notConfiguredClient{}
	}
}

type notConfiguredClient struct{}

func (notConfiguredClient) Complete(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
}

func (notConfiguredClient) CompleteStream(context.Context, Request, FragmentHandler) (string, error) {
	return "", ErrNotConfigured
}
