// Package llm is a small chat-completions client shared by the analysis
// adapter and content-based speaker role inference.
package llm

import (
	"context"
	"errors"
)

// Client completes one chat request and returns the assistant message content.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Request struct {
	System      string
	User        string
	Temperature float64

	// Schema, when set, asks the provider for schema-constrained JSON output.
	// Otherwise a plain JSON object response is requested.
	Schema     map[string]any
	SchemaName string
}

var (
	ErrNotConfigured = errors.New("llm: api key not configured")
	ErrEmptyResponse = errors.New("llm: empty response")
)
