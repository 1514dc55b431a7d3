// Package llm is the model port used by the grounding and visual packages.
package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrMissingAPIKey is returned at construction when no API key is configured.
	ErrMissingAPIKey = errors.New("llm api key is required")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("llm returned no text")
	// ErrNoJSON is returned by ExtractJSON when the text holds no JSON value.
	ErrNoJSON = errors.New("no json found in model output")
)

// Request is one single-turn completion.
type Request struct {
	// Operation names the call site for logs and metrics.
	Operation string
	System    string
	Prompt    string
	MaxTokens int
}

// Client completes prompts. Implementations must honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ExtractJSON returns the outermost JSON object or array in text, ignoring
// markdown code fences and any prose around it.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}
