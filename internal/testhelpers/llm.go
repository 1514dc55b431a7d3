package testhelpers

import (
	"context"
	"errors"
	"sync"

	"github.com/jonesrussell/north-cloud/source-registry/internal/llm"
)

// ErrScriptExhausted is returned when ScriptedLLM has no replies left.
var ErrScriptExhausted = errors.New("scripted llm has no replies left")

// Reply is one scripted model answer.
type Reply struct {
	Text string
	Err  error
}

// ScriptedLLM returns queued replies in order and records every request.
// Respond, when set, answers instead of the queue.
type ScriptedLLM struct {
	mu       sync.Mutex
	replies  []Reply
	requests []llm.Request

	Respond func(req llm.Request) (string, error)
}

// NewScriptedLLM queues replies.
func NewScriptedLLM(replies ...Reply) *ScriptedLLM {
	return &ScriptedLLM{replies: replies}
}

func (s *ScriptedLLM) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Respond != nil {
		return s.Respond(req)
	}
	if len(s.replies) == 0 {
		return "", ErrScriptExhausted
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next.Text, next.Err
}

// Calls returns the number of Complete calls.
func (s *ScriptedLLM) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns every recorded request.
func (s *ScriptedLLM) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

var _ llm.Client = (*ScriptedLLM)(nil)
