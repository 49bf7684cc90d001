package llm

import (
	"context"
	"fmt"
)

// Stub is a deterministic ModelClient for agent.ProcessOptions.Test=true runs:
// no network calls, no provider credentials, reproducible output. Grounded
// on spec.md §6's requirement that test-mode agent processes never invoke
// a real provider.
type Stub struct {
	// Responses maps a request's last user message text to the text the
	// stub returns. A request whose last message has no entry falls back
	// to Default.
	Responses map[string]string
	// Default is returned when no entry in Responses matches.
	Default string
}

// NewStub constructs a Stub returning responses verbatim from the
// responses map, keyed by the last user message's text, falling back to
// defaultResponse for anything unmapped.
func NewStub(responses map[string]string, defaultResponse string) *Stub {
	return &Stub{Responses: responses, Default: defaultResponse}
}

// Complete implements ModelClient by echoing a canned response; it never
// returns tool calls since the stub has no model-side tool-selection logic
// to imitate.
func (s *Stub) Complete(_ context.Context, req *Request) (*Response, error) {
	key := lastUserMessage(req)
	text := s.Default
	if resp, ok := s.Responses[key]; ok {
		text = resp
	}
	return &Response{
		Text:       text,
		Usage:      TokenUsage{InputTokens: estimateTokens(req), OutputTokens: len(text) / 4},
		StopReason: "stop",
	}, nil
}

func lastUserMessage(req *Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == RoleUser {
			return req.Messages[i].Text
		}
	}
	return ""
}

// unavailableClient is a ModelClient that simulates a provider outage, for
// exercising llm.Facade's retry/error-wrapping paths in tests.
type unavailableClient struct{ err error }

// NewUnavailableStub returns a ModelClient whose Complete always fails with
// err, useful for testing Facade retry/backoff behavior deterministically.
func NewUnavailableStub(err error) ModelClient {
	return &unavailableClient{err: err}
}

func (u *unavailableClient) Complete(context.Context, *Request) (*Response, error) {
	return nil, fmt.Errorf("llm: stub provider unavailable: %w", u.err)
}

func estimateTokens(req *Request) int {
	n := 0
	for _, m := range req.Messages {
		n += len(m.Text)
	}
	if n == 0 {
		return 0
	}
	return n/4 + 1
}
