package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scriptable Generator for tests and for running the server
// without an API key. Responses are returned in order and repeat from
// the start once exhausted; with no script it produces a generic line
// per call.
type Mock struct {
	mu        sync.Mutex
	Responses []string
	Err       error

	calls []Request
	next  int
}

// Generate returns the next scripted response, or Err when set.
func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return fmt.Sprintf("Considered the theme again; this is mock turn %d with nothing new to add.", len(m.calls)), nil
	}
	r := m.Responses[m.next%len(m.Responses)]
	m.next++
	return r, nil
}

// Calls returns a copy of every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
