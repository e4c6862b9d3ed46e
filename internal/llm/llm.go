// Package llm abstracts the text generation provider behind a small
// interface so the engine can run against the real Gemini API, a mock,
// or anything else that produces text for a prompt.
package llm

import "context"

// Request is one generation call. System carries the role's persona
// and protocol instructions; Prompt carries the debate context and the
// instruction for this turn.
type Request struct {
	System string
	Prompt string
}

// Generator produces one response for a request. Implementations must
// be safe for concurrent use and must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
