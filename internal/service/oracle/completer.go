package oracle

import "context"

// Completer sends one user prompt to a text-generation model and returns the
// text of its reply.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Model() string
}
