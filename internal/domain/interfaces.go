package domain

import "context"

// Adapter translates the generic completion contract into one backend
// family's wire format. Adapters own transport and translation only: they
// never retry, and every request they issue carries a bounded timeout.
type Adapter interface {
	Name() string

	// Complete sends a chat-completion request and returns the result of
	// the single attempt. Classified failures are returned as *CallError.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// ListModels returns the model identifiers the backend advertises.
	// Backends without a discovery endpoint return their known static
	// list; the result may be empty.
	ListModels(ctx context.Context) ([]string, error)
}
