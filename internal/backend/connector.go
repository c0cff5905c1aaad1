// In file: internal/backend/connector.go
package backend

import (
	"context"
	"fmt"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// Kind enumerates the four connector implementation families spec §4.7
// names.
type Kind string

const (
	KindHTTPSJSON             Kind = "https_json"
	KindSubprocessBatch       Kind = "subprocess_batch"
	KindSubprocessInteractive Kind = "subprocess_interactive"
	KindOAuthGated            Kind = "oauth_gated"
	KindGeminiNative          Kind = "gemini_native"
)

// Error is a classifiable connector failure. Status carries the upstream
// HTTP status when known (0 for transport-level failures), and Retryable
// records the Failover Engine's classification (network errors, 5xx, 408,
// 429 retry; other 4xx, schema errors, cancellation do not).
type Error struct {
	StatusCode int
	Body       string
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// StreamEvent is one incremental unit from a streaming connector call.
type StreamEvent struct {
	Chunk proxytypes.StreamChunk
	Done  bool
}

// Connector is the uniform capability interface over every upstream
// transport: HTTPS JSON, subprocess batch/interactive, and OAuth-gated.
type Connector interface {
	// Initialize performs any discovery needed to populate available
	// models and flip Functional on the owning BackendDescriptor.
	Initialize(ctx context.Context, apiKey string) error

	AvailableModels() []string

	Kind() Kind

	// ChatCompletions issues one non-streaming call.
	ChatCompletions(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (proxytypes.ChatResponse, error)

	// ChatCompletionsStream issues one streaming call; the returned
	// channel is closed when the stream ends (successfully or on error),
	// and ctx cancellation must close the upstream stream promptly.
	ChatCompletionsStream(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (<-chan StreamEvent, error)

	// Shutdown releases any held resources (e.g. a long-lived subprocess).
	Shutdown(ctx context.Context) error
}
