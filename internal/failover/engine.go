// In file: internal/failover/engine.go
package failover

import (
	"context"
	"errors"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/backend"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// Engine expands a named failover route into the ordered sequence of
// "backend:model" elements a request should walk through on retry, and
// classifies connector errors as retryable or terminal. No original_source
// file covers the engine's walk logic directly — failover_command_handler.py
// only covers the route CRUD commands — so this is grounded on spec.md
// §4.13's prose plus the retry/backoff classification already used by every
// HTTPS JSON connector (see backend.Error.Retryable).
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// BuildSequence expands route.Elements per its policy into the ordered
// list of attempts the pipeline should walk on failure. keyCounts maps a
// backend name to how many API keys it has configured; an element whose
// backend is absent from keyCounts is treated as having exactly one key.
func (e *Engine) BuildSequence(route session.FailoverRoute, keyCounts map[string]int) []string {
	if len(route.Elements) == 0 {
		return nil
	}

	switch route.Policy {
	case session.PolicyModelFirst:
		return append([]string{}, route.Elements...)

	case session.PolicyKeyFirst, session.PolicyKM:
		var seq []string
		for _, el := range route.Elements {
			n := keysFor(el, keyCounts)
			for i := 0; i < n; i++ {
				seq = append(seq, el)
			}
		}
		return seq

	case session.PolicyMK:
		maxKeys := 1
		for _, el := range route.Elements {
			if n := keysFor(el, keyCounts); n > maxKeys {
				maxKeys = n
			}
		}
		var seq []string
		for k := 0; k < maxKeys; k++ {
			for _, el := range route.Elements {
				if keysFor(el, keyCounts) > k {
					seq = append(seq, el)
				}
			}
		}
		return seq

	default:
		return append([]string{}, route.Elements...)
	}
}

func keysFor(element string, keyCounts map[string]int) int {
	backendName, _ := backend.SplitModel(element)
	if backendName == "" {
		backendName = element
	}
	if n, ok := keyCounts[backendName]; ok && n > 0 {
		return n
	}
	return 1
}

// ShouldRetry classifies a connector error per spec §4.13: network errors,
// 5xx, 408, and 429 retry; other 4xx, schema errors, and cancellation do
// not.
func (e *Engine) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var berr *backend.Error
	if errors.As(err, &berr) {
		return berr.Retryable
	}
	// Anything else (schema/decoding errors, programmer errors) is treated
	// as non-retryable: only classified backend.Error carries a transport
	// verdict.
	return false
}
