package failover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/backend"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

func TestBuildSequence_ModelFirstReturnsElementsInOrder(t *testing.T) {
	e := NewEngine()
	route := session.FailoverRoute{Policy: session.PolicyModelFirst, Elements: []string{"openai:gpt-4o", "anthropic:claude-3"}}
	seq := e.BuildSequence(route, nil)
	assert.Equal(t, []string{"openai:gpt-4o", "anthropic:claude-3"}, seq)
}

func TestBuildSequence_KeyFirstRepeatsEachElementPerKey(t *testing.T) {
	e := NewEngine()
	route := session.FailoverRoute{Policy: session.PolicyKeyFirst, Elements: []string{"openai:gpt-4o", "anthropic:claude-3"}}
	keyCounts := map[string]int{"openai": 3, "anthropic": 1}
	seq := e.BuildSequence(route, keyCounts)
	assert.Equal(t, []string{"openai:gpt-4o", "openai:gpt-4o", "openai:gpt-4o", "anthropic:claude-3"}, seq)
}

func TestBuildSequence_KMIsAliasOfKeyFirst(t *testing.T) {
	e := NewEngine()
	route := session.FailoverRoute{Policy: session.PolicyKM, Elements: []string{"openai:gpt-4o"}}
	keyCounts := map[string]int{"openai": 2}
	assert.Equal(t, []string{"openai:gpt-4o", "openai:gpt-4o"}, e.BuildSequence(route, keyCounts))
}

func TestBuildSequence_MKRoundRobinsAcrossElementsByKeyRank(t *testing.T) {
	e := NewEngine()
	route := session.FailoverRoute{Policy: session.PolicyMK, Elements: []string{"openai:gpt-4o", "anthropic:claude-3"}}
	keyCounts := map[string]int{"openai": 2, "anthropic": 1}
	seq := e.BuildSequence(route, keyCounts)
	assert.Equal(t, []string{"openai:gpt-4o", "anthropic:claude-3", "openai:gpt-4o"}, seq)
}

func TestBuildSequence_MissingKeyCountTreatedAsOne(t *testing.T) {
	e := NewEngine()
	route := session.FailoverRoute{Policy: session.PolicyKeyFirst, Elements: []string{"unknownbackend:modelX"}}
	seq := e.BuildSequence(route, nil)
	assert.Equal(t, []string{"unknownbackend:modelX"}, seq)
}

func TestBuildSequence_EmptyElementsReturnsNil(t *testing.T) {
	e := NewEngine()
	seq := e.BuildSequence(session.FailoverRoute{Policy: session.PolicyModelFirst}, nil)
	assert.Nil(t, seq)
}

func TestShouldRetry(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"retryable backend error", &backend.Error{StatusCode: 503, Retryable: true}, true},
		{"non-retryable backend error", &backend.Error{StatusCode: 400, Retryable: false}, false},
		{"unclassified error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ShouldRetry(tt.err))
		})
	}
}
