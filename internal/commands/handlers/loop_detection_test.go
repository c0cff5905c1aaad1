package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

func TestLoopDetectionHandler_NameVariesByKind(t *testing.T) {
	assert.Equal(t, "loop-detection", (&LoopDetectionHandler{}).Name())
	assert.Equal(t, "tool-loop-detection", (&LoopDetectionHandler{ToolVariant: true}).Name())
}

func TestLoopDetectionHandler_RequiresEnabledArg(t *testing.T) {
	h := &LoopDetectionHandler{}
	res := h.Handle(commands.Command{}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestLoopDetectionHandler_EnablesViaPositionalBool(t *testing.T) {
	h := &LoopDetectionHandler{}
	res := h.Handle(commands.Command{Positional: []string{"false"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.False(t, res.NewState.LoopConfig.LoopDetectionEnabled)
}

func TestLoopDetectionHandler_ToolVariantSetsToolLoopField(t *testing.T) {
	h := &LoopDetectionHandler{ToolVariant: true}
	res := h.Handle(commands.Command{Args: map[string]string{"enabled": "true"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.True(t, res.NewState.LoopConfig.ToolLoopDetectionEnabled)
}

func TestToolLoopModeHandler_RejectsUnknownMode(t *testing.T) {
	h := &ToolLoopModeHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"mode": "bogus"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestToolLoopModeHandler_AcceptsSimple(t *testing.T) {
	h := &ToolLoopModeHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"mode": "simple"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.Equal(t, session.ToolLoopSimple, res.NewState.LoopConfig.ToolLoopMode)
}

func TestToolLoopMaxRepeatsHandler_RejectsZero(t *testing.T) {
	h := &ToolLoopMaxRepeatsHandler{}
	res := h.Handle(commands.Command{Positional: []string{"0"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestToolLoopMaxRepeatsHandler_AcceptsPositiveInt(t *testing.T) {
	h := &ToolLoopMaxRepeatsHandler{}
	res := h.Handle(commands.Command{Positional: []string{"5"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.Equal(t, 5, res.NewState.LoopConfig.ToolLoopMaxRepeats)
}

func TestToolLoopTTLHandler_RejectsNonInteger(t *testing.T) {
	h := &ToolLoopTTLHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"seconds": "soon"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestToolLoopTTLHandler_AcceptsPositiveInt(t *testing.T) {
	h := &ToolLoopTTLHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"seconds": "60"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.Equal(t, 60, res.NewState.LoopConfig.ToolLoopTTLSeconds)
}
