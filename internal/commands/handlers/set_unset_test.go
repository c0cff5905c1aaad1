package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

func newTestSession() *session.Session {
	return &session.Session{ID: "s1", State: session.NewDefaultState()}
}

func TestSetHandler_RequiresAtLeastOneArg(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{}, newTestSession(), nil)
	assert.False(t, res.Success)
	assert.Nil(t, res.NewState)
}

func TestSetHandler_ChangesModel(t *testing.T) {
	h := &SetHandler{}
	sess := newTestSession()
	res := h.Handle(commands.Command{Args: map[string]string{"model": "gpt-4o"}}, sess, nil)
	require.True(t, res.Success)
	require.NotNil(t, res.NewState)
	assert.Equal(t, "gpt-4o", res.NewState.BackendConfig.Model)
	assert.Contains(t, res.Message, "Model changed to gpt-4o")
}

func TestSetHandler_TemperatureOutOfRangeFails(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"temperature": "1.5"}}, newTestSession(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "[0, 1]")
}

func TestSetHandler_TemperatureValidValue(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"temperature": "0.4"}}, newTestSession(), nil)
	require.True(t, res.Success)
	require.NotNil(t, res.NewState.ReasoningConfig.Temperature)
	assert.InDelta(t, 0.4, *res.NewState.ReasoningConfig.Temperature, 0.0001)
}

func TestSetHandler_ReasoningEffortRejectsUnknownValue(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"reasoning-effort": "extreme"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestSetHandler_ReasoningEffortBlockedByThinkingBudgetEnv(t *testing.T) {
	t.Setenv("THINKING_BUDGET", "1024")
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"reasoning-effort": "high"}}, newTestSession(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "THINKING_BUDGET")
}

func TestSetHandler_BackendBlockedByStaticRouteEnv(t *testing.T) {
	t.Setenv("STATIC_ROUTE", "openai:gpt-4o")
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"backend": "anthropic"}}, newTestSession(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "STATIC_ROUTE")
}

func TestSetHandler_UnknownParameterFails(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"bogus": "1"}}, newTestSession(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Unknown parameter")
}

func TestSetHandler_ProjectDirRejectsNonexistentPath(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"project-dir": "/nonexistent/path/xyz"}}, newTestSession(), nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "does not exist")
}

func TestSetHandler_ProjectDirAcceptsExistingDirectory(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"project-dir": t.TempDir()}}, newTestSession(), nil)
	require.True(t, res.Success)
	require.NotNil(t, res.NewState)
	assert.NotEmpty(t, res.NewState.ProjectDir)
}

func TestSetHandler_MultipleKeysAppliedInSortedOrder(t *testing.T) {
	h := &SetHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"model": "gpt-4o", "project": "alpha"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.Equal(t, "gpt-4o", res.NewState.BackendConfig.Model)
	assert.Equal(t, "alpha", res.NewState.Project)
}

func TestUnsetHandler_RequiresKey(t *testing.T) {
	h := &UnsetHandler{}
	res := h.Handle(commands.Command{}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestUnsetHandler_ClearsModel(t *testing.T) {
	h := &UnsetHandler{}
	sess := newTestSession()
	sess.State = sess.State.WithModel("gpt-4o")

	res := h.Handle(commands.Command{Positional: []string{"model"}}, sess, nil)
	require.True(t, res.Success)
	assert.Equal(t, "", res.NewState.BackendConfig.Model)
}

func TestUnsetHandler_BackendBlockedByStaticRouteEnv(t *testing.T) {
	t.Setenv("STATIC_ROUTE", "openai:gpt-4o")
	h := &UnsetHandler{}
	res := h.Handle(commands.Command{Positional: []string{"backend"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestUnsetHandler_UnknownKeyFails(t *testing.T) {
	h := &UnsetHandler{}
	res := h.Handle(commands.Command{Positional: []string{"bogus"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}
