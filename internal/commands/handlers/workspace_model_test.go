package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
)

func TestWorkspaceHandler_NoPathReportsUnsetByDefault(t *testing.T) {
	h := &WorkspaceHandler{}
	res := h.Handle(commands.Command{}, newTestSession(), nil)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "No project directory")
}

func TestWorkspaceHandler_NoPathReportsCurrentValue(t *testing.T) {
	sess := newTestSession()
	sess.State = sess.State.WithProjectDir("/tmp/myrepo")

	h := &WorkspaceHandler{}
	res := h.Handle(commands.Command{}, sess, nil)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "/tmp/myrepo")
}

func TestWorkspaceHandler_RejectsNonexistentPath(t *testing.T) {
	h := &WorkspaceHandler{}
	res := h.Handle(commands.Command{Positional: []string{"/nonexistent/dir/xyz"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestWorkspaceHandler_AcceptsExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	h := &WorkspaceHandler{}
	res := h.Handle(commands.Command{Positional: []string{dir}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.NotEmpty(t, res.NewState.ProjectDir)
}

func TestModelHandler_EmptyNameUnsetsModel(t *testing.T) {
	sess := newTestSession()
	sess.State = sess.State.WithModel("gpt-4o")

	h := &ModelHandler{}
	res := h.Handle(commands.Command{}, sess, nil)
	require.True(t, res.Success)
	assert.Equal(t, "", res.NewState.BackendConfig.Model)
	assert.Contains(t, res.Message, "unset")
}

func TestModelHandler_BareModelNameSetsModelOnly(t *testing.T) {
	h := &ModelHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"name": "gpt-4o"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.Equal(t, "gpt-4o", res.NewState.BackendConfig.Model)
	assert.Equal(t, "", res.NewState.BackendConfig.BackendType)
}

func TestModelHandler_BackendPrefixedNameSetsBoth(t *testing.T) {
	h := &ModelHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"name": "openai:gpt-4o"}}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.Equal(t, "gpt-4o", res.NewState.BackendConfig.Model)
	assert.Equal(t, "openai", res.NewState.BackendConfig.BackendType)
}

func TestModelHandler_BlockedByStaticRouteEnvWhenNameGiven(t *testing.T) {
	t.Setenv("STATIC_ROUTE", "openai:gpt-4o")
	h := &ModelHandler{}
	res := h.Handle(commands.Command{Args: map[string]string{"name": "anthropic:claude-3"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}
