package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

func TestFailoverHandler_CreateRejectsMissingName(t *testing.T) {
	h := &FailoverHandler{Kind: "create-failover-route"}
	res := h.Handle(commands.Command{Args: map[string]string{"policy": "k"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestFailoverHandler_CreateRejectsInvalidPolicy(t *testing.T) {
	h := &FailoverHandler{Kind: "create-failover-route"}
	res := h.Handle(commands.Command{Args: map[string]string{"name": "r1", "policy": "bogus"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestFailoverHandler_CreateSucceeds(t *testing.T) {
	h := &FailoverHandler{Kind: "create-failover-route"}
	res := h.Handle(commands.Command{Args: map[string]string{"name": "r1", "policy": "km"}}, newTestSession(), nil)
	require.True(t, res.Success)
	route, ok := res.NewState.BackendConfig.FailoverRoutes["r1"]
	require.True(t, ok)
	assert.Equal(t, session.PolicyKM, route.Policy)
}

func TestFailoverHandler_DeleteUnknownRouteFails(t *testing.T) {
	h := &FailoverHandler{Kind: "delete-failover-route"}
	res := h.Handle(commands.Command{Args: map[string]string{"name": "ghost"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}

func TestFailoverHandler_AppendThenPrependOrdersElements(t *testing.T) {
	sess := newTestSession()
	create := &FailoverHandler{Kind: "create-failover-route"}
	res := create.Handle(commands.Command{Args: map[string]string{"name": "r1", "policy": "m"}}, sess, nil)
	require.True(t, res.Success)
	sess.State = *res.NewState

	appendH := &FailoverHandler{Kind: "route-append"}
	res = appendH.Handle(commands.Command{Args: map[string]string{"name": "r1", "element": "openai:gpt-4o"}}, sess, nil)
	require.True(t, res.Success)
	sess.State = *res.NewState

	prependH := &FailoverHandler{Kind: "route-prepend"}
	res = prependH.Handle(commands.Command{Args: map[string]string{"name": "r1", "element": "anthropic:claude-3"}}, sess, nil)
	require.True(t, res.Success)

	route := res.NewState.BackendConfig.FailoverRoutes["r1"]
	assert.Equal(t, []string{"anthropic:claude-3", "openai:gpt-4o"}, route.Elements)
}

func TestFailoverHandler_AppendMissingElementFails(t *testing.T) {
	sess := newTestSession()
	create := &FailoverHandler{Kind: "create-failover-route"}
	res := create.Handle(commands.Command{Args: map[string]string{"name": "r1", "policy": "m"}}, sess, nil)
	require.True(t, res.Success)
	sess.State = *res.NewState

	appendH := &FailoverHandler{Kind: "route-append"}
	res = appendH.Handle(commands.Command{Args: map[string]string{"name": "r1"}}, sess, nil)
	assert.False(t, res.Success)
}

func TestFailoverHandler_ClearEmptiesElementsWithoutDeletingRoute(t *testing.T) {
	sess := newTestSession()
	sess.State.BackendConfig.FailoverRoutes = map[string]session.FailoverRoute{
		"r1": {Name: "r1", Policy: session.PolicyModelFirst, Elements: []string{"a:b"}},
	}

	clearH := &FailoverHandler{Kind: "route-clear"}
	res := clearH.Handle(commands.Command{Args: map[string]string{"name": "r1"}}, sess, nil)
	require.True(t, res.Success)
	route, ok := res.NewState.BackendConfig.FailoverRoutes["r1"]
	require.True(t, ok)
	assert.Empty(t, route.Elements)
}

func TestFailoverHandler_ListAllReportsNoRoutesWhenEmpty(t *testing.T) {
	h := &FailoverHandler{Kind: "list-failover-routes"}
	res := h.Handle(commands.Command{}, newTestSession(), nil)
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "No failover routes")
}

func TestFailoverHandler_ListOneUnknownRouteFails(t *testing.T) {
	h := &FailoverHandler{Kind: "route-list"}
	res := h.Handle(commands.Command{Args: map[string]string{"name": "ghost"}}, newTestSession(), nil)
	assert.False(t, res.Success)
}
