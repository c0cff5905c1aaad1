package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

type stubHandler struct {
	name   string
	result Result
}

func (s *stubHandler) Name() string          { return s.name }
func (s *stubHandler) Description() string   { return "stub" }
func (s *stubHandler) Format() string        { return "!/" + s.name }
func (s *stubHandler) Examples() []string    { return nil }
func (s *stubHandler) Handle(cmd Command, sess *session.Session, intro Introspection) Result {
	r := s.result
	return r
}

func newTestService(handlers ...*stubHandler) *Service {
	reg := NewRegistry()
	for _, h := range handlers {
		reg.Register(h)
	}
	return NewService(reg, NewParser("!/"))
}

func userMsg(content string) proxytypes.Message {
	return proxytypes.Message{Role: proxytypes.RoleUser, Content: content}
}

func TestProcessCommands_ExecutesLatestParseableCommand(t *testing.T) {
	svc := newTestService(&stubHandler{name: "set", result: Result{Success: true, Message: "done"}})
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{
		userMsg("hello there"),
		userMsg("please !/set(model=gpt-4o) now"),
	}

	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.True(t, out.CommandExecuted)
	require.Len(t, out.CommandResults, 1)
	assert.Equal(t, "set", out.CommandResults[0].Name)
	assert.Equal(t, "please  now", out.ModifiedMessages[1].Content)
}

func TestProcessCommands_StripsEarlierCommandsWithoutExecuting(t *testing.T) {
	svc := newTestService(&stubHandler{name: "set", result: Result{Success: true, Message: "done"}})
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{
		userMsg("!/set(model=gpt-3.5) earlier"),
		userMsg("!/set(model=gpt-4o) later"),
	}
	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.True(t, out.CommandExecuted)
	assert.Equal(t, "earlier", out.ModifiedMessages[0].Content)
	assert.Equal(t, "later", out.ModifiedMessages[1].Content)
	require.Len(t, out.CommandResults, 1, "only the latest command is ever executed")
}

func TestProcessCommands_MultipleCommandsInOneMessageOnlyLastExecutesButAllAreStripped(t *testing.T) {
	svc := newTestService(&stubHandler{name: "set", result: Result{Success: true, Message: "done"}})
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{
		userMsg("!/set(model=a) and !/set(model=b) please"),
	}
	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.True(t, out.CommandExecuted)
	require.Len(t, out.CommandResults, 1, "only the last command in the message executes")
	assert.Equal(t, "and  please", out.ModifiedMessages[0].Content, "every command literal is stripped, not just the executed one")
}

func TestProcessCommands_NoCommandPresentLeavesMessagesUntouched(t *testing.T) {
	svc := newTestService()
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{userMsg("just chatting")}
	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.False(t, out.CommandExecuted)
	assert.Equal(t, "just chatting", out.ModifiedMessages[0].Content)
}

func TestProcessCommands_UnknownCommandWithEarlierUserMessageIsCommandOnly(t *testing.T) {
	svc := newTestService()
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{
		userMsg("earlier context"),
		userMsg("!/totallyunknown(x=1)"),
	}
	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.True(t, out.CommandExecuted, "unknown command with earlier user message short-circuits as command-only")
	assert.Empty(t, out.CommandResults)
}

func TestProcessCommands_UnknownCommandWithNoEarlierMessageFallsThrough(t *testing.T) {
	svc := newTestService()
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{userMsg("!/totallyunknown(x=1)")}
	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.False(t, out.CommandExecuted)
}

func TestProcessCommands_HelloBareCommandPreservesSurroundingText(t *testing.T) {
	svc := newTestService(&stubHandler{name: "hello", result: Result{Success: true, Message: "hi"}})
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{userMsg("!/hello good morning")}
	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.True(t, out.CommandExecuted)
	assert.Equal(t, " good morning", out.ModifiedMessages[0].Content, "bare hello preserves surrounding text exactly, no trim")
}

func TestProcessCommands_NewStateIsPersistedToStoreAndSession(t *testing.T) {
	newState := session.NewDefaultState()
	newState.PytestCompressionEnabled = false

	svc := newTestService(&stubHandler{name: "set", result: Result{Success: true, Message: "done", NewState: &newState}})
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)
	_, err := store.GetOrCreate(context.Background(), "s1")
	require.NoError(t, err)

	messages := []proxytypes.Message{userMsg("!/set(x=1)")}
	_, err = svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)

	assert.False(t, sess.State.PytestCompressionEnabled)

	stored, ok, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, stored.State.PytestCompressionEnabled)
}

func TestProcessCommands_PartsMessagesAreSkippedForParsing(t *testing.T) {
	svc := newTestService(&stubHandler{name: "set", result: Result{Success: true}})
	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	store := session.NewMemoryStore(0)

	messages := []proxytypes.Message{
		{Role: proxytypes.RoleUser, Parts: []proxytypes.Part{{Type: proxytypes.PartText, Text: "!/set(x=1)"}}},
	}
	out, err := svc.ProcessCommands(context.Background(), messages, sess, store)
	require.NoError(t, err)
	assert.False(t, out.CommandExecuted, "multi-part messages are never scanned for commands")
}
