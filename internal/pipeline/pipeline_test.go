package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/apperr"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/backend"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/security"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/wirecapture"
)

type fakeConnector struct {
	models  []string
	resp    proxytypes.ChatResponse
	callErr error
	calls   int
}

func (f *fakeConnector) Initialize(ctx context.Context, apiKey string) error { return nil }
func (f *fakeConnector) AvailableModels() []string                          { return f.models }
func (f *fakeConnector) Kind() backend.Kind                                 { return backend.KindHTTPSJSON }
func (f *fakeConnector) ChatCompletions(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (proxytypes.ChatResponse, error) {
	f.calls++
	if f.callErr != nil {
		return proxytypes.ChatResponse{}, f.callErr
	}
	return f.resp, nil
}
func (f *fakeConnector) ChatCompletionsStream(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (<-chan backend.StreamEvent, error) {
	return nil, nil
}
func (f *fakeConnector) Shutdown(ctx context.Context) error { return nil }

func testRegistry(t *testing.T, backends map[string]*fakeConnector) *backend.Registry {
	t.Helper()
	reg := backend.NewRegistry(backend.NewHealthTracker(), zap.NewNop().Sugar())
	for name, conn := range backends {
		c := conn
		reg.Register(name, backend.KindHTTPSJSON, []string{"key1"}, "", func() backend.Connector { return c })
	}
	reg.Initialize(context.Background())
	return reg
}

func testPipeline(t *testing.T, registry *backend.Registry, cfg Config) *Pipeline {
	t.Helper()
	cmdSvc := commands.NewService(commands.NewRegistry(), commands.NewParser("!/"))
	p := New(cfg, session.NewMemoryStore(0), cmdSvc, registry, wirecapture.NewBuffered(wirecapture.Config{}, nil), nil, zap.NewNop().Sugar())
	return p
}

func TestAuthenticate_DisabledAlwaysSucceeds(t *testing.T) {
	p := testPipeline(t, testRegistry(t, nil), Config{DisableAuth: true})
	assert.NoError(t, p.Authenticate(""))
}

func TestAuthenticate_ValidKeySucceeds(t *testing.T) {
	p := testPipeline(t, testRegistry(t, nil), Config{APIKeys: []string{"secret"}})
	assert.NoError(t, p.Authenticate("Bearer secret"))
}

func TestAuthenticate_InvalidKeyFails(t *testing.T) {
	p := testPipeline(t, testRegistry(t, nil), Config{APIKeys: []string{"secret"}})
	err := p.Authenticate("Bearer wrong")
	require.Error(t, err)
	assert.Equal(t, apperr.KindAuthentication, err.(*apperr.Error).Kind)
}

func TestAuthenticate_MissingCredentialsFails(t *testing.T) {
	p := testPipeline(t, testRegistry(t, nil), Config{APIKeys: []string{"secret"}})
	assert.Error(t, p.Authenticate(""))
}

func TestHandle_SuccessfulForwardReturnsResponse(t *testing.T) {
	conn := &fakeConnector{models: []string{"gpt-4o"}, resp: proxytypes.ChatResponse{
		Choices: []proxytypes.Choice{{Message: proxytypes.Message{Role: proxytypes.RoleAssistant, Content: "hi"}}},
	}}
	reg := testRegistry(t, map[string]*fakeConnector{"openai": conn})
	p := testPipeline(t, reg, Config{DisableAuth: true, DefaultBackend: "openai", DefaultModel: "gpt-4o"})

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "hello"}}}
	out, err := p.Handle(context.Background(), "s1", req, "127.0.0.1", "test-agent", "req-1", false)
	require.NoError(t, err)
	assert.Equal(t, "openai", out.BackendName)
	assert.Equal(t, "gpt-4o", out.Model)
	assert.Equal(t, 1, conn.calls)
}

func TestHandle_UnknownModelReturnsInvalidRequest(t *testing.T) {
	conn := &fakeConnector{models: []string{"gpt-4o"}}
	reg := testRegistry(t, map[string]*fakeConnector{"openai": conn})
	p := testPipeline(t, reg, Config{DisableAuth: true, DefaultBackend: "openai", DefaultModel: "unknown-model"})

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "hello"}}}
	_, err := p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidRequest, err.(*apperr.Error).Kind)
}

func TestHandle_ForceProjectMismatchReturnsConfigurationError(t *testing.T) {
	reg := testRegistry(t, nil)
	p := testPipeline(t, reg, Config{DisableAuth: true, ForceProject: "team-a"})

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "hi"}}}
	_, err := p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfiguration, err.(*apperr.Error).Kind)
}

func TestHandle_RequestedBackendModelPrefixOverridesDefault(t *testing.T) {
	openaiConn := &fakeConnector{models: []string{"gpt-4o"}, resp: proxytypes.ChatResponse{
		Choices: []proxytypes.Choice{{Message: proxytypes.Message{Role: proxytypes.RoleAssistant, Content: "hi"}}},
	}}
	anthropicConn := &fakeConnector{models: []string{"claude-3"}}
	reg := testRegistry(t, map[string]*fakeConnector{"openai": openaiConn, "anthropic": anthropicConn})
	p := testPipeline(t, reg, Config{DisableAuth: true, DefaultBackend: "anthropic", DefaultModel: "claude-3"})

	req := proxytypes.ChatRequest{Model: "openai:gpt-4o", Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "hi"}}}
	out, err := p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.NoError(t, err)
	assert.Equal(t, "openai", out.BackendName)
	assert.Equal(t, 1, openaiConn.calls)
	assert.Equal(t, 0, anthropicConn.calls)
}

func TestHandle_CommandOnlyMessageShortCircuitsWithoutCallingBackend(t *testing.T) {
	reg := testRegistry(t, map[string]*fakeConnector{"openai": {models: []string{"gpt-4o"}}})

	cmdRegistry := commands.NewRegistry()
	cmdRegistry.Register(&fakeHandler{name: "hello", result: commands.Result{Success: true, Message: "hi there"}})
	cmdSvc := commands.NewService(cmdRegistry, commands.NewParser("!/"))

	p := New(Config{DisableAuth: true, DefaultBackend: "openai", DefaultModel: "gpt-4o"}, session.NewMemoryStore(0), cmdSvc, reg, wirecapture.NewBuffered(wirecapture.Config{}, nil), nil, zap.NewNop().Sugar())

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "!/hello"}}}
	out, err := p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.NoError(t, err)
	assert.True(t, out.CommandOnly)
	assert.Equal(t, "hi there", out.Response.Choices[0].Message.Content)
}

// TestHandle_RealSecurityWiringStillExecutesInlineCommand exercises the
// composition root's actual WithSecurity wiring (a real, non-nil
// CommandFilter, same as cmd/gateway/main.go installs for every production
// request) rather than the zero-value ctx.CommandFilter the other tests
// leave unset. A Pipeline built this way must still execute "!/hello":
// the Command Filter is a post-command leak backstop, not a pre-command
// gate that could erase the command text before the Command Service ever
// parses it.
func TestHandle_RealSecurityWiringStillExecutesInlineCommand(t *testing.T) {
	reg := testRegistry(t, map[string]*fakeConnector{"openai": {models: []string{"gpt-4o"}}})

	cmdRegistry := commands.NewRegistry()
	cmdRegistry.Register(&fakeHandler{name: "hello", result: commands.Result{Success: true, Message: "hi there"}})
	cmdSvc := commands.NewService(cmdRegistry, commands.NewParser("!/"))

	p := New(Config{DisableAuth: true, DefaultBackend: "openai", DefaultModel: "gpt-4o"}, session.NewMemoryStore(0), cmdSvc, reg, wirecapture.NewBuffered(wirecapture.Config{}, nil), nil, zap.NewNop().Sugar())
	p = p.WithSecurity(security.NewRedactor(nil, zap.NewNop().Sugar()), security.NewCommandFilter("!/", zap.NewNop().Sugar()))

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "!/hello"}}}
	out, err := p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.NoError(t, err)
	assert.True(t, out.CommandOnly)
	assert.Equal(t, "hi there", out.Response.Choices[0].Message.Content)
}

func TestHandle_RetriesNextSequenceElementOnRetryableFailure(t *testing.T) {
	openaiConn := &fakeConnector{models: []string{"gpt-4o"}, callErr: &backend.Error{StatusCode: 503, Retryable: true}}
	anthropicConn := &fakeConnector{models: []string{"claude-3"}, resp: proxytypes.ChatResponse{
		Choices: []proxytypes.Choice{{Message: proxytypes.Message{Role: proxytypes.RoleAssistant, Content: "fallback"}}},
	}}
	reg := testRegistry(t, map[string]*fakeConnector{"openai": openaiConn, "anthropic": anthropicConn})
	p := testPipeline(t, reg, Config{DisableAuth: true, DefaultBackend: "openai", DefaultModel: "gpt-4o"})

	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	sess.State.BackendConfig.FailoverRoutes = map[string]session.FailoverRoute{
		"r1": {Name: "r1", Policy: session.PolicyModelFirst, Elements: []string{"openai:gpt-4o", "anthropic:claude-3"}},
	}
	_, err := p.sessions.GetOrCreate(context.Background(), "s1")
	require.NoError(t, err)
	require.NoError(t, p.sessions.Mutate(context.Background(), "s1", func(s *session.Session) error {
		s.State = sess.State
		return nil
	}))

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "hi"}}}
	out, err := p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", out.BackendName)
	assert.Equal(t, 1, openaiConn.calls)
	assert.Equal(t, 1, anthropicConn.calls)
}

func TestHandle_NonRetryableFailureStopsSequenceImmediately(t *testing.T) {
	openaiConn := &fakeConnector{models: []string{"gpt-4o"}, callErr: &backend.Error{StatusCode: 400, Retryable: false}}
	anthropicConn := &fakeConnector{models: []string{"claude-3"}}
	reg := testRegistry(t, map[string]*fakeConnector{"openai": openaiConn, "anthropic": anthropicConn})
	p := testPipeline(t, reg, Config{DisableAuth: true, DefaultBackend: "openai", DefaultModel: "gpt-4o"})

	sess := &session.Session{ID: "s1", State: session.NewDefaultState()}
	sess.State.BackendConfig.FailoverRoutes = map[string]session.FailoverRoute{
		"r1": {Name: "r1", Policy: session.PolicyModelFirst, Elements: []string{"openai:gpt-4o", "anthropic:claude-3"}},
	}
	_, err := p.sessions.GetOrCreate(context.Background(), "s1")
	require.NoError(t, err)
	require.NoError(t, p.sessions.Mutate(context.Background(), "s1", func(s *session.Session) error {
		s.State = sess.State
		return nil
	}))

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "hi"}}}
	_, err = p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.Error(t, err)
	assert.Equal(t, 1, openaiConn.calls)
	assert.Equal(t, 0, anthropicConn.calls)
}

func TestHandle_AllSequenceElementsFailReturnsBackendError(t *testing.T) {
	conn := &fakeConnector{models: []string{"gpt-4o"}, callErr: errors.New("boom")}
	reg := testRegistry(t, map[string]*fakeConnector{"openai": conn})
	p := testPipeline(t, reg, Config{DisableAuth: true, DefaultBackend: "openai", DefaultModel: "gpt-4o"})

	req := proxytypes.ChatRequest{Messages: []proxytypes.Message{{Role: proxytypes.RoleUser, Content: "hi"}}}
	_, err := p.Handle(context.Background(), "s1", req, "", "", "", false)
	require.Error(t, err)
	assert.Equal(t, apperr.KindBackend, err.(*apperr.Error).Kind)
}

type fakeHandler struct {
	name   string
	result commands.Result
}

func (f *fakeHandler) Name() string        { return f.name }
func (f *fakeHandler) Description() string { return "fake" }
func (f *fakeHandler) Format() string      { return "!/" + f.name }
func (f *fakeHandler) Examples() []string  { return nil }
func (f *fakeHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	return f.result
}
