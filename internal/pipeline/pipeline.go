// In file: internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/apperr"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/backend"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/failover"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/obs"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/response"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/security"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/wirecapture"
)

// Config holds the pipeline's per-process configuration: accepted
// credentials and the backend used when a request names none.
type Config struct {
	APIKeys        []string
	DisableAuth    bool
	ForceProject   string // non-empty pins every session to one project name
	DefaultBackend string
	DefaultModel   string
}

// Pipeline is the Request Pipeline (spec §4.12): it authenticates,
// resolves a session, runs the command filter/parser/handler chain, routes
// to a backend through the Failover Engine, captures wire traffic, and
// records the interaction. Grounded on cmd/gateway/handler.go's
// GatewayHandler.HandleGeneration for the overall composition shape (one
// struct holding every collaborator, one top-level Handle method), with
// the RAG/intent/tool-loop branching replaced by command processing and
// failover walking.
type Pipeline struct {
	cfg Config

	sessions session.Store
	commands *commands.Service
	registry *backend.Registry
	engine   *failover.Engine
	capture  wirecapture.Capture
	resp     *response.Manager
	chain    *MiddlewareChain

	metrics *obs.Metrics
	log     *zap.SugaredLogger

	redactor  *security.Redactor
	cmdFilter *security.CommandFilter
}

// Wire-format parsing/rendering (OpenAI, Gemini, Anthropic request and
// response bodies) is the transport adapter's job, not the pipeline's: the
// adapter translates a wire request into a proxytypes.ChatRequest before
// calling Handle, and renders the returned Outcome back into its own wire
// shape. The pipeline only ever sees the canonical types.

// New builds a Pipeline from its collaborators.
func New(
	cfg Config,
	sessions session.Store,
	cmdSvc *commands.Service,
	registry *backend.Registry,
	capture wirecapture.Capture,
	metrics *obs.Metrics,
	log *zap.SugaredLogger,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		sessions: sessions,
		commands: cmdSvc,
		registry: registry,
		engine:   failover.NewEngine(),
		capture:  capture,
		resp:     response.NewManager(),
		chain:    NewMiddlewareChain(RedactionProcessor{}),
		metrics:  metrics,
		log:      log,
	}
}

// WithMiddleware replaces the default single-processor chain.
func (p *Pipeline) WithMiddleware(chain *MiddlewareChain) *Pipeline {
	p.chain = chain
	return p
}

// WithSecurity installs the Redactor (applied pre-command, by the
// middleware chain's RedactionProcessor) and the Command Filter (applied
// post-command, by FilterLeakedCommands just before forwarding), per spec
// §4.1/§4.2. Left unset, a Pipeline built via New still strips commands
// through the Command Service (the primary execution path) but skips the
// secondary redaction/leak-detection pass.
func (p *Pipeline) WithSecurity(redactor *security.Redactor, cmdFilter *security.CommandFilter) *Pipeline {
	p.redactor = redactor
	p.cmdFilter = cmdFilter
	return p
}

// Authenticate validates a bearer token or x-goog-api-key value against the
// configured API keys. Step 1 of spec §4.12.
func (p *Pipeline) Authenticate(presented string) error {
	if p.cfg.DisableAuth {
		return nil
	}
	presented = strings.TrimSpace(strings.TrimPrefix(presented, "Bearer "))
	if presented == "" {
		return apperr.Authentication("missing credentials")
	}
	for _, k := range p.cfg.APIKeys {
		if k == presented {
			return nil
		}
	}
	return apperr.Authentication("invalid API key")
}

// Outcome is everything a transport adapter (the OpenAI or Gemini HTTP
// route) needs to render a response.
type Outcome struct {
	Response      proxytypes.ChatResponse
	CommandOnly   bool // true when a command short-circuited the call
	BackendName   string
	Model         string
	StreamChannel <-chan backend.StreamEvent
}

// Handle runs steps 2-12 of the request pipeline for one non-streaming or
// streaming chat request. sessionID comes from the X-Session-ID header (or
// "default" when absent); requestedBackendModel is the client's `model`
// field, which may carry a "backend:model" prefix per spec §4.8.
func (p *Pipeline) Handle(ctx context.Context, sessionID string, req proxytypes.ChatRequest, clientHost, userAgent, requestID string, wantStream bool) (Outcome, error) {
	sess, err := p.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return Outcome{}, apperr.Internal("session store unavailable", err)
	}

	if sess.Agent == "" {
		if agent := DetectAgentWithHistory(req.Messages, len(sess.History)); agent != "" {
			_ = p.sessions.Mutate(ctx, sessionID, func(s *session.Session) error {
				s.Agent = agent
				return nil
			})
			sess.Agent = agent
		}
	}

	reqCtx := RequestContext{
		SessionID:        sessionID,
		RedactionEnabled: true,
		Redactor:         p.redactor,
	}
	messages := p.chain.Process(req.Messages, reqCtx)

	processed, err := p.commands.ProcessCommands(ctx, messages, sess, p.sessions)
	if err != nil {
		return Outcome{}, apperr.Internal("command processing failed", err)
	}

	if processed.CommandExecuted && len(processed.CommandResults) > 0 {
		last := processed.CommandResults[len(processed.CommandResults)-1]
		if !hasForwardableContent(processed.ModifiedMessages) {
			resp := p.resp.Format(last, sess)
			p.appendInteraction(ctx, sessionID, proxytypes.SessionInteraction{
				Handler:  "proxy",
				Prompt:   last.Name,
				Response: last.Message,
			})
			if p.metrics != nil {
				p.metrics.RecordCommandExecution(last.Name, statusOf(last.Success))
			}
			return Outcome{Response: resp, CommandOnly: true}, nil
		}
	}

	if p.cfg.ForceProject != "" && sess.State.Project != p.cfg.ForceProject {
		return Outcome{}, apperr.Configuration("session project does not match the configured forced project")
	}

	backendName, model := p.effectiveBackendModel(sess, req.Model)
	if ok, reason := p.registry.ValidateBackendAndModel(backendName, model); !ok {
		return Outcome{}, apperr.InvalidRequest(reason)
	}

	// The Command Filter runs here, after the Command Service has already
	// had its chance to parse and execute inline commands: anything it
	// still matches is a leak, not an intended strip.
	outReq := req
	outReq.Messages = FilterLeakedCommands(processed.ModifiedMessages, p.cmdFilter)
	outReq.Model = model
	outReq.Stream = wantStream

	meta := proxytypes.WireCaptureMetadata{ClientHost: clientHost, UserAgent: userAgent, RequestID: requestID}

	route, keyCounts := p.failoverContext(sess, backendName, model)
	sequence := p.engine.BuildSequence(route, keyCounts)
	if len(sequence) == 0 {
		sequence = []string{backendName + ":" + model}
	}

	var lastErr error
	for i, element := range sequence {
		attemptBackend, attemptModel := backend.SplitModel(element)
		if attemptBackend == "" {
			attemptBackend = backendName
		}
		if attemptModel == "" {
			attemptModel = model
		}

		resolved, rerr := p.registry.Resolve(attemptBackend)
		if rerr != nil {
			lastErr = apperr.Backend("backend unavailable", 0, rerr)
			continue
		}

		attemptReq := outReq
		attemptReq.Model = attemptModel

		start := time.Now()
		p.capture.CaptureOutboundRequest(sessionID, attemptBackend, attemptModel, resolved.KeyName, attemptReq, meta)

		if wantStream {
			events, serr := resolved.Connector.ChatCompletionsStream(ctx, attemptReq, resolved.APIKey)
			if serr != nil {
				lastErr = serr
				p.recordFailure(attemptBackend, attemptModel, route.Name, i, time.Since(start))
				if !p.engine.ShouldRetry(serr) {
					break
				}
				continue
			}
			p.recordSuccess(attemptBackend, attemptModel, time.Since(start))
			p.appendInteraction(ctx, sessionID, proxytypes.SessionInteraction{Handler: "backend", Backend: attemptBackend, Model: attemptModel, Prompt: lastUserText(attemptReq.Messages)})
			return Outcome{BackendName: attemptBackend, Model: attemptModel, StreamChannel: events}, nil
		}

		resp, cerr := resolved.Connector.ChatCompletions(ctx, attemptReq, resolved.APIKey)
		if cerr != nil {
			lastErr = cerr
			p.recordFailure(attemptBackend, attemptModel, route.Name, i, time.Since(start))
			if !p.engine.ShouldRetry(cerr) {
				break
			}
			continue
		}

		p.recordSuccess(attemptBackend, attemptModel, time.Since(start))
		p.capture.CaptureInboundResponse(sessionID, attemptBackend, attemptModel, resolved.KeyName, resp, meta)
		p.appendInteraction(ctx, sessionID, proxytypes.SessionInteraction{
			Handler:  "backend",
			Backend:  attemptBackend,
			Model:    attemptModel,
			Prompt:   lastUserText(attemptReq.Messages),
			Response: lastAssistantText(resp),
			Usage:    &resp.Usage,
		})
		return Outcome{Response: resp, BackendName: attemptBackend, Model: attemptModel}, nil
	}

	if lastErr == nil {
		lastErr = apperr.ServiceUnavailable("no backend in the failover sequence succeeded")
	}
	return Outcome{}, wrapBackendErr(lastErr)
}

// appendInteraction persists one SessionInteraction through Mutate so the
// write survives on both MemoryStore and RedisStore, rather than mutating
// the caller's already-fetched *Session in place (which RedisStore's
// decode-per-call semantics would silently drop).
func (p *Pipeline) appendInteraction(ctx context.Context, sessionID string, in proxytypes.SessionInteraction) {
	_ = p.sessions.Mutate(ctx, sessionID, func(s *session.Session) error {
		s.AppendInteraction(in)
		return nil
	})
}

func (p *Pipeline) recordFailure(backendName, model, route string, attemptIndex int, dur time.Duration) {
	p.registry.Health().RecordFailure(backendName)
	if p.metrics != nil {
		p.metrics.RecordBackendRequest(backendName, model, "error", dur.Seconds())
		if attemptIndex > 0 {
			p.metrics.RecordFailoverRetry(route, backendName)
		}
	}
}

func (p *Pipeline) recordSuccess(backendName, model string, dur time.Duration) {
	p.registry.Health().RecordSuccess(backendName, dur)
	if p.metrics != nil {
		p.metrics.RecordBackendRequest(backendName, model, "success", dur.Seconds())
	}
}

// effectiveBackendModel resolves the backend/model precedence from spec
// §4.8: an explicit request-side "backend:model" prefix wins, then the
// session's pinned backend/model, then the pipeline's configured default.
func (p *Pipeline) effectiveBackendModel(sess *session.Session, requestedModel string) (string, string) {
	if b, m := backend.SplitModel(requestedModel); b != "" {
		return b, m
	}
	if sess.State.BackendConfig.BackendType != "" {
		model := sess.State.BackendConfig.Model
		if model == "" {
			model = requestedModel
		}
		return sess.State.BackendConfig.BackendType, model
	}
	if requestedModel != "" {
		return p.cfg.DefaultBackend, requestedModel
	}
	return p.cfg.DefaultBackend, p.cfg.DefaultModel
}

func (p *Pipeline) failoverContext(sess *session.Session, backendName, model string) (session.FailoverRoute, map[string]int) {
	keyCounts := map[string]int{}
	for _, name := range p.registry.FunctionalBackends() {
		keyCounts[name] = p.registry.KeyCount(name)
	}

	for _, route := range sess.State.BackendConfig.FailoverRoutes {
		for _, el := range route.Elements {
			b, _ := backend.SplitModel(el)
			if b == backendName {
				return route, keyCounts
			}
		}
	}
	return session.FailoverRoute{Elements: []string{backendName + ":" + model}}, keyCounts
}

// hasForwardableContent reports whether, after command stripping, any
// message still carries text or parts worth sending to a backend. A
// request that was pure command syntax (e.g. a lone "!/set(model=x)")
// leaves nothing to forward, so the command's own result is the response.
func hasForwardableContent(messages []proxytypes.Message) bool {
	for _, m := range messages {
		if strings.TrimSpace(m.Content) != "" || m.HasParts() {
			return true
		}
	}
	return false
}

func statusOf(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func lastUserText(messages []proxytypes.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == proxytypes.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func lastAssistantText(resp proxytypes.ChatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[len(resp.Choices)-1].Message.Content
}

func wrapBackendErr(err error) error {
	if _, ok := err.(*apperr.Error); ok {
		return err
	}
	if berr, ok := err.(*backend.Error); ok {
		return apperr.Backend(berr.Error(), berr.StatusCode, berr.Err)
	}
	return apperr.Backend(err.Error(), 0, err)
}
