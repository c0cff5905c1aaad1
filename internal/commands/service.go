// In file: internal/commands/service.go
package commands

import (
	"context"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// ProcessedResult is the outcome of running the command pipeline over one
// request's message list.
type ProcessedResult struct {
	ModifiedMessages []proxytypes.Message
	CommandExecuted  bool
	CommandResults   []Result
}

// Service implements the reverse-scan command-execution algorithm: the
// latest user message containing a parseable command is "the executor";
// every earlier user message has its commands stripped but never executed.
// Grounded line-for-line on NewCommandService.process_commands.
type Service struct {
	registry *Registry
	legacy   *Registry // optional secondary registry bridge
	parser   *Parser
}

// NewService builds a Command Service over the primary registry. AddLegacy
// installs an optional secondary registry consulted when a name is unknown
// to the primary one.
func NewService(registry *Registry, parser *Parser) *Service {
	return &Service{registry: registry, parser: parser}
}

func (s *Service) WithLegacy(legacy *Registry) *Service {
	s.legacy = legacy
	return s
}

// ProcessCommands walks messages in reverse looking for the executor,
// executes exactly one handler, installs any resulting new state back into
// the session via the store, and strips (without executing) any commands
// in earlier user messages.
func (s *Service) ProcessCommands(ctx context.Context, messages []proxytypes.Message, sess *session.Session, store session.Store) (ProcessedResult, error) {
	out := make([]proxytypes.Message, len(messages))
	copy(out, messages)

	executedAt := -1
	var results []Result

	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role != proxytypes.RoleUser || out[i].HasParts() {
			continue
		}
		spans := s.parser.ParseAll(out[i].Content)
		if len(spans) == 0 {
			continue
		}
		parsed := spans[len(spans)-1]

		result, handled := s.execute(parsed.Command, sess)
		if !handled {
			// Unknown to both registries. If there are earlier user
			// messages, treat the whole request as command-only and stop
			// scanning; otherwise fall through untouched.
			if hasEarlierUserMessage(out, i) {
				executedAt = i
				break
			}
			continue
		}

		// A message may name more than one syntactically valid command;
		// only the last one (parsed above) executes, but every command
		// literal in the message is stripped, not just the executed one.
		out[i].Content = stripSpans(out[i].Content, spans, result.Name == "hello" || parsed.Bare)
		executedAt = i
		results = append(results, result)

		if result.NewState != nil && store != nil {
			_ = store.Mutate(ctx, sess.ID, func(sv *session.Session) error {
				sv.State = *result.NewState
				return nil
			})
			sess.State = *result.NewState
		}
		break
	}

	if executedAt < 0 {
		return ProcessedResult{ModifiedMessages: out, CommandExecuted: false}, nil
	}

	for i := 0; i < executedAt; i++ {
		if out[i].Role != proxytypes.RoleUser || out[i].HasParts() {
			continue
		}
		if spans := s.parser.ParseAll(out[i].Content); len(spans) > 0 {
			out[i].Content = stripSpans(out[i].Content, spans, spans[len(spans)-1].Bare)
		}
	}

	return ProcessedResult{ModifiedMessages: out, CommandExecuted: true, CommandResults: results}, nil
}

func hasEarlierUserMessage(msgs []proxytypes.Message, idx int) bool {
	for i := 0; i < idx; i++ {
		if msgs[i].Role == proxytypes.RoleUser {
			return true
		}
	}
	return false
}

// execute resolves a parsed command against the primary registry, falling
// back to the legacy registry bridge. Returns handled=false if neither
// registry knows the name.
func (s *Service) execute(cmd Command, sess *session.Session) (Result, bool) {
	if h, ok := s.registry.Get(cmd.Name); ok {
		r := h.Handle(cmd, sess, s.registry)
		r.Name = cmd.Name
		return r, true
	}
	if s.legacy != nil {
		if h, ok := s.legacy.Get(cmd.Name); ok {
			r := h.Handle(cmd, sess, s.legacy)
			r.Name = cmd.Name
			return r, true
		}
	}
	return Result{}, false
}

// stripSpans removes every given command's literal span from text. Spans
// are removed right-to-left so that earlier offsets stay valid as later
// ones are cut. For a bare "hello"-shaped executed command, the
// surrounding text is preserved exactly (only the matched spans are cut);
// for every other command, the result is additionally trimmed.
func stripSpans(text string, spans []ParsedCommand, preserveSurrounding bool) string {
	stripped := text
	for i := len(spans) - 1; i >= 0; i-- {
		p := spans[i]
		stripped = stripped[:p.Start] + stripped[p.End:]
	}
	if preserveSurrounding {
		return stripped
	}
	return strings.TrimSpace(stripped)
}
