// In file: internal/pipeline/middleware.go
package pipeline

import (
	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/security"
)

// RequestContext carries the per-request metadata every Processor needs.
// Grounded on request_middleware.py's RequestContext.
type RequestContext struct {
	SessionID        string
	BackendType      string
	Model            string
	RedactionEnabled bool
	Redactor         *security.Redactor
	Metadata         map[string]any
}

// Processor is one pluggable step in the request middleware chain.
// Grounded on request_middleware.py's RequestProcessor base class.
type Processor interface {
	ShouldProcess(messages []proxytypes.Message, ctx RequestContext) bool
	Process(messages []proxytypes.Message, ctx RequestContext) []proxytypes.Message
}

// MiddlewareChain runs an ordered list of Processors over a request's
// messages. Grounded on request_middleware.py's RequestMiddleware.
type MiddlewareChain struct {
	stack []Processor
}

func NewMiddlewareChain(processors ...Processor) *MiddlewareChain {
	return &MiddlewareChain{stack: processors}
}

func (m *MiddlewareChain) AddProcessor(p Processor) {
	m.stack = append(m.stack, p)
}

func (m *MiddlewareChain) Process(messages []proxytypes.Message, ctx RequestContext) []proxytypes.Message {
	out := messages
	for _, p := range m.stack {
		if p.ShouldProcess(out, ctx) {
			out = p.Process(out, ctx)
		}
	}
	return out
}

// RedactionProcessor applies the Redactor to every message's string
// content or text parts. It runs before the Command Service ever sees the
// request, so it must never touch command syntax: the Command Filter pass
// (FilterLeakedCommands) is a separate, later step that runs only after
// commands have been parsed and executed. Grounded on
// request_middleware.py's RedactionProcessor.
type RedactionProcessor struct{}

func (RedactionProcessor) ShouldProcess(messages []proxytypes.Message, ctx RequestContext) bool {
	return ctx.RedactionEnabled && ctx.Redactor != nil
}

func (RedactionProcessor) Process(messages []proxytypes.Message, ctx RequestContext) []proxytypes.Message {
	out := make([]proxytypes.Message, len(messages))
	for i, m := range messages {
		cp := m
		if !cp.HasParts() {
			cp.Content = redactOnly(cp.Content, ctx)
		} else {
			parts := make([]proxytypes.Part, len(cp.Parts))
			copy(parts, cp.Parts)
			for j, p := range parts {
				if p.Type == proxytypes.PartText {
					parts[j].Text = redactOnly(p.Text, ctx)
				}
			}
			cp.Parts = parts
		}
		out[i] = cp
	}
	return out
}

func redactOnly(text string, ctx RequestContext) string {
	if text == "" || ctx.Redactor == nil {
		return text
	}
	return ctx.Redactor.Redact(text)
}

// FilterLeakedCommands runs the defensive Command Filter over messages
// after the Command Service has already had its chance to parse and
// execute (or strip) every inline command. Any command-shaped text that
// survives to this point is a leak bug upstream, per spec §4.2, not an
// intentional strip, so the filter's own warning log carries the count
// and literal spans removed.
func FilterLeakedCommands(messages []proxytypes.Message, cmdFilter *security.CommandFilter) []proxytypes.Message {
	if cmdFilter == nil {
		return messages
	}
	out := make([]proxytypes.Message, len(messages))
	for i, m := range messages {
		cp := m
		if !cp.HasParts() {
			cp.Content = filterLeakOnly(cp.Content, cmdFilter)
		} else {
			parts := make([]proxytypes.Part, len(cp.Parts))
			copy(parts, cp.Parts)
			for j, p := range parts {
				if p.Type == proxytypes.PartText {
					parts[j].Text = filterLeakOnly(p.Text, cmdFilter)
				}
			}
			cp.Parts = parts
		}
		out[i] = cp
	}
	return out
}

func filterLeakOnly(text string, cmdFilter *security.CommandFilter) string {
	if text == "" {
		return text
	}
	filtered, _ := cmdFilter.FilterCommands(text)
	return filtered
}
