// In file: internal/pipeline/agent_detect.go
package pipeline

import (
	"regexp"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// clineMarkers are the XML-ish tool tags Cline wraps its tool protocol in.
// Any one of them appearing in a message body is a strong signal the
// calling agent is Cline rather than a plain chat client. Adapted from the
// regex-keyword classification idiom in the teacher's intent-detection
// layer (one compiled pattern per candidate class, first match wins),
// retargeted from weather/news/calculator intents onto agent fingerprints.
var clineMarkers = regexp.MustCompile(`(?i)<(attempt_completion|ask_followup_question|execute_command|read_file|write_to_file|replace_in_file|use_mcp_tool)\b`)

// DetectAgent inspects a request's message history and returns the agent
// fingerprint to store on the session: session.ClineAgent when Cline's tool
// markers are present, "" otherwise (plain OpenAI/Gemini client). Detection
// runs once per request rather than being cached on the session state
// forever, since a single session id may be reused by different tools
// across its lifetime.
func DetectAgent(messages []proxytypes.Message) string {
	for _, m := range messages {
		if clineMarkers.MatchString(m.Content) {
			return session.ClineAgent
		}
		for _, p := range m.Parts {
			if clineMarkers.MatchString(p.Text) {
				return session.ClineAgent
			}
		}
	}
	return ""
}

// looksLikeToolHeavyHistory is a secondary signal: a history dominated by
// tool/function turns is consistent with an agent harness driving the
// conversation rather than a human chatting directly.
func looksLikeToolHeavyHistory(messages []proxytypes.Message) bool {
	if len(messages) == 0 {
		return false
	}
	var toolTurns int
	for _, m := range messages {
		if m.Role == proxytypes.RoleTool || m.Role == proxytypes.RoleFunction || len(m.ToolCalls) > 0 {
			toolTurns++
		}
	}
	return toolTurns*2 >= len(messages)
}

// DetectAgentWithHistory layers looksLikeToolHeavyHistory onto DetectAgent
// for sessions with accumulated SessionInteraction history, used once a
// session already has a few turns on record.
func DetectAgentWithHistory(messages []proxytypes.Message, priorInteractions int) string {
	if agent := DetectAgent(messages); agent != "" {
		return agent
	}
	if priorInteractions > 0 && looksLikeToolHeavyHistory(messages) {
		return session.ClineAgent
	}
	return ""
}
