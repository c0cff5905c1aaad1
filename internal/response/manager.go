// In file: internal/response/manager.go
package response

import (
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// Manager packages a commands.Result as either a plain assistant message or
// a synthetic tool_calls response, keyed on the session's detected agent.
// Grounded on
// original_source/src/core/services/response_manager_service.py's
// ResponseManager + AgentResponseFormatter.
type Manager struct{}

func NewManager() *Manager { return &Manager{} }

// Format builds the canonical ChatResponse envelope for a command result.
// Per spec §4.11: Cline gets a synthetic tool_calls message with
// content=null; everyone else gets a plain assistant message.
func (m *Manager) Format(result commands.Result, sess *session.Session) proxytypes.ChatResponse {
	message := result.Message
	if result.IsPytestOutput {
		message = applyPytestCompression(result.Name, message, sess.State)
	}

	if sess.Agent == session.ClineAgent {
		return toolCallsResponse(result.Name, message)
	}
	return plainResponse(message)
}

func plainResponse(message string) proxytypes.ChatResponse {
	return proxytypes.ChatResponse{
		ID:     "proxy_cmd_processed",
		Object: "chat.completion",
		Model:  "proxy",
		Choices: []proxytypes.Choice{{
			Message:      proxytypes.Message{Role: proxytypes.RoleAssistant, Content: message},
			FinishReason: "stop",
		}},
	}
}

func toolCallsResponse(commandName, message string) proxytypes.ChatResponse {
	if commandName == "" {
		commandName = "unknown_command"
	}
	argsJSON, _ := json.Marshal(map[string]string{"result": message})

	return proxytypes.ChatResponse{
		ID:     "proxy_cmd_processed",
		Object: "chat.completion",
		Model:  "proxy",
		Choices: []proxytypes.Choice{{
			Message: proxytypes.Message{
				Role:    proxytypes.RoleAssistant,
				Content: "",
				ToolCalls: []proxytypes.ToolCall{{
					ID:   "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16],
					Type: "function",
					Function: proxytypes.ToolCallFunction{
						Name:      commandName,
						Arguments: string(argsJSON),
					},
				}},
			},
			FinishReason: "tool_calls",
		}},
	}
}

var (
	pytestNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*pytest\b`),
		regexp.MustCompile(`(?i)^\s*python\s+-m\s+pytest\b`),
		regexp.MustCompile(`(?i)^\s*python3\s+-m\s+pytest\b`),
		regexp.MustCompile(`(?i)^\s*py\.test\b`),
	}
	passedLinePattern   = regexp.MustCompile(`(?i)\bPASSED\b`)
	timingSegmentPattern = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?s\s+(setup|call|teardown)\b|\bs\s+(setup|call|teardown)\b`)
	whitespaceRunPattern = regexp.MustCompile(`\s{2,}`)

	pytestErrorIndicators = []string{
		"Traceback (most recent call last):",
		"command not found",
		"SyntaxError:",
		"ERROR: file or directory not found",
	}
)

func isPytestCommand(name string) bool {
	for _, p := range pytestNamePatterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

// applyPytestCompression filters lines matching `\bPASSED\b`, strips
// inline timing segments, collapses whitespace, and always preserves the
// last line (the pytest run summary). Grounded on
// response_manager_service.py's _apply_pytest_compression_sync +
// _filter_pytest_output.
func applyPytestCompression(commandName, message string, state session.State) string {
	if message == "" {
		return message
	}
	if !state.PytestCompressionEnabled {
		return message
	}

	looksLikePytest := isPytestCommand(commandName) ||
		strings.Contains(message, "test session starts") ||
		strings.Contains(message, "short test summary info")
	if !looksLikePytest {
		return message
	}

	for _, ind := range pytestErrorIndicators {
		if strings.Contains(message, ind) {
			return message
		}
	}

	minLines := state.PytestCompressionMinLines
	if v := os.Getenv("PYTEST_COMPRESSION_MIN_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			minLines = n
		}
	}

	lines := strings.Split(message, "\n")
	if len(lines) < minLines {
		return message
	}

	return filterPytestOutput(message)
}

func filterPytestOutput(output string) string {
	lines := strings.Split(output, "\n")
	if len(lines) == 0 {
		return output
	}

	lastLine := lines[len(lines)-1]
	toProcess := lines[:len(lines)-1]

	var filtered []string
	for _, line := range toProcess {
		if passedLinePattern.MatchString(line) {
			continue
		}
		trimmed := timingSegmentPattern.ReplaceAllString(line, "")
		trimmed = whitespaceRunPattern.ReplaceAllString(trimmed, " ")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			filtered = append(filtered, trimmed)
		}
	}
	filtered = append(filtered, lastLine)

	return strings.Join(filtered, "\n")
}
