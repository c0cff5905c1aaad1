// In file: internal/commands/handlers/help.go
package handlers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// HelpHandler implements `help [command]`. With no argument it enumerates
// every registered command; with one, it details that command only.
// Grounded on help_command_handler.py, including its arg-name resolution
// fallback chain (command_name -> command -> first positional value).
type HelpHandler struct{}

func (h *HelpHandler) Name() string        { return "help" }
func (h *HelpHandler) Description() string { return "List all commands, or describe one." }
func (h *HelpHandler) Format() string      { return "!/help or !/help(command_name=<name>)" }
func (h *HelpHandler) Examples() []string  { return []string{"!/help", "!/help(command=model)"} }

func (h *HelpHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	target := cmd.StringArg("command_name", "command")

	if target == "" {
		if intro == nil {
			return commands.Result{Success: true, Message: "Command help is unavailable right now."}
		}
		all := intro.ListCommands()
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
		lines := make([]string, 0, len(all))
		for _, c := range all {
			lines = append(lines, fmt.Sprintf("%s — %s", c.Format, c.Description))
		}
		return commands.Result{Success: true, Message: strings.Join(lines, "\n")}
	}

	if intro == nil {
		return commands.Result{Success: false, Message: fmt.Sprintf("Unknown command: %s", target)}
	}
	info, ok := intro.Describe(target)
	if !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("Unknown command: %s", target)}
	}
	msg := fmt.Sprintf("%s\n%s\nExamples:\n  %s", info.Format, info.Description, strings.Join(info.Examples, "\n  "))
	return commands.Result{Success: true, Message: msg}
}
