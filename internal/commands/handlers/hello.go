// In file: internal/commands/handlers/hello.go
package handlers

import (
	"fmt"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// HelloHandler implements the `hello` command: sets hello_requested and
// returns a fixed welcome message. Grounded on hello_command_handler.py.
type HelloHandler struct {
	// FunctionalBackends is consulted at Handle time so the welcome banner
	// always reflects current backend health rather than a snapshot taken
	// at registration time.
	FunctionalBackends func() []string
}

func (h *HelloHandler) Name() string        { return "hello" }
func (h *HelloHandler) Description() string { return "Show the welcome banner and list available commands." }
func (h *HelloHandler) Format() string      { return "!/hello" }
func (h *HelloHandler) Examples() []string  { return []string{"!/hello"} }

func (h *HelloHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	newState := sess.State.WithHelloRequested(true)

	var backends string
	if h.FunctionalBackends != nil {
		if names := h.FunctionalBackends(); len(names) > 0 {
			backends = strings.Join(names, ", ")
		}
	}
	if backends == "" {
		backends = "(none currently healthy)"
	}

	msg := fmt.Sprintf(
		"Welcome! This proxy understands inline commands prefixed with !/. "+
			"Available backends: %s. Use !/help to list all commands, !/set(key=value) to "+
			"change session settings, and !/unset(key) to clear one.",
		backends,
	)

	return commands.Result{Success: true, Message: msg, NewState: &newState}
}
