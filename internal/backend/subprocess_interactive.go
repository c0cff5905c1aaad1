// In file: internal/backend/subprocess_interactive.go
package backend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// SubprocessInteractiveConnector keeps one long-lived CLI child process
// alive for the backend's entire lifetime, writing each prompt to its
// stdin and reading back the response until the next `> ` prompt sentinel
// line. Grounded on
// original_source/src/connectors/gemini_cli_interactive.py's
// GeminiCliInteractiveConnector: _send_prompt's readline-until-prompt loop
// and the `/model <name>\n<prompt>` inline directive for per-call model
// switches (the process itself is never restarted to change models).
type SubprocessInteractiveConnector struct {
	name       string
	executable string
	models     []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

var _ Connector = (*SubprocessInteractiveConnector)(nil)

func NewSubprocessInteractiveConnector(name, executable string, knownModels []string) *SubprocessInteractiveConnector {
	return &SubprocessInteractiveConnector{name: name, executable: executable, models: knownModels}
}

func (c *SubprocessInteractiveConnector) Kind() Kind                { return KindSubprocessInteractive }
func (c *SubprocessInteractiveConnector) AvailableModels() []string { return c.models }

func (c *SubprocessInteractiveConnector) Initialize(ctx context.Context, apiKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := exec.CommandContext(context.Background(), c.executable)
	cmd.Env = sanitizedEnv()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.executable, err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)
	return nil
}

// sendPrompt writes one prompt (prefixed with an inline /model directive
// when a model switch is requested) and reads back everything up to the
// next `> ` prompt sentinel line.
func (c *SubprocessInteractiveConnector) sendPrompt(prompt, model string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stdin == nil || c.stdout == nil {
		return "", &Error{Err: fmt.Errorf("%s process is not running", c.name)}
	}

	cmd := strings.TrimSpace(prompt)
	if model != "" {
		if idx := strings.LastIndex(model, "/"); idx >= 0 {
			model = model[idx+1:]
		}
		cmd = fmt.Sprintf("/model %s\n%s", model, cmd)
	}
	if _, err := c.stdin.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	var b strings.Builder
	for {
		line, err := c.stdout.ReadString('\n')
		if strings.HasPrefix(line, "> ") {
			break
		}
		b.WriteString(line)
		if err != nil {
			break // EOF: the process exited
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func (c *SubprocessInteractiveConnector) ChatCompletions(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (proxytypes.ChatResponse, error) {
	var userContent string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == proxytypes.RoleUser {
			userContent = req.Messages[i].Content
			break
		}
	}
	if userContent == "" {
		return proxytypes.ChatResponse{}, &Error{StatusCode: 400, Body: "no user message to send to " + c.name}
	}

	result, err := c.sendPrompt(userContent, req.Model)
	if err != nil {
		return proxytypes.ChatResponse{}, err
	}

	promptWords := len(strings.Fields(userContent))
	resultWords := len(strings.Fields(result))
	return proxytypes.ChatResponse{
		ID:      "chatcmpl-" + c.name + "-int",
		Object:  "chat.completion",
		Model:   req.Model,
		Choices: []proxytypes.Choice{{Message: proxytypes.Message{Role: proxytypes.RoleAssistant, Content: result}, FinishReason: "stop"}},
		Usage: proxytypes.Usage{
			PromptTokens:     promptWords,
			CompletionTokens: resultWords,
			TotalTokens:      promptWords + resultWords,
		},
	}, nil
}

// ChatCompletionsStream emits the result word-by-word after the full
// response has been read, matching the original's simple word-chunked
// generator (the interactive CLI gives no true token-level stream).
func (c *SubprocessInteractiveConnector) ChatCompletionsStream(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (<-chan StreamEvent, error) {
	resp, err := c.ChatCompletions(ctx, req, apiKey)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		content := ""
		if len(resp.Choices) > 0 {
			content = resp.Choices[0].Message.Content
		}
		for _, w := range strings.Fields(content) {
			select {
			case <-ctx.Done():
				return
			case out <- StreamEvent{Chunk: proxytypes.StreamChunk{ID: resp.ID, Model: resp.Model, ContentDelta: w + " "}}:
			}
		}
		out <- StreamEvent{Chunk: proxytypes.StreamChunk{ID: resp.ID, Model: resp.Model, FinishReason: "stop"}, Done: true}
	}()
	return out, nil
}

// Shutdown terminates the child process and waits up to five seconds for
// it to exit before giving up, closing all three pipes in every case.
func (c *SubprocessInteractiveConnector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	_ = c.cmd.Process.Kill()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	if c.stdin != nil {
		c.stdin.Close()
	}
	c.cmd = nil
	c.stdin = nil
	c.stdout = nil
	return nil
}
