// In file: internal/translate/anthropic.go
package translate

import (
	"encoding/json"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// Anthropic translates between the canonical ChatRequest/ChatResponse and
// the Anthropic Messages API wire format, adapted from the same
// request/response conversion idiom as anthropic_client.go but working
// directly against wire JSON: canonical `system` maps to Anthropic's
// top-level `system` string field (not a message in the `messages` array),
// matching the provider's documented convention referenced by spec §4.9.
type Anthropic struct{}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type anthropicContentBlock struct {
	Type      string                `json:"type"`
	Text      string                `json:"text,omitempty"`
	Source    *anthropicImageSource `json:"source,omitempty"`
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Input     map[string]any        `json:"input,omitempty"`
	ToolUseID string                `json:"tool_use_id,omitempty"`
	Content   string                `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string                   `json:"role"`
	Content []anthropicContentBlock  `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

const defaultAnthropicMaxTokens = 4096

// ToWire converts a canonical ChatRequest into an Anthropic Messages API
// request body.
func (Anthropic) ToWire(req proxytypes.ChatRequest) []byte {
	wire := anthropicRequest{
		Model:         req.Model,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.Stop,
		Stream:        req.Stream,
		MaxTokens:     defaultAnthropicMaxTokens,
	}
	if req.MaxTokens > 0 {
		wire.MaxTokens = req.MaxTokens
	}

	for _, m := range req.Messages {
		if m.Role == proxytypes.RoleSystem {
			if wire.System != "" {
				wire.System += "\n\n"
			}
			wire.System += m.Content
			continue
		}
		wire.Messages = append(wire.Messages, messageToAnthropic(m))
	}

	b, _ := json.Marshal(wire)
	return b
}

func messageToAnthropic(m proxytypes.Message) anthropicMessage {
	role := "user"
	if m.Role == proxytypes.RoleAssistant || m.Role == proxytypes.RoleModel {
		role = "assistant"
	}

	out := anthropicMessage{Role: role}

	if m.Role == proxytypes.RoleTool || m.Role == proxytypes.RoleFunction {
		out.Role = "user"
		out.Content = []anthropicContentBlock{{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}}
		return out
	}

	if m.HasParts() {
		for _, p := range m.Parts {
			out.Content = append(out.Content, partToAnthropic(p))
		}
	} else if m.Content != "" {
		out.Content = append(out.Content, anthropicContentBlock{Type: "text", Text: m.Content})
	}

	for _, tc := range m.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		out.Content = append(out.Content, anthropicContentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return out
}

func partToAnthropic(p proxytypes.Part) anthropicContentBlock {
	switch p.Type {
	case proxytypes.PartImage:
		src := &anthropicImageSource{Type: "url", URL: p.URL}
		if p.Data != "" {
			src = &anthropicImageSource{Type: "base64", MediaType: p.MimeType, Data: p.Data}
		}
		return anthropicContentBlock{Type: "image", Source: src}
	case proxytypes.PartToolResponse:
		return anthropicContentBlock{Type: "tool_result", ToolUseID: p.ToolCallID, Content: p.ToolResult}
	default:
		return anthropicContentBlock{Type: "text", Text: p.Text}
	}
}

// FromWireResponse parses an Anthropic Messages API response into the
// canonical ChatResponse.
func (Anthropic) FromWireResponse(raw []byte) (proxytypes.ChatResponse, error) {
	var wire anthropicResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return proxytypes.ChatResponse{}, err
	}

	msg := proxytypes.Message{Role: proxytypes.RoleAssistant}
	var text string
	for _, block := range wire.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			args, _ := json.Marshal(block.Input)
			msg.ToolCalls = append(msg.ToolCalls, proxytypes.ToolCall{
				ID:       block.ID,
				Type:     "function",
				Function: proxytypes.ToolCallFunction{Name: block.Name, Arguments: string(args)},
			})
		}
	}
	msg.Content = text

	finish := "stop"
	if wire.StopReason == "tool_use" {
		finish = "tool_calls"
	} else if wire.StopReason == "max_tokens" {
		finish = "length"
	}

	return proxytypes.ChatResponse{
		ID:      wire.ID,
		Object:  "chat.completion",
		Model:   wire.Model,
		Choices: []proxytypes.Choice{{Message: msg, FinishReason: finish}},
		Usage: proxytypes.Usage{
			PromptTokens:     wire.Usage.InputTokens,
			CompletionTokens: wire.Usage.OutputTokens,
			TotalTokens:      wire.Usage.InputTokens + wire.Usage.OutputTokens,
		},
	}, nil
}
