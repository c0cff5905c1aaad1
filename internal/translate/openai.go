// In file: internal/translate/openai.go
package translate

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// OpenAI translates between the canonical ChatRequest/ChatResponse and the
// OpenAI wire format. Grounded on the teacher's openai_client.go
// (toOpenAIMessages/toOpenAITools/parseOpenAIResponse) but rewritten around
// sashabaranov/go-openai's public wire structs instead of hand-rolled JSON
// structs, so decode/encode agree with the exact shape the rest of the
// ecosystem expects.
type OpenAI struct{}

// ToWire converts a canonical ChatRequest into an OpenAI
// ChatCompletionRequest ready for json.Marshal.
func (OpenAI) ToWire(req proxytypes.ChatRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    req.Model,
		Stream:   req.Stream,
		Messages: make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}
	if len(req.Stop) > 0 {
		out.Stop = req.Stop
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, messageToWire(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolType(t.Type),
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	if req.ToolChoice != "" {
		out.ToolChoice = req.ToolChoice
	}
	return out
}

func messageToWire(m proxytypes.Message) openai.ChatCompletionMessage {
	om := openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	if m.HasParts() {
		om.Content = ""
		for _, p := range m.Parts {
			mp := openai.ChatMessagePart{Type: openai.ChatMessagePartType(p.Type)}
			switch p.Type {
			case proxytypes.PartText:
				mp.Type = openai.ChatMessagePartTypeText
				mp.Text = p.Text
			case proxytypes.PartImage:
				mp.Type = openai.ChatMessagePartTypeImageURL
				url := p.URL
				if url == "" && p.Data != "" {
					url = "data:" + p.MimeType + ";base64," + p.Data
				}
				mp.ImageURL = &openai.ChatMessageImageURL{URL: url}
			}
			om.MultiContent = append(om.MultiContent, mp)
		}
	}
	for _, tc := range m.ToolCalls {
		om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
			ID:       tc.ID,
			Type:     openai.ToolType(tc.Type),
			Function: openai.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	return om
}

// FromWireRequest parses raw OpenAI-shaped request bytes (as received on
// the /v1/chat/completions surface) into the canonical ChatRequest.
func (OpenAI) FromWireRequest(raw []byte) (proxytypes.ChatRequest, error) {
	var wire openai.ChatCompletionRequest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return proxytypes.ChatRequest{}, err
	}
	req := proxytypes.ChatRequest{Model: wire.Model, Stream: wire.Stream, Stop: wire.Stop}
	if wire.MaxTokens > 0 {
		req.MaxTokens = wire.MaxTokens
	}
	if wire.Temperature != 0 {
		t := float64(wire.Temperature)
		req.Temperature = &t
	}
	if wire.TopP != 0 {
		p := float64(wire.TopP)
		req.TopP = &p
	}
	for _, m := range wire.Messages {
		req.Messages = append(req.Messages, messageFromWire(m))
	}
	for _, t := range wire.Tools {
		spec := proxytypes.ToolSpec{Type: string(t.Type)}
		if t.Function != nil {
			spec.Function = proxytypes.FunctionSpec{Name: t.Function.Name, Description: t.Function.Description, Parameters: toParamMap(t.Function.Parameters)}
		}
		req.Tools = append(req.Tools, spec)
	}
	return req, nil
}

func toParamMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func messageFromWire(m openai.ChatCompletionMessage) proxytypes.Message {
	out := proxytypes.Message{Role: proxytypes.Role(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	for _, mp := range m.MultiContent {
		switch mp.Type {
		case openai.ChatMessagePartTypeText:
			out.Parts = append(out.Parts, proxytypes.Part{Type: proxytypes.PartText, Text: mp.Text})
		case openai.ChatMessagePartTypeImageURL:
			if mp.ImageURL != nil {
				out.Parts = append(out.Parts, proxytypes.Part{Type: proxytypes.PartImage, URL: mp.ImageURL.URL})
			}
		}
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, proxytypes.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: proxytypes.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

// FromWireResponse converts an OpenAI ChatCompletionResponse into the
// canonical ChatResponse.
func (OpenAI) FromWireResponse(resp openai.ChatCompletionResponse) proxytypes.ChatResponse {
	out := proxytypes.ChatResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage: proxytypes.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, proxytypes.Choice{
			Index:        c.Index,
			Message:      messageFromWire(c.Message),
			FinishReason: string(c.FinishReason),
		})
	}
	return out
}

// ToWireResponse serializes a canonical ChatResponse back into OpenAI
// wire JSON, used when the Response Manager or a command reply needs to
// speak the OpenAI-compatible surface.
func (OpenAI) ToWireResponse(resp proxytypes.ChatResponse) openai.ChatCompletionResponse {
	out := openai.ChatCompletionResponse{
		ID:      resp.ID,
		Object:  resp.Object,
		Created: resp.Created,
		Model:   resp.Model,
		Usage: openai.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, openai.ChatCompletionChoice{
			Index:        c.Index,
			Message:      messageToWire(c.Message),
			FinishReason: openai.FinishReason(c.FinishReason),
		})
	}
	return out
}
