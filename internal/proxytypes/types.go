// Package proxytypes holds the canonical, wire-format-agnostic data model
// that every other package in the proxy builds on: chat messages, session
// state, commands, and the wire-capture entry shape. Translators convert
// between this model and each upstream's wire format; nothing outside
// internal/translate should import a provider SDK's request/response types.
package proxytypes

import "time"

// Role is the canonical originator of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleModel     Role = "model"
	RoleFunction  Role = "function"
)

// PartType discriminates the kind of content carried in a message Part.
type PartType string

const (
	PartText         PartType = "text"
	PartImage        PartType = "image"
	PartToolResponse PartType = "tool_response"
)

// Part is one piece of a multi-part message body.
type Part struct {
	Type PartType `json:"type"`

	Text string `json:"text,omitempty"`

	// Image fields. Exactly one of URL or (MimeType, Data) is set.
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"` // base64

	// ToolResponse fields.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolResult string `json:"tool_result,omitempty"`
}

// ToolCallFunction names the function an upstream model wants invoked.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCall is a request from the model to execute a function.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// Message is one turn of a canonical conversation. Content is either a
// plain string (Content) or a list of Parts (Parts); callers set exactly
// one. Keeping both fields (rather than an interface{}) keeps JSON
// marshaling and the translators' switches simple.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Parts      []Part     `json:"parts,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// HasParts reports whether the message uses the multi-part content form.
func (m Message) HasParts() bool { return len(m.Parts) > 0 }

// ToolSpec describes a callable tool offered to the model.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec is the JSON-schema description of one callable function.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatRequest is the canonical request shape every wire format translates
// into and out of.
type ChatRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Temperature *float64       `json:"temperature,omitempty"`
	TopP        *float64       `json:"top_p,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
	Tools       []ToolSpec     `json:"tools,omitempty"`
	ToolChoice  string         `json:"tool_choice,omitempty"`
	ExtraParams map[string]any `json:"extra_params,omitempty"`
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage from another call, used by multi-step tool loops.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Choice is one candidate completion in a ChatResponse.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ChatResponse is the canonical, OpenAI-shaped response envelope.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// StreamChunk is one incremental delta of a streamed ChatResponse.
type StreamChunk struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	Created       int64  `json:"created"`
	Model         string `json:"model"`
	ContentDelta  string `json:"-"`
	ToolCallDelta *ToolCall
	Usage         *Usage
	FinishReason  string
	Err           error
}

// BackendDescriptor is the static + discovered shape of one configured
// upstream backend.
type BackendDescriptor struct {
	Name             string   `json:"name"`
	APIKeys          []string `json:"api_keys"`
	BaseURL          string   `json:"base_url,omitempty"`
	AvailableModels  []string `json:"available_models"`
	Functional       bool     `json:"functional"`
	Kind             string   `json:"kind"` // https_json, subprocess_batch, subprocess_interactive, oauth
}

// ContentType classifies a wire-capture payload for downstream tooling.
type ContentType string

const (
	ContentJSON   ContentType = "json"
	ContentText   ContentType = "text"
	ContentBytes  ContentType = "bytes"
	ContentObject ContentType = "object"
)

// Direction classifies a wire-capture entry's place in the request lifecycle.
type Direction string

const (
	DirSystemInit      Direction = "system_init"
	DirOutboundRequest  Direction = "outbound_request"
	DirInboundResponse Direction = "inbound_response"
	DirStreamStart     Direction = "stream_start"
	DirStreamChunk     Direction = "stream_chunk"
	DirStreamEnd       Direction = "stream_end"
)

// WireCaptureMetadata carries the optional, per-entry annotations.
type WireCaptureMetadata struct {
	ClientHost  string `json:"client_host,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	ChunkNumber int    `json:"chunk_number,omitempty"`
	ChunkBytes  int    `json:"chunk_bytes,omitempty"`
	TotalBytes  int    `json:"total_bytes,omitempty"`
	TotalChunks int    `json:"total_chunks,omitempty"`
}

// WireCaptureEntry is one append-only record in the capture log.
type WireCaptureEntry struct {
	TimestampISO  string               `json:"timestamp_iso"`
	TimestampUnix float64              `json:"timestamp_unix"`
	Direction     Direction            `json:"direction"`
	Source        string               `json:"source"`
	Destination   string               `json:"destination"`
	SessionID     string               `json:"session_id,omitempty"`
	Backend       string               `json:"backend,omitempty"`
	Model         string               `json:"model,omitempty"`
	KeyName       string               `json:"key_name,omitempty"`
	ContentType   ContentType          `json:"content_type"`
	ContentLength int                  `json:"content_length"`
	Payload       any                  `json:"payload,omitempty"`
	Metadata      WireCaptureMetadata  `json:"metadata"`
}

// SessionInteraction is one append-only entry in a Session's observability
// history. It is not a replay store — see spec Non-goals.
type SessionInteraction struct {
	Handler   string    `json:"handler"` // "proxy" or "backend"
	Prompt    string    `json:"prompt"`
	Backend   string    `json:"backend,omitempty"`
	Model     string    `json:"model,omitempty"`
	Project   string    `json:"project,omitempty"`
	Response  string    `json:"response"`
	Usage     *Usage    `json:"usage,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const StreamingPlaceholder = "<streaming>"
