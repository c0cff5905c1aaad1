// In file: internal/wirecapture/structured.go
package wirecapture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// StructuredConfig holds the tuning knobs for the per-entry JSON capture
// sink, mirroring the `capture_*` fields on the original's logging config
// block.
type StructuredConfig struct {
	FilePath            string
	MaxBytes            int64
	MaxFiles            int
	RotateInterval      time.Duration
	TotalMaxBytes       int64
}

type structuredTimestamp struct {
	ISO           string `json:"iso"`
	HumanReadable string `json:"human_readable"`
}

type structuredCommunication struct {
	Flow        string `json:"flow"`
	Direction   string `json:"direction"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type structuredMetadata struct {
	SessionID    string `json:"session_id,omitempty"`
	Agent        string `json:"agent,omitempty"`
	Backend      string `json:"backend"`
	Model        string `json:"model"`
	KeyName      string `json:"key_name,omitempty"`
	ByteCount    int    `json:"byte_count"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type structuredEntry struct {
	Timestamp     structuredTimestamp      `json:"timestamp"`
	Communication structuredCommunication  `json:"communication"`
	Metadata      structuredMetadata       `json:"metadata"`
	Payload       any                      `json:"payload"`
}

// Structured is a per-entry JSON-lines wire capture sink: one write per
// call, no buffering window, a system-prompt field pulled out of the
// payload for quick grepping. Grounded on
// original_source/src/core/services/structured_wire_capture_service.py's
// StructuredWireCapture.
type Structured struct {
	cfg StructuredConfig

	mu           sync.Mutex
	enabled      bool
	lastRotation time.Time
}

var _ Capture = (*Structured)(nil)

func NewStructured(cfg StructuredConfig) *Structured {
	s := &Structured{cfg: cfg, lastRotation: time.Now()}
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			s.enabled = true
		}
	}
	return s
}

func (s *Structured) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *Structured) CaptureOutboundRequest(sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata) {
	if !s.Enabled() {
		return
	}
	entry := s.buildEntry("frontend_to_backend", "request", meta.ClientHost, backend, sessionID, backend, model, keyName, payload)
	s.appendJSON(entry)
}

func (s *Structured) CaptureInboundResponse(sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata) {
	if !s.Enabled() {
		return
	}
	entry := s.buildEntry("backend_to_frontend", "response", backend, meta.ClientHost, sessionID, backend, model, keyName, payload)
	s.appendJSON(entry)
}

func (s *Structured) buildEntry(flow, direction, source, destination, sessionID, backend, model, keyName string, payload any) structuredEntry {
	now := time.Now()
	utc := now.UTC()

	byteCount := byteCountOf(payload)

	entry := structuredEntry{
		Timestamp: structuredTimestamp{
			ISO:           utc.Format("2006-01-02T15:04:05.000") + "Z",
			HumanReadable: now.Format("2006-01-02 15:04:05"),
		},
		Communication: structuredCommunication{
			Flow:        flow,
			Direction:   direction,
			Source:      orUnknown(source),
			Destination: orUnknown(destination),
		},
		Metadata: structuredMetadata{
			SessionID: sessionID,
			Backend:   backend,
			Model:     model,
			KeyName:   keyName,
			ByteCount: byteCount,
		},
		Payload: payload,
	}
	if prompt, ok := extractSystemPrompt(payload); ok {
		entry.Metadata.SystemPrompt = prompt
	}
	return entry
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func byteCountOf(payload any) int {
	switch v := payload.(type) {
	case string:
		return len(v)
	case []byte:
		return len(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return -1
		}
		return len(b)
	}
}

// extractSystemPrompt pulls a system prompt out of whichever wire shape the
// payload happens to be: OpenAI's messages[].role=="system", Anthropic's
// top-level "system", or Gemini's contents[].role=="system".
func extractSystemPrompt(payload any) (string, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}

	if msgs, ok := m["messages"].([]any); ok {
		for _, raw := range msgs {
			if msg, ok := raw.(map[string]any); ok {
				if msg["role"] == "system" {
					if content, ok := msg["content"].(string); ok {
						return content, true
					}
				}
			}
		}
	}

	if sys, ok := m["system"]; ok {
		if s, ok := sys.(string); ok {
			return s, true
		}
	}

	if contents, ok := m["contents"].([]any); ok {
		for _, raw := range contents {
			if c, ok := raw.(map[string]any); ok {
				if c["role"] == "system" {
					if parts, ok := c["parts"].([]any); ok && len(parts) > 0 {
						if p, ok := parts[0].(map[string]any); ok {
							if text, ok := p["text"].(string); ok {
								return text, true
							}
						}
					}
				}
			}
		}
	}

	return "", false
}

// WrapInboundStream emits a response_stream_start header entry, one
// response_stream_chunk entry per chunk, and a response_stream_end entry
// carrying the total byte count, forwarding bytes unchanged.
func (s *Structured) WrapInboundStream(sessionID, backend, model, keyName string, chunks <-chan []byte) <-chan []byte {
	if !s.Enabled() {
		return chunks
	}

	out := make(chan []byte)
	go func() {
		defer close(out)

		header := s.buildEntry("backend_to_frontend", "response_stream_start", backend, "client", sessionID, backend, model, keyName, map[string]any{})
		s.appendJSON(header)

		var total int
		for chunk := range chunks {
			total += len(chunk)
			chunkEntry := s.buildEntry("backend_to_frontend", "response_stream_chunk", backend, "client", sessionID, backend, model, keyName, string(chunk))
			chunkEntry.Metadata.ByteCount = len(chunk)
			s.appendJSON(chunkEntry)
			out <- chunk
		}

		end := s.buildEntry("backend_to_frontend", "response_stream_end", backend, "client", sessionID, backend, model, keyName, map[string]any{})
		end.Metadata.ByteCount = total
		s.appendJSON(end)
	}()
	return out
}

func (s *Structured) appendJSON(entry structuredEntry) {
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shouldRotateByTimeLocked() {
		s.rotateLocked()
	}
	if s.cfg.MaxBytes > 0 {
		if info, err := os.Stat(s.cfg.FilePath); err == nil {
			if info.Size()+int64(len(line)) > s.cfg.MaxBytes {
				s.rotateLocked()
			}
		}
	}

	f, err := os.OpenFile(s.cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	_, _ = f.Write(line)
	f.Close()

	s.enforceTotalCapLocked()
}

func (s *Structured) shouldRotateByTimeLocked() bool {
	if s.cfg.RotateInterval <= 0 {
		return false
	}
	if _, err := os.Stat(s.cfg.FilePath); err != nil {
		return false
	}
	return time.Since(s.lastRotation) >= s.cfg.RotateInterval
}

func (s *Structured) rotateLocked() {
	if s.cfg.MaxFiles > 0 {
		for i := s.cfg.MaxFiles; i >= 1; i-- {
			src := fmt.Sprintf("%s.%d", s.cfg.FilePath, i)
			dst := fmt.Sprintf("%s.%d", s.cfg.FilePath, i+1)
			if _, err := os.Stat(src); err != nil {
				continue
			}
			if i == s.cfg.MaxFiles {
				os.Remove(src)
			} else {
				os.Rename(src, dst)
			}
		}
	}
	if _, err := os.Stat(s.cfg.FilePath); err == nil {
		os.Rename(s.cfg.FilePath, s.cfg.FilePath+".1")
	}
	s.lastRotation = time.Now()
}

// enforceTotalCapLocked removes the oldest rotated files until the combined
// size of the base file plus its rotations is back under TotalMaxBytes.
func (s *Structured) enforceTotalCapLocked() {
	if s.cfg.TotalMaxBytes <= 0 {
		return
	}

	type fileInfo struct {
		path string
		size int64
	}
	var files []fileInfo
	if info, err := os.Stat(s.cfg.FilePath); err == nil {
		files = append(files, fileInfo{s.cfg.FilePath, info.Size()})
	}

	maxScan := s.cfg.MaxFiles
	if maxScan < 10 {
		maxScan = 10
	}
	for i := 1; i <= maxScan; i++ {
		p := fmt.Sprintf("%s.%d", s.cfg.FilePath, i)
		if info, err := os.Stat(p); err == nil {
			files = append(files, fileInfo{p, info.Size()})
		}
	}

	var total int64
	for _, fi := range files {
		total += fi.size
	}
	if total <= s.cfg.TotalMaxBytes {
		return
	}

	for i := maxScan; i >= 1; i-- {
		p := fmt.Sprintf("%s.%d", s.cfg.FilePath, i)
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		os.Remove(p)
		total -= info.Size()
		if total <= s.cfg.TotalMaxBytes {
			return
		}
	}
	if _, err := os.Stat(s.cfg.FilePath); err == nil {
		os.Remove(s.cfg.FilePath)
	}
}

// Shutdown is a no-op: Structured performs a synchronous write per entry,
// so there is no buffered state to flush.
func (s *Structured) Shutdown() {}
