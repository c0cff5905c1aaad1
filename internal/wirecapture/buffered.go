// In file: internal/wirecapture/buffered.go
package wirecapture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/security"
)

// Capture is the interface the Request Pipeline and backend connectors
// write wire traffic through; both the buffered and a future structured
// implementation satisfy it.
type Capture interface {
	Enabled() bool
	CaptureOutboundRequest(sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata)
	CaptureInboundResponse(sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata)
	WrapInboundStream(sessionID, backend, model, keyName string, chunks <-chan []byte) <-chan []byte
	Shutdown()
}

// Config mirrors the buffered_v1 tuning knobs read from config.yaml.
type Config struct {
	FilePath           string
	MaxEntriesPerFlush int
	FlushInterval      time.Duration
	MaxBytes           int64
	MaxFiles           int
}

// Buffered is a high-throughput, mutex-protected, batch-flushing wire
// capture sink. Grounded line-for-line on
// original_source/src/core/services/buffered_wire_capture_service.py's
// BufferedWireCapture: system_init entry at open, buffer-length/interval
// flush triggers, compact-JSON-lines serialization, and file.k -> file.k+1
// rotation.
type Buffered struct {
	cfg      Config
	redactor *security.Redactor

	mu           sync.Mutex
	buffer       []proxytypes.WireCaptureEntry
	lastFlush    time.Time
	enabled      bool
	totalWritten int64

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ Capture = (*Buffered)(nil)

func NewBuffered(cfg Config, redactor *security.Redactor) *Buffered {
	if cfg.MaxEntriesPerFlush <= 0 {
		cfg.MaxEntriesPerFlush = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}

	b := &Buffered{cfg: cfg, redactor: redactor, lastFlush: time.Now()}
	if cfg.FilePath != "" {
		b.initialize()
	}
	return b
}

func (b *Buffered) initialize() {
	if err := os.MkdirAll(filepath.Dir(b.cfg.FilePath), 0o755); err != nil {
		return
	}

	initEntry := proxytypes.WireCaptureEntry{
		TimestampISO:  time.Now().UTC().Format(time.RFC3339Nano),
		TimestampUnix: float64(time.Now().UnixNano()) / 1e9,
		Direction:     proxytypes.DirSystemInit,
		Source:        "wire_capture_service",
		Destination:   "file_system",
		Backend:       "system",
		Model:         "system",
		ContentType:   proxytypes.ContentJSON,
		Payload:       map[string]any{"message": "Wire capture initialized", "format_version": "buffered_v1"},
		Metadata:      proxytypes.WireCaptureMetadata{},
	}
	if err := b.writeEntriesSync([]proxytypes.WireCaptureEntry{initEntry}); err != nil {
		return
	}
	b.enabled = true

	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	go b.backgroundFlushLoop()
}

func (b *Buffered) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *Buffered) CaptureOutboundRequest(sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata) {
	b.bufferEntry(proxytypes.DirOutboundRequest, meta.UserAgent, backend, sessionID, backend, model, keyName, payload, meta)
}

func (b *Buffered) CaptureInboundResponse(sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata) {
	b.bufferEntry(proxytypes.DirInboundResponse, backend, meta.UserAgent, sessionID, backend, model, keyName, payload, meta)
}

func (b *Buffered) bufferEntry(direction proxytypes.Direction, source, destination, sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata) {
	if !b.Enabled() {
		return
	}
	entry := b.buildEntry(direction, source, destination, sessionID, backend, model, keyName, payload, meta)

	b.mu.Lock()
	b.buffer = append(b.buffer, entry)
	shouldFlush := len(b.buffer) >= b.cfg.MaxEntriesPerFlush || time.Since(b.lastFlush) >= b.cfg.FlushInterval
	var toFlush []proxytypes.WireCaptureEntry
	if shouldFlush {
		toFlush = b.buffer
		b.buffer = nil
		b.lastFlush = time.Now()
	}
	b.mu.Unlock()

	if toFlush != nil {
		_ = b.writeEntriesSync(toFlush)
	}
}

func (b *Buffered) buildEntry(direction proxytypes.Direction, source, destination, sessionID, backend, model, keyName string, payload any, meta proxytypes.WireCaptureMetadata) proxytypes.WireCaptureEntry {
	now := time.Now().UTC()
	contentType, length := classifyPayload(payload)
	return proxytypes.WireCaptureEntry{
		TimestampISO:  now.Format(time.RFC3339Nano),
		TimestampUnix: float64(now.UnixNano()) / 1e9,
		Direction:     direction,
		Source:        source,
		Destination:   destination,
		SessionID:     sessionID,
		Backend:       backend,
		Model:         model,
		KeyName:       keyName,
		ContentType:   contentType,
		ContentLength: length,
		Payload:       b.redactPayload(payload),
		Metadata:      meta,
	}
}

func classifyPayload(payload any) (proxytypes.ContentType, int) {
	switch v := payload.(type) {
	case string:
		return proxytypes.ContentText, len(v)
	case []byte:
		return proxytypes.ContentBytes, len(v)
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return proxytypes.ContentObject, len(fmt.Sprint(v))
		}
		return proxytypes.ContentJSON, len(b)
	default:
		if b, err := json.Marshal(v); err == nil {
			return proxytypes.ContentJSON, len(b)
		}
		return proxytypes.ContentObject, len(fmt.Sprint(v))
	}
}

// redactPayload recursively redacts string values, mirroring the
// original's _redact_payload walk over dicts/lists/strings.
func (b *Buffered) redactPayload(payload any) any {
	if b.redactor == nil {
		return payload
	}
	switch v := payload.(type) {
	case string:
		return b.redactor.Redact(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = b.redactPayload(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = b.redactPayload(val)
		}
		return out
	default:
		return payload
	}
}

// WrapInboundStream forwards bytes unchanged while emitting stream_start,
// one stream_chunk per chunk, and stream_end markers.
func (b *Buffered) WrapInboundStream(sessionID, backend, model, keyName string, chunks <-chan []byte) <-chan []byte {
	if !b.Enabled() {
		return chunks
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		meta := proxytypes.WireCaptureMetadata{}
		b.bufferEntry(proxytypes.DirStreamStart, backend, "client", sessionID, backend, model, keyName, map[string]any{"stream_type": "inbound_response"}, meta)

		totalBytes, chunkCount := 0, 0
		for chunk := range chunks {
			chunkCount++
			totalBytes += len(chunk)
			cm := proxytypes.WireCaptureMetadata{ChunkNumber: chunkCount, ChunkBytes: len(chunk)}
			b.bufferEntry(proxytypes.DirStreamChunk, backend, "client", sessionID, backend, model, keyName, string(chunk), cm)
			out <- chunk
		}

		b.bufferEntry(proxytypes.DirStreamEnd, backend, "client", sessionID, backend, model, keyName, map[string]any{"total_bytes": totalBytes, "total_chunks": chunkCount}, meta)
	}()
	return out
}

func (b *Buffered) writeEntriesSync(entries []proxytypes.WireCaptureEntry) error {
	if b.cfg.FilePath == "" {
		return nil
	}
	f, err := os.OpenFile(b.cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	var written int64
	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		line = append(line, '\n')
		n, err := f.Write(line)
		if err != nil {
			return err
		}
		written += int64(n)
	}

	b.mu.Lock()
	b.totalWritten += written
	b.mu.Unlock()

	b.checkRotation()
	return nil
}

func (b *Buffered) checkRotation() {
	if b.cfg.FilePath == "" || b.cfg.MaxBytes <= 0 {
		return
	}
	info, err := os.Stat(b.cfg.FilePath)
	if err != nil || info.Size() <= b.cfg.MaxBytes {
		return
	}
	b.rotate()
}

func (b *Buffered) rotate() {
	if b.cfg.MaxFiles <= 0 {
		return
	}
	for i := b.cfg.MaxFiles; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", b.cfg.FilePath, i)
		dst := fmt.Sprintf("%s.%d", b.cfg.FilePath, i+1)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if i == b.cfg.MaxFiles {
			os.Remove(src)
		} else {
			os.Rename(src, dst)
		}
	}
	if _, err := os.Stat(b.cfg.FilePath); err == nil {
		os.Rename(b.cfg.FilePath, b.cfg.FilePath+".1")
	}
}

func (b *Buffered) backgroundFlushLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			toFlush := b.buffer
			b.buffer = nil
			b.lastFlush = time.Now()
			b.mu.Unlock()
			if len(toFlush) > 0 {
				_ = b.writeEntriesSync(toFlush)
			}
		}
	}
}

// Shutdown stops the background flush loop and performs one final
// synchronous flush, playing the role of the original's atexit handler.
func (b *Buffered) Shutdown() {
	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return
	}
	b.enabled = false
	b.mu.Unlock()

	if b.stopCh != nil {
		close(b.stopCh)
		<-b.doneCh
	}

	b.mu.Lock()
	remaining := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	if len(remaining) > 0 {
		_ = b.writeEntriesSync(remaining)
	}
}
