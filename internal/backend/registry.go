// In file: internal/backend/registry.go
package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// Factory builds a Connector for one configured backend entry. Registered
// once per backend name at startup, generalizing the teacher's
// module-import-based connector discovery (router.go's contender pool was
// hand-wired per deployment) into an explicit string-keyed map, matching
// the rest of this module's registry pattern (command Registry, handler
// Registry).
type Factory func() Connector

// Descriptor mirrors proxytypes.BackendDescriptor plus the live Connector
// and API-key pool needed to dispatch a call.
type Descriptor struct {
	proxytypes.BackendDescriptor
	Kind      Kind
	connector Connector
	nextKey   int
}

// Registry discovers, initializes, and selects among configured backends.
// Grounded on router.go's Router (selection) and profiler.go's Profiler
// (health/latency bookkeeping), generalized from "pick the best model
// across one backend's roster" to "resolve a (backend, model) pair to a
// live connector and an API key", per spec §4.8.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]Factory
	descs      map[string]*Descriptor
	health     *HealthTracker
	log        *zap.SugaredLogger
}

func NewRegistry(health *HealthTracker, log *zap.SugaredLogger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		descs:     make(map[string]*Descriptor),
		health:    health,
		log:       log,
	}
}

// Register installs a backend's factory and static configuration (its API
// key pool and base URL) before Initialize is called.
func (r *Registry) Register(name string, kind Kind, apiKeys []string, baseURL string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	r.descs[name] = &Descriptor{
		BackendDescriptor: proxytypes.BackendDescriptor{Name: name, APIKeys: apiKeys, BaseURL: baseURL},
		Kind:              kind,
	}
}

// Initialize instantiates and initializes every registered backend,
// flipping Functional true iff initialize succeeded and AvailableModels is
// non-empty — backends that fail are excluded from dispatch and from the
// welcome banner, per spec's BackendDescriptor invariant.
func (r *Registry) Initialize(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, factory := range r.factories {
		desc := r.descs[name]
		conn := factory()
		desc.connector = conn

		var key string
		if len(desc.APIKeys) > 0 {
			key = desc.APIKeys[0]
		}
		if err := conn.Initialize(ctx, key); err != nil {
			r.log.Warnw("backend initialization failed", "backend", name, "error", err)
			desc.Functional = false
			continue
		}
		desc.AvailableModels = conn.AvailableModels()
		desc.Functional = len(desc.AvailableModels) > 0
	}
}

// Health returns the registry's shared HealthTracker so callers outside
// this package (the Request Pipeline) can record dispatch outcomes.
func (r *Registry) Health() *HealthTracker {
	return r.health
}

// KeyCount reports how many API keys a registered backend has configured,
// used by the Failover Engine to expand a "k"/"km"/"mk" policy's element
// list into the right number of key-rotation attempts. Returns 0 for an
// unknown backend.
func (r *Registry) KeyCount(backendName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.descs[backendName]
	if !ok {
		return 0
	}
	return len(desc.APIKeys)
}

// FunctionalBackends lists the names of backends that initialized
// successfully, used by the hello command's welcome banner.
func (r *Registry) FunctionalBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, d := range r.descs {
		if d.Functional {
			names = append(names, name)
		}
	}
	return names
}

// ValidateBackendAndModel consults the cached model list; (b, m) is valid
// iff b is functional and m is in its available_models.
func (r *Registry) ValidateBackendAndModel(backendName, model string) (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.descs[backendName]
	if !ok {
		return false, fmt.Sprintf("unknown backend: %s", backendName)
	}
	if !desc.Functional {
		return false, fmt.Sprintf("backend %s is not functional", backendName)
	}
	for _, m := range desc.AvailableModels {
		if m == model {
			return true, ""
		}
	}
	return false, fmt.Sprintf("model %s is not available on backend %s", model, backendName)
}

// SplitModel strips an optional "backend:" prefix from a request's model
// field, returning the backend name (possibly empty, meaning "use the
// session's configured backend") and the effective model.
func SplitModel(raw string) (backendName, model string) {
	if idx := strings.Index(raw, ":"); idx > 0 {
		return raw[:idx], raw[idx+1:]
	}
	return "", raw
}

// Resolved is what the Request Pipeline needs to dispatch one call.
type Resolved struct {
	Connector Connector
	APIKey    string
	KeyName   string
}

// Resolve selects a connector and the next API key in that backend's pool
// via round-robin rotation, returning an error if the backend is unknown
// or has no configured keys.
func (r *Registry) Resolve(backendName string) (Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	desc, ok := r.descs[backendName]
	if !ok || desc.connector == nil {
		return Resolved{}, fmt.Errorf("unknown backend: %s", backendName)
	}
	if !desc.Functional {
		return Resolved{}, fmt.Errorf("backend %s is not functional", backendName)
	}
	if len(desc.APIKeys) == 0 {
		return Resolved{}, fmt.Errorf("backend %s has no configured API keys", backendName)
	}

	key := desc.APIKeys[desc.nextKey%len(desc.APIKeys)]
	keyName := fmt.Sprintf("%s-key-%d", backendName, desc.nextKey%len(desc.APIKeys))
	desc.nextKey++

	return Resolved{Connector: desc.connector, APIKey: key, KeyName: keyName}, nil
}

// HealthTracker records per-backend latency and error-rate statistics in
// memory, generalizing profiler.go's per-model Redis-hash bookkeeping
// (exponential moving average latency, success/failure counters) from "one
// model" to "one backend", since the Backend Registry tracks connector
// health rather than per-model routing economics (that concern belongs to
// whichever command or pipeline logic picks a model, not to connector
// dispatch).
type HealthTracker struct {
	store map[string]*backendStats
	mu    sync.Mutex
}

type backendStats struct {
	avgLatency time.Duration
	successes  int64
	failures   int64
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{store: make(map[string]*backendStats)}
}

func (h *HealthTracker) RecordSuccess(backendName string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.statsFor(backendName)
	const alpha = 0.1
	s.avgLatency = time.Duration(alpha*float64(latency) + (1-alpha)*float64(s.avgLatency))
	s.successes++
}

func (h *HealthTracker) RecordFailure(backendName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statsFor(backendName).failures++
}

func (h *HealthTracker) ErrorRate(backendName string) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.statsFor(backendName)
	total := s.successes + s.failures
	if total == 0 {
		return 0
	}
	return float64(s.failures) / float64(total)
}

func (h *HealthTracker) statsFor(name string) *backendStats {
	s, ok := h.store[name]
	if !ok {
		s = &backendStats{}
		h.store[name] = s
	}
	return s
}
