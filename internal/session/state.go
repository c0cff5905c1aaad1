// In file: internal/session/state.go
package session

// FailoverPolicy is one of the four route-walking strategies.
type FailoverPolicy string

const (
	PolicyKeyFirst   FailoverPolicy = "k"
	PolicyModelFirst FailoverPolicy = "m"
	PolicyKM         FailoverPolicy = "km"
	PolicyMK         FailoverPolicy = "mk"
)

// FailoverRoute is a named, ordered list of "backend:model" elements.
type FailoverRoute struct {
	Name     string
	Policy   FailoverPolicy
	Elements []string
}

// BackendConfig holds routing overrides: an explicit backend/model pin and
// the named failover routes available to this session.
type BackendConfig struct {
	BackendType    string
	Model          string
	FailoverRoutes map[string]FailoverRoute
}

func (b BackendConfig) clone() BackendConfig {
	routes := make(map[string]FailoverRoute, len(b.FailoverRoutes))
	for k, v := range b.FailoverRoutes {
		elems := append([]string{}, v.Elements...)
		routes[k] = FailoverRoute{Name: v.Name, Policy: v.Policy, Elements: elems}
	}
	return BackendConfig{BackendType: b.BackendType, Model: b.Model, FailoverRoutes: routes}
}

// ReasoningEffort is a coarse quality/cost dial some backends accept.
type ReasoningEffort string

const (
	EffortLow    ReasoningEffort = "low"
	EffortMedium ReasoningEffort = "medium"
	EffortHigh   ReasoningEffort = "high"
	EffortNone   ReasoningEffort = "none"
)

// ReasoningConfig holds generation-shaping overrides.
type ReasoningConfig struct {
	Temperature     *float64
	TopP            *float64
	ReasoningEffort ReasoningEffort
	ThinkingBudget  *int
}

func (r ReasoningConfig) clone() ReasoningConfig { return r }

// ToolLoopMode names a loop-guard strategy for tool-call repetition.
type ToolLoopMode string

const (
	ToolLoopNone   ToolLoopMode = "none"
	ToolLoopSimple ToolLoopMode = "simple"
)

// LoopConfig holds degenerate-loop detection settings.
type LoopConfig struct {
	LoopDetectionEnabled     bool
	ToolLoopDetectionEnabled bool
	ToolLoopMode             ToolLoopMode
	ToolLoopMaxRepeats       int
	ToolLoopTTLSeconds       int
}

func (l LoopConfig) clone() LoopConfig { return l }

// State is an immutable snapshot of everything a command may mutate.
// Every With* method returns a new value; the original is left untouched.
// This mirrors the with-er pattern used throughout the original's
// SessionState/BackendConfig/LoopConfig types.
type State struct {
	BackendConfig   BackendConfig
	ReasoningConfig ReasoningConfig
	LoopConfig      LoopConfig

	Project    string
	ProjectDir string

	PytestCompressionEnabled     bool
	PytestCompressionMinLines    int
	CompressNextToolCallReply    bool // one-shot

	HelloRequested bool // one-shot

	Provider string
	Mode     string
}

// NewDefaultState returns the zero-value-sane starting state for a new
// session.
func NewDefaultState() State {
	return State{
		BackendConfig: BackendConfig{FailoverRoutes: map[string]FailoverRoute{}},
		LoopConfig: LoopConfig{
			LoopDetectionEnabled:     true,
			ToolLoopDetectionEnabled: true,
			ToolLoopMode:             ToolLoopSimple,
			ToolLoopMaxRepeats:       3,
			ToolLoopTTLSeconds:       120,
		},
		PytestCompressionEnabled:  true,
		PytestCompressionMinLines: 0,
	}
}

func (s State) clone() State {
	c := s
	c.BackendConfig = s.BackendConfig.clone()
	c.ReasoningConfig = s.ReasoningConfig.clone()
	c.LoopConfig = s.LoopConfig.clone()
	return c
}

func (s State) WithModel(model string) State {
	c := s.clone()
	c.BackendConfig.Model = model
	return c
}

func (s State) WithBackend(backend string) State {
	c := s.clone()
	c.BackendConfig.BackendType = backend
	return c
}

func (s State) WithProjectDir(dir string) State {
	c := s.clone()
	c.ProjectDir = dir
	return c
}

func (s State) WithProject(name string) State {
	c := s.clone()
	c.Project = name
	return c
}

func (s State) WithTemperature(t float64) State {
	c := s.clone()
	c.ReasoningConfig.Temperature = &t
	return c
}

func (s State) WithTopP(p float64) State {
	c := s.clone()
	c.ReasoningConfig.TopP = &p
	return c
}

func (s State) WithReasoningEffort(e ReasoningEffort) State {
	c := s.clone()
	c.ReasoningConfig.ReasoningEffort = e
	return c
}

func (s State) WithThinkingBudget(n int) State {
	c := s.clone()
	c.ReasoningConfig.ThinkingBudget = &n
	return c
}

func (s State) WithLoopDetectionEnabled(v bool) State {
	c := s.clone()
	c.LoopConfig.LoopDetectionEnabled = v
	return c
}

func (s State) WithToolLoopDetectionEnabled(v bool) State {
	c := s.clone()
	c.LoopConfig.ToolLoopDetectionEnabled = v
	return c
}

func (s State) WithToolLoopMode(m ToolLoopMode) State {
	c := s.clone()
	c.LoopConfig.ToolLoopMode = m
	return c
}

func (s State) WithToolLoopMaxRepeats(n int) State {
	c := s.clone()
	c.LoopConfig.ToolLoopMaxRepeats = n
	return c
}

func (s State) WithToolLoopTTLSeconds(n int) State {
	c := s.clone()
	c.LoopConfig.ToolLoopTTLSeconds = n
	return c
}

func (s State) WithHelloRequested(v bool) State {
	c := s.clone()
	c.HelloRequested = v
	return c
}

func (s State) WithProvider(p string) State {
	c := s.clone()
	c.Provider = p
	return c
}

func (s State) WithMode(m string) State {
	c := s.clone()
	c.Mode = m
	return c
}

func (s State) WithFailoverRoute(route FailoverRoute) State {
	c := s.clone()
	c.BackendConfig.FailoverRoutes[route.Name] = route
	return c
}

func (s State) WithoutFailoverRoute(name string) State {
	c := s.clone()
	delete(c.BackendConfig.FailoverRoutes, name)
	return c
}
