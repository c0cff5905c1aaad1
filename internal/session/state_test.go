package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithModel_LeavesOriginalUntouched(t *testing.T) {
	base := NewDefaultState()
	updated := base.WithModel("gpt-4o")

	assert.Equal(t, "", base.BackendConfig.Model)
	assert.Equal(t, "gpt-4o", updated.BackendConfig.Model)
}

func TestWithFailoverRoute_DoesNotMutateSharedMap(t *testing.T) {
	base := NewDefaultState()
	withRoute := base.WithFailoverRoute(FailoverRoute{Name: "primary", Policy: PolicyKeyFirst, Elements: []string{"openai:gpt-4o"}})

	assert.Empty(t, base.BackendConfig.FailoverRoutes)
	require.Contains(t, withRoute.BackendConfig.FailoverRoutes, "primary")

	withSecond := withRoute.WithFailoverRoute(FailoverRoute{Name: "backup", Policy: PolicyModelFirst, Elements: []string{"anthropic:claude-3"}})
	assert.Len(t, withRoute.BackendConfig.FailoverRoutes, 1, "earlier snapshot must not see later additions")
	assert.Len(t, withSecond.BackendConfig.FailoverRoutes, 2)
}

func TestWithoutFailoverRoute_RemovesOnlyFromNewSnapshot(t *testing.T) {
	base := NewDefaultState().WithFailoverRoute(FailoverRoute{Name: "r1", Elements: []string{"a:b"}})
	removed := base.WithoutFailoverRoute("r1")

	assert.Contains(t, base.BackendConfig.FailoverRoutes, "r1")
	assert.NotContains(t, removed.BackendConfig.FailoverRoutes, "r1")
}

func TestFailoverRoute_ElementsSliceIsCopiedOnClone(t *testing.T) {
	route := FailoverRoute{Name: "r1", Elements: []string{"a:b", "c:d"}}
	base := NewDefaultState().WithFailoverRoute(route)
	cloned := base.WithModel("anything") // triggers clone()

	cloned.BackendConfig.FailoverRoutes["r1"].Elements[0] = "mutated"
	assert.Equal(t, "a:b", base.BackendConfig.FailoverRoutes["r1"].Elements[0])
}

func TestWithTemperature_PointerIsIndependentPerSnapshot(t *testing.T) {
	base := NewDefaultState().WithTemperature(0.5)
	updated := base.WithTemperature(0.9)

	require.NotNil(t, base.ReasoningConfig.Temperature)
	require.NotNil(t, updated.ReasoningConfig.Temperature)
	assert.Equal(t, 0.5, *base.ReasoningConfig.Temperature)
	assert.Equal(t, 0.9, *updated.ReasoningConfig.Temperature)
}

func TestNewDefaultState_LoopDetectionDefaultsEnabled(t *testing.T) {
	s := NewDefaultState()
	assert.True(t, s.LoopConfig.LoopDetectionEnabled)
	assert.True(t, s.LoopConfig.ToolLoopDetectionEnabled)
	assert.Equal(t, ToolLoopSimple, s.LoopConfig.ToolLoopMode)
	assert.Equal(t, 3, s.LoopConfig.ToolLoopMaxRepeats)
}

func TestWithHelloRequested_IsOneShotFlagOnNewSnapshot(t *testing.T) {
	base := NewDefaultState()
	flagged := base.WithHelloRequested(true)

	assert.False(t, base.HelloRequested)
	assert.True(t, flagged.HelloRequested)
}
