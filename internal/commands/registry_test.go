package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubHandler{name: "hello"})

	h, ok := r.Get("hello")
	require.True(t, ok)
	assert.Equal(t, "hello", h.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterDuplicateNamePanics(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubHandler{name: "hello"})

	assert.Panics(t, func() {
		r.Register(&stubHandler{name: "hello"})
	})
}

func TestRegistry_ListCommandsAndDescribe(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubHandler{name: "hello"})
	r.Register(&stubHandler{name: "set"})

	list := r.ListCommands()
	assert.Len(t, list, 2)

	info, ok := r.Describe("hello")
	require.True(t, ok)
	assert.Equal(t, "hello", info.Name)
	assert.Equal(t, "stub", info.Description)

	_, ok = r.Describe("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubHandler{name: "hello"})
	r.Clear()

	assert.Empty(t, r.ListCommands())
	_, ok := r.Get("hello")
	assert.False(t, ok)
}
