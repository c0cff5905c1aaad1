package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_CallFormWithKeyedArgs(t *testing.T) {
	p := NewParser("!/")
	pc, ok := p.Parse("please !/set(model=gpt-4o, temperature=0.2) now")
	require.True(t, ok)
	assert.Equal(t, "set", pc.Command.Name)
	assert.Equal(t, "gpt-4o", pc.Command.Args["model"])
	assert.Equal(t, "0.2", pc.Command.Args["temperature"])
	assert.False(t, pc.Bare)
}

func TestParse_BareForm(t *testing.T) {
	p := NewParser("!/")
	pc, ok := p.Parse("!/hello")
	require.True(t, ok)
	assert.Equal(t, "hello", pc.Command.Name)
	assert.True(t, pc.Bare)
}

func TestParse_NoCommandPresent(t *testing.T) {
	p := NewParser("!/")
	_, ok := p.Parse("just a plain message")
	assert.False(t, ok)
}

func TestParse_MultipleCommandsReturnsRightmost(t *testing.T) {
	p := NewParser("!/")
	pc, ok := p.Parse("!/model(gpt-4o) then !/model(claude-3)")
	require.True(t, ok)
	assert.Equal(t, "claude-3", pc.Command.Args["model"])
}

func TestParse_CaseInsensitiveCommandName(t *testing.T) {
	p := NewParser("!/")
	pc, ok := p.Parse("!/HELLO")
	require.True(t, ok)
	assert.Equal(t, "hello", pc.Command.Name)
}

func TestParse_QuotedValuePreservesComma(t *testing.T) {
	p := NewParser("!/")
	pc, ok := p.Parse(`!/set(project="alpha, beta")`)
	require.True(t, ok)
	assert.Equal(t, "alpha, beta", pc.Command.Args["project"])
}

func TestParse_PositionalArgsCaptured(t *testing.T) {
	p := NewParser("!/")
	pc, ok := p.Parse("!/loop-detection(true)")
	require.True(t, ok)
	require.Len(t, pc.Command.Positional, 1)
	assert.Equal(t, "true", pc.Command.Positional[0])
}

func TestParse_CallFormPreferredOverOverlappingBareMatch(t *testing.T) {
	p := NewParser("!/")
	pc, ok := p.Parse("!/set(model=gpt-4o)")
	require.True(t, ok)
	assert.False(t, pc.Bare)
	assert.Equal(t, "!/set(model=gpt-4o)", pc.Literal)
}

func TestParseAll_ReturnsEveryCommandInOrder(t *testing.T) {
	p := NewParser("!/")
	spans := p.ParseAll("!/set(model=a) then !/set(model=b)")
	require.Len(t, spans, 2)
	assert.Equal(t, "a", spans[0].Command.Args["model"])
	assert.Equal(t, "b", spans[1].Command.Args["model"])
	assert.True(t, spans[0].Start < spans[1].Start)
}

func TestParseAll_MixedBareAndCallForms(t *testing.T) {
	p := NewParser("!/")
	spans := p.ParseAll("!/hello !/set(model=gpt-4o)")
	require.Len(t, spans, 2)
	assert.Equal(t, "hello", spans[0].Command.Name)
	assert.True(t, spans[0].Bare)
	assert.Equal(t, "set", spans[1].Command.Name)
	assert.False(t, spans[1].Bare)
}

func TestParseAll_BareMatchOverlappingCallFormIsDropped(t *testing.T) {
	p := NewParser("!/")
	spans := p.ParseAll("!/set(model=gpt-4o)")
	require.Len(t, spans, 1)
	assert.False(t, spans[0].Bare)
}

func TestParseAll_NoCommandPresentReturnsEmpty(t *testing.T) {
	p := NewParser("!/")
	assert.Empty(t, p.ParseAll("just a plain message"))
}

func TestCommand_BoolArg(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		argName string
		wantVal bool
		wantOK  bool
	}{
		{"true keyword", Command{Args: map[string]string{"enabled": "true"}}, "enabled", true, true},
		{"off keyword", Command{Args: map[string]string{"enabled": "off"}}, "enabled", false, true},
		{"positional fallback", Command{Positional: []string{"yes"}}, "enabled", true, true},
		{"unparseable value", Command{Args: map[string]string{"enabled": "maybe"}}, "enabled", false, false},
		{"missing arg no positional", Command{}, "enabled", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.cmd.BoolArg(tt.argName)
			assert.Equal(t, tt.wantVal, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestCommand_StringArg_FallsBackToPositional(t *testing.T) {
	c := Command{Positional: []string{"gpt-4o"}}
	assert.Equal(t, "gpt-4o", c.StringArg("model"))
}

func TestParseInt_InvalidReturnsFalse(t *testing.T) {
	_, ok := ParseInt("not-a-number")
	assert.False(t, ok)
}

func TestParseFloat_ValidValue(t *testing.T) {
	f, ok := ParseFloat(" 0.75 ")
	require.True(t, ok)
	assert.Equal(t, 0.75, f)
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "value", unquote(`"value"`))
	assert.Equal(t, "value", unquote(`'value'`))
	assert.Equal(t, "value", unquote("value"))
}
