// In file: internal/commands/parser.go
package commands

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Command is a parsed inline directive: a name plus its keyed/positional
// arguments. Parsing never mutates anything; execution is a separate step
// performed by a handler.
type Command struct {
	Name string
	Args map[string]string
	// Positional holds args supplied without a "k=" prefix, in order.
	Positional []string
}

// BoolArg returns the value of the first argument matching any of names,
// or the first positional value if none of names is present, parsed with
// the same true/false vocabulary every loop/bool-accepting command shares.
func (c Command) BoolArg(names ...string) (bool, bool) {
	for _, n := range names {
		if v, ok := c.Args[n]; ok {
			b, ok2 := ParseBoolArgument(v)
			return b, ok2
		}
	}
	if len(c.Positional) > 0 {
		return ParseBoolArgument(c.Positional[0])
	}
	return false, false
}

// StringArg returns the first present argument among names, or the first
// positional value, or "".
func (c Command) StringArg(names ...string) string {
	for _, n := range names {
		if v, ok := c.Args[n]; ok {
			return v
		}
	}
	if len(c.Positional) > 0 {
		return c.Positional[0]
	}
	return ""
}

// ParseBoolArgument recognizes the shared true/false vocabulary used by
// loop-detection style commands: true/1/yes/on vs false/0/no/off.
func ParseBoolArgument(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// ParsedCommand bundles a Command with the literal span it was found at,
// so the Command Service can strip exactly that substring from a message.
type ParsedCommand struct {
	Command Command
	Start   int
	End     int
	Literal string
	Bare    bool // true for "!/hello" with no parens
}

// Parser parses at most one command per input string.
type Parser struct {
	callPattern *regexp.Regexp
	barePattern *regexp.Regexp
}

// NewParser builds a parser for the given prefix (default "!/").
func NewParser(prefix string) *Parser {
	escaped := regexp.QuoteMeta(prefix)
	return &Parser{
		callPattern: regexp.MustCompile(`(?i)` + escaped + `([\w-]+)\(([^)]*)\)`),
		barePattern: regexp.MustCompile(`(?i)` + escaped + `([\w-]+)\b`),
	}
}

// ParseAll returns every syntactically valid command found in text, in
// left-to-right order of appearance. A bare match that overlaps a call-form
// match at the same position (e.g. the "!/hello" prefix of "!/hello(x)")
// is not a distinct command and is dropped. Used by the Command Service to
// strip every command literal from a message that names more than one,
// per spec §4.5.
func (p *Parser) ParseAll(text string) []ParsedCommand {
	var out []ParsedCommand

	for _, m := range p.callPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[m[2]:m[3]]
		argStr := text[m[4]:m[5]]
		out = append(out, ParsedCommand{
			Command: Command{Name: strings.ToLower(name), Args: parseArgs(argStr), Positional: parsePositional(argStr)},
			Start:   m[0],
			End:     m[1],
			Literal: text[m[0]:m[1]],
			Bare:    false,
		})
	}

	for _, m := range p.barePattern.FindAllStringSubmatchIndex(text, -1) {
		overlaps := false
		for _, c := range out {
			if m[0] < c.End && m[1] > c.Start {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		name := text[m[2]:m[3]]
		out = append(out, ParsedCommand{
			Command: Command{Name: strings.ToLower(name)},
			Start:   m[0],
			End:     m[1],
			Literal: text[m[0]:m[1]],
			Bare:    true,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Parse returns the last (right-most) syntactically valid command found in
// text, or ok=false if none. Returning the last match (rather than the
// first) matches spec §4.5's "only the last one executes" tie-break when a
// single message contains multiple commands.
func (p *Parser) Parse(text string) (ParsedCommand, bool) {
	all := p.ParseAll(text)
	if len(all) == 0 {
		return ParsedCommand{}, false
	}
	return all[len(all)-1], true
}

// parseArgs splits a "k=v,k2=v2" argument string into a map. Values may be
// unquoted, single-, or double-quoted; whitespace inside quotes is kept.
func parseArgs(s string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitArgs(s) {
		idx := strings.Index(pair, "=")
		if idx < 0 {
			continue
		}
		k := strings.TrimSpace(pair[:idx])
		v := unquote(strings.TrimSpace(pair[idx+1:]))
		if k != "" {
			out[k] = v
		}
	}
	return out
}

// parsePositional extracts argument values that have no "k=" prefix, in
// order, so boolean-style commands can accept "true"/"false" positionally.
func parsePositional(s string) []string {
	var out []string
	for _, pair := range splitArgs(s) {
		if !strings.Contains(pair, "=") {
			v := unquote(strings.TrimSpace(pair))
			if v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// splitArgs splits on top-level commas, respecting single/double quotes so
// a quoted value may itself contain a comma.
func splitArgs(s string) []string {
	var out []string
	var cur strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
			cur.WriteRune(r)
		case r == ',':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// ParseInt is a small helper used by handlers validating integer args
// (tool-loop-max-repeats, tool-loop-ttl).
func ParseInt(s string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseFloat is the float64 counterpart of ParseInt.
func ParseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
