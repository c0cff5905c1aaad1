// In file: internal/security/commandfilter.go
package security

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// CommandFilter strips any syntactically-valid inline command substring
// from text. It exists as a defensive backstop: by the time text reaches
// an upstream, the Command Service should already have consumed or
// stripped every command. A hit here means a leak bug upstream, so every
// match is logged as a warning.
type CommandFilter struct {
	pattern *regexp.Regexp
	log     *zap.SugaredLogger
}

// NewCommandFilter builds a filter for the given command prefix (e.g. "!/").
// Go's regexp package (RE2) has no lookahead, so the original's
// `(?:hello|help)(?!\()\b` exclusion is reproduced by ordering alternatives
// instead: the call-form alternatives (which consume any trailing parens)
// are tried before the bare-word alternatives, so "help(foo)" always
// matches the full call and never leaves a dangling "(foo)" behind.
func NewCommandFilter(prefix string, log *zap.SugaredLogger) *CommandFilter {
	escaped := regexp.QuoteMeta(prefix)
	pattern := regexp.MustCompile(`(?i)` + escaped +
		`(?:(?:hello|help)\([^)]*\)|[\w-]+\([^)]*\)|(?:hello|help)\b|[\w-]+)`)
	return &CommandFilter{pattern: pattern, log: log}
}

// FilterCommands removes every command match from text and collapses the
// resulting whitespace runs. Returns the filtered text and the number of
// matches removed (a non-zero count should always be logged by the caller
// as a leak warning, since this filter only runs after the command system
// already had its chance).
func (f *CommandFilter) FilterCommands(text string) (string, int) {
	matches := f.pattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, 0
	}

	if f.log != nil {
		positions := make([]string, len(matches))
		for i, m := range matches {
			positions[i] = fmt.Sprintf("%d-%d:%q", m[0], m[1], text[m[0]:m[1]])
		}
		f.log.Warnw("stripped leaked inline command(s) before upstream dispatch",
			"count", len(matches), "positions", positions)
	}

	filtered := f.pattern.ReplaceAllString(text, "")
	filtered = regexp.MustCompile(`\s+`).ReplaceAllString(filtered, " ")
	return strings.TrimSpace(filtered), len(matches)
}
