// In file: internal/security/redactor.go
package security

import (
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const redactedMask = "(API_KEY_HAS_BEEN_REDACTED)"

// genericAPIKeyPattern matches the generic sk-/ak- key shape plus the
// ZAI-style 32-hex-dot-16+ token shape.
var genericAPIKeyPattern = regexp.MustCompile(`(?:sk-|ak-)[A-Za-z0-9]{20,}|[a-f0-9]{32}\.[a-f0-9]{16,}`)

// bearerPattern captures the token portion of an Authorization header value.
var bearerPattern = regexp.MustCompile(`Bearer\s+([^\s"']+)`)

var envAPIKeyName = regexp.MustCompile(`(?i).*API_KEYS?$|.*API_KEY(_\d+)?$`)

const maxCacheEntries = 1024
const maxCacheableInputLen = 1000

// Redactor replaces every occurrence of a known secret, or anything
// matching the generic API-key/bearer-token shapes, with a fixed mask.
// Construct via NewRedactor with an explicit secret set; DiscoverSecrets
// walks config and the process environment the way a SecretRegistry would
// (design note: "do not keep module-level sets" — everything here lives on
// the instance).
type Redactor struct {
	mu       sync.Mutex
	secrets  []string // sorted longest-first
	alt      *regexp.Regexp
	cache    map[string]string
	log      *zap.SugaredLogger
}

// NewRedactor builds a Redactor over an explicit set of secret strings.
// Secrets are sorted longest-first so a key that subsumes a shorter one is
// matched before the shorter one could leak a suffix.
func NewRedactor(secrets []string, log *zap.SugaredLogger) *Redactor {
	r := &Redactor{
		cache: make(map[string]string),
		log:   log,
	}
	r.setSecrets(secrets)
	return r
}

func (r *Redactor) setSecrets(secrets []string) {
	uniq := make(map[string]struct{}, len(secrets))
	out := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s == "" {
			continue
		}
		if _, ok := uniq[s]; ok {
			continue
		}
		uniq[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	r.secrets = out

	if len(out) == 0 {
		r.alt = nil
		return
	}
	escaped := make([]string, len(out))
	for i, s := range out {
		escaped[i] = regexp.QuoteMeta(s)
	}
	r.alt = regexp.MustCompile(strings.Join(escaped, "|"))
}

// DiscoverSecrets walks configured API keys plus every process environment
// variable matching the API-key naming convention, adding whatever looks
// like a secret to the redactor's known set. Config-sourced keys are logged
// as a security notice, matching the original's "config keys emit a
// warning" behavior.
func (r *Redactor) DiscoverSecrets(configKeys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := append([]string{}, r.secrets...)
	for _, k := range configKeys {
		if k == "" {
			continue
		}
		found = append(found, k)
		if r.log != nil {
			r.log.Warnw("secret loaded from config", "len", len(k))
		}
	}

	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name, val := parts[0], parts[1]
		if envAPIKeyName.MatchString(name) {
			for _, frag := range splitSecretList(val) {
				if looksLikeSecret(frag) {
					found = append(found, frag)
				}
			}
			continue
		}
		for _, m := range genericAPIKeyPattern.FindAllString(val, -1) {
			found = append(found, m)
		}
		if m := bearerPattern.FindStringSubmatch(val); m != nil {
			found = append(found, m[1])
		}
	}

	r.setSecrets(found)
	r.cache = make(map[string]string)
}

func splitSecretList(v string) []string {
	return regexp.MustCompile(`[,;\n]`).Split(v, -1)
}

func looksLikeSecret(frag string) bool {
	frag = strings.TrimSpace(frag)
	if frag == "" {
		return false
	}
	if genericAPIKeyPattern.MatchString(frag) {
		return true
	}
	if strings.HasPrefix(frag, "Bearer ") {
		return true
	}
	if len(frag) >= 10 && len(frag) <= 400 && !strings.ContainsAny(frag, " \t\r\n") {
		return true
	}
	return false
}

// Redact returns text with every known secret and every generic
// API-key/bearer-token match replaced by the redaction mask.
func (r *Redactor) Redact(text string) string {
	if text == "" {
		return text
	}

	cacheable := len(text) < maxCacheableInputLen
	if cacheable {
		r.mu.Lock()
		if v, ok := r.cache[text]; ok {
			r.mu.Unlock()
			return v
		}
		r.mu.Unlock()
	}

	out := text

	r.mu.Lock()
	alt := r.alt
	secrets := r.secrets
	r.mu.Unlock()

	// Fast containment check before paying for the regex substitution.
	needsExplicit := false
	for _, s := range secrets {
		if strings.Contains(out, s) {
			needsExplicit = true
			break
		}
	}
	if needsExplicit && alt != nil {
		out = alt.ReplaceAllString(out, redactedMask)
	}

	out = genericAPIKeyPattern.ReplaceAllString(out, redactedMask)
	out = bearerPattern.ReplaceAllString(out, "Bearer "+redactedMask)

	if cacheable {
		r.mu.Lock()
		if len(r.cache) < maxCacheEntries {
			r.cache[text] = out
		}
		r.mu.Unlock()
	}

	return out
}

// RedactPart redacts a text part's content in place; non-text parts are
// returned unchanged, matching the original's part_dict.get("type")=="text"
// guard in the redaction middleware.
func (r *Redactor) RedactPart(partType, text string) string {
	if partType != "text" {
		return text
	}
	return r.Redact(text)
}
