package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact_KnownSecretMasked(t *testing.T) {
	r := NewRedactor([]string{"super-secret-token"}, nil)
	got := r.Redact("the key is super-secret-token please guard it")
	assert.NotContains(t, got, "super-secret-token")
	assert.Contains(t, got, redactedMask)
}

func TestRedact_LongerSecretWinsOverSuffix(t *testing.T) {
	// A longer secret that contains a shorter one as a suffix must be
	// matched whole, not split into a redacted prefix plus a leaked
	// remainder of the shorter secret.
	r := NewRedactor([]string{"abc123", "xyzabc123"}, nil)
	got := r.Redact("token=xyzabc123 end")
	assert.NotContains(t, got, "xyzabc123")
	assert.NotContains(t, got, "abc123")
}

func TestRedact_GenericAPIKeyShapeMasked(t *testing.T) {
	r := NewRedactor(nil, nil)
	got := r.Redact("Authorization: sk-abcdefghijklmnopqrstuvwxyz123456")
	assert.Contains(t, got, redactedMask)
	assert.NotContains(t, got, "sk-abcdefghijklmnopqrstuvwxyz123456")
}

func TestRedact_BearerTokenMasked(t *testing.T) {
	r := NewRedactor(nil, nil)
	got := r.Redact(`header: Bearer "some.jwt.looking.value"`)
	assert.Contains(t, got, "Bearer "+redactedMask)
	assert.NotContains(t, got, "some.jwt.looking.value")
}

func TestRedact_NoSecretsPassesThroughUnchanged(t *testing.T) {
	r := NewRedactor(nil, nil)
	text := "just a normal sentence with no secrets in it"
	assert.Equal(t, text, r.Redact(text))
}

func TestRedact_EmptyStringShortCircuits(t *testing.T) {
	r := NewRedactor([]string{"whatever"}, nil)
	assert.Equal(t, "", r.Redact(""))
}

func TestRedact_CacheBoundedAtMaxEntries(t *testing.T) {
	r := NewRedactor(nil, nil)
	for i := 0; i < maxCacheEntries+50; i++ {
		r.Redact(randomishString(i))
	}
	assert.LessOrEqual(t, len(r.cache), maxCacheEntries)
}

func randomishString(seed int) string {
	out := make([]byte, 0, 16)
	for seed > 0 {
		out = append(out, byte('a'+seed%26))
		seed /= 26
	}
	return string(out) + "-unique-filler-text"
}

func TestRedact_CacheSkipsLongInputs(t *testing.T) {
	r := NewRedactor(nil, nil)
	long := make([]byte, maxCacheableInputLen+10)
	for i := range long {
		long[i] = 'x'
	}
	r.Redact(string(long))
	assert.Empty(t, r.cache)
}

func TestRedactPart_OnlyTextPartsRedacted(t *testing.T) {
	r := NewRedactor([]string{"topsecret"}, nil)
	assert.Contains(t, r.RedactPart("text", "value is topsecret"), redactedMask)
	assert.Equal(t, "value is topsecret", r.RedactPart("image_url", "value is topsecret"))
}

func TestDiscoverSecrets_EnvVarsByNamingConvention(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-discoveredenvkey1234567890")
	t.Setenv("UNRELATED_VAR", "not-a-secret-at-all")

	r := NewRedactor(nil, nil)
	r.DiscoverSecrets(nil)

	got := r.Redact("the key sk-discoveredenvkey1234567890 was used")
	assert.Contains(t, got, redactedMask)
}

func TestDiscoverSecrets_ConfigKeysAdded(t *testing.T) {
	r := NewRedactor(nil, nil)
	r.DiscoverSecrets([]string{"configured-proxy-key-value"})

	got := r.Redact("auth with configured-proxy-key-value succeeded")
	assert.NotContains(t, got, "configured-proxy-key-value")
}

func TestLooksLikeSecret(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty string", "", false},
		{"short token", "abc", false},
		{"plausible opaque token", "a1b2c3d4e5f6g7h8i9j0", true},
		{"contains whitespace", "not a secret value here", false},
		{"bearer prefixed", "Bearer sometoken", true},
		{"generic sk- shape", "sk-abcdefghijklmnopqrstuvwxyz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, looksLikeSecret(tt.in))
		})
	}
}

func TestSetSecrets_DedupesAndSortsLongestFirst(t *testing.T) {
	r := &Redactor{cache: make(map[string]string)}
	r.setSecrets([]string{"short", "", "muchlongersecretvalue", "short"})
	require.Len(t, r.secrets, 2)
	assert.Equal(t, "muchlongersecretvalue", r.secrets[0])
}
