// In file: internal/backend/oauth_gated.go
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// storedCredentials mirrors the on-disk JSON file an OAuth-gated CLI
// backend (e.g. a coding-agent CLI logged in via a browser flow) leaves
// behind: an access token, its expiry, and a refresh token used to mint a
// new one without another interactive login.
type storedCredentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// CredentialRefresher mints a new access token from a refresh token. The
// concrete implementation is provider-specific (a token endpoint POST);
// kept as an interface so OAuthGatedConnector stays provider-agnostic.
type CredentialRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresAt time.Time, err error)
}

// OAuthGatedConnector wraps an HTTPSJSONConnector, substituting a
// credential acquired from an on-disk file (refreshed on demand) for the
// per-call API key every other HTTPS JSON backend receives directly.
// Grounded on the spec's "OAuth-gated connector: similar to HTTPS but
// acquires/refreshes credentials from an on-disk credential file owned by
// the user" (§4.7); golang-jwt/jwt parses the token's claims to check
// expiry without a round trip when the file itself omits ExpiresAt.
type OAuthGatedConnector struct {
	inner          *HTTPSJSONConnector
	credentialPath string
	refresher      CredentialRefresher

	mu   sync.Mutex
	cred storedCredentials
}

var _ Connector = (*OAuthGatedConnector)(nil)

func NewOAuthGatedConnector(name string, dialect Dialect, baseURL, credentialPath string, refresher CredentialRefresher, knownModels []string) *OAuthGatedConnector {
	return &OAuthGatedConnector{
		inner:          NewHTTPSJSONConnector(name, dialect, baseURL, knownModels),
		credentialPath: credentialPath,
		refresher:      refresher,
	}
}

func (c *OAuthGatedConnector) Kind() Kind                { return KindOAuthGated }
func (c *OAuthGatedConnector) AvailableModels() []string { return c.inner.AvailableModels() }
func (c *OAuthGatedConnector) Shutdown(ctx context.Context) error { return nil }

func (c *OAuthGatedConnector) Initialize(ctx context.Context, apiKey string) error {
	return c.loadCredentials()
}

func (c *OAuthGatedConnector) loadCredentials() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.credentialPath)
	if err != nil {
		return fmt.Errorf("read credential file %s: %w", c.credentialPath, err)
	}
	var cred storedCredentials
	if err := json.Unmarshal(raw, &cred); err != nil {
		return fmt.Errorf("parse credential file %s: %w", c.credentialPath, err)
	}
	if cred.ExpiresAt.IsZero() {
		if exp, ok := expiryFromJWT(cred.AccessToken); ok {
			cred.ExpiresAt = exp
		}
	}
	c.cred = cred
	return nil
}

// expiryFromJWT reads the `exp` claim out of an unverified access token
// when the credential file itself doesn't carry an explicit expiry. The
// proxy trusts this token only to decide whether to refresh early, never
// to authorize anything locally, so skipping signature verification here
// is safe.
func expiryFromJWT(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// accessToken returns a live access token, refreshing it first if it has
// expired or is within 30 seconds of expiring.
func (c *OAuthGatedConnector) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	cred := c.cred
	c.mu.Unlock()

	if cred.AccessToken != "" && time.Until(cred.ExpiresAt) > 30*time.Second {
		return cred.AccessToken, nil
	}
	if c.refresher == nil || cred.RefreshToken == "" {
		if cred.AccessToken == "" {
			return "", &Error{StatusCode: 401, Body: fmt.Sprintf("no credentials available for %s; re-authenticate", c.inner.name)}
		}
		return cred.AccessToken, nil
	}

	token, expiresAt, err := c.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return "", &Error{StatusCode: 401, Body: "credential refresh failed", Err: err}
	}

	c.mu.Lock()
	c.cred.AccessToken = token
	c.cred.ExpiresAt = expiresAt
	updated := c.cred
	c.mu.Unlock()

	if raw, err := json.Marshal(updated); err == nil {
		_ = os.WriteFile(c.credentialPath, raw, 0o600)
	}
	return token, nil
}

func (c *OAuthGatedConnector) ChatCompletions(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (proxytypes.ChatResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return proxytypes.ChatResponse{}, err
	}
	return c.inner.ChatCompletions(ctx, req, token)
}

func (c *OAuthGatedConnector) ChatCompletionsStream(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (<-chan StreamEvent, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return c.inner.ChatCompletionsStream(ctx, req, token)
}
