package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomecast/spout/internal/logger"
)

const (
	// Client id presented on the client-credentials grant.
	authClientID = "TomeCast"
	// Scope the issued tokens are valid for.
	authScope = "https://speech.platform.bing.com"

	exchangeAttempts = 2
)

// Credential is one opaque API key for the speech backend.
type Credential string

// Token is a bearer token derived from exactly one credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t Token) usable(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Authenticator owns the credential pool and the per-credential token cache
// for a single episode run. A credential whose quota is exhausted is removed
// for the rest of the run and never selected again. Concurrent runs must each
// construct their own Authenticator; nothing here is shared process-wide.
type Authenticator struct {
	tokenURL     string
	safetyMargin time.Duration
	retryDelay   time.Duration
	httpClient   *http.Client

	keys   []Credential
	tokens map[Credential]Token
}

// NewAuthenticator builds an authenticator over the configured keys. The pool
// is not validated here; call Probe before the first recognition request.
func NewAuthenticator(tokenURL string, keys []string, safetyMargin, retryDelay time.Duration) *Authenticator {
	pool := make([]Credential, 0, len(keys))
	for _, key := range keys {
		if key != "" {
			pool = append(pool, Credential(key))
		}
	}
	return &Authenticator{
		tokenURL:     tokenURL,
		safetyMargin: safetyMargin,
		retryDelay:   retryDelay,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		keys:   pool,
		tokens: make(map[Credential]Token),
	}
}

// PoolSize returns the number of credentials still in rotation.
func (a *Authenticator) PoolSize() int {
	return len(a.keys)
}

// Probe exchanges a token for every configured credential and drops the ones
// that cannot authenticate, so the transcription loop starts from a pool of
// known-good keys. The successful exchanges seed the token cache.
func (a *Authenticator) Probe(ctx context.Context) error {
	alive := a.keys[:0]
	for _, cred := range a.keys {
		token, err := a.exchangeToken(ctx, cred)
		if err != nil {
			logger.Warn(ctx, "dropping credential that failed authentication probe", logger.Fields{
				"error": err.Error(),
			})
			continue
		}
		a.tokens[cred] = token
		alive = append(alive, cred)
	}
	a.keys = alive

	if len(a.keys) == 0 {
		return ErrNoCredentials
	}
	logger.Info(ctx, "credential pool probed", logger.Fields{"pool_size": len(a.keys)})
	return nil
}

// SelectCredential deterministically picks a credential for a routing hash:
// the same hash against an unchanged pool always routes to the same key, so
// retries of the same logical work reuse one account without coordination.
func (a *Authenticator) SelectCredential(routingHash uint32) (Credential, error) {
	if len(a.keys) == 0 {
		return "", ErrNoCredentials
	}
	return a.keys[int(routingHash%uint32(len(a.keys)))], nil
}

// GetToken returns a cached, unexpired token for the credential the routing
// hash selects, exchanging a fresh one when needed. A quota-exhausted
// exchange evicts the credential and transparently re-routes to the rest of
// the pool; once the pool is empty ErrNoCredentials is returned.
func (a *Authenticator) GetToken(ctx context.Context, routingHash uint32) (Token, error) {
	for {
		cred, err := a.SelectCredential(routingHash)
		if err != nil {
			return Token{}, err
		}

		if token, ok := a.tokens[cred]; ok && token.usable(time.Now()) {
			return token, nil
		}

		token, err := a.exchangeToken(ctx, cred)
		if err != nil {
			if IsQuotaExhausted(err) {
				a.removeCredential(ctx, cred)
				continue
			}
			return Token{}, err
		}

		a.tokens[cred] = token
		return token, nil
	}
}

// InvalidateToken drops the cached token for the selected credential so the
// next GetToken performs a fresh exchange. The transcription client calls
// this after the recognition endpoint rejects a request for quota, which
// routes the eviction decision through the exchange path.
func (a *Authenticator) InvalidateToken(routingHash uint32) {
	cred, err := a.SelectCredential(routingHash)
	if err != nil {
		return
	}
	delete(a.tokens, cred)
}

func (a *Authenticator) removeCredential(ctx context.Context, cred Credential) {
	alive := a.keys[:0]
	for _, key := range a.keys {
		if key != cred {
			alive = append(alive, key)
		}
	}
	a.keys = alive
	delete(a.tokens, cred)

	logger.Warn(ctx, "credential quota exhausted, removed from pool", logger.Fields{
		"pool_size": len(a.keys),
	})
}

// exchangeToken posts a client-credentials grant for one credential. Transient
// backend failures are retried with a fixed delay; a quota rejection is
// returned immediately so the caller can evict the key and re-route.
func (a *Authenticator) exchangeToken(ctx context.Context, cred Credential) (Token, error) {
	var lastErr error
	for attempt := 1; attempt <= exchangeAttempts; attempt++ {
		if attempt > 1 {
			logger.Warn(ctx, "retrying token exchange", logger.Fields{
				"attempt": attempt,
				"error":   lastErr.Error(),
			})
			if err := sleepCtx(ctx, a.retryDelay); err != nil {
				return Token{}, err
			}
		}

		token, err := a.requestToken(ctx, cred)
		if err == nil {
			return token, nil
		}
		if IsQuotaExhausted(err) || !IsTransient(err) {
			return Token{}, err
		}
		lastErr = err
	}
	return Token{}, fmt.Errorf("token exchange failed after %d attempts: %w", exchangeAttempts, lastErr)
}

func (a *Authenticator) requestToken(ctx context.Context, cred Credential) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", authClientID)
	form.Set("client_secret", string(cred))
	form.Set("scope", authScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Token{}, &BackendError{Op: "token exchange", Status: resp.StatusCode, Body: truncate(body)}
	}

	// The token endpoint reports expires_in as a string of seconds.
	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Token{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return Token{}, fmt.Errorf("token response missing access_token")
	}

	ttlSeconds, err := strconv.Atoi(parsed.ExpiresIn)
	if err != nil {
		return Token{}, fmt.Errorf("token response has invalid expires_in %q: %w", parsed.ExpiresIn, err)
	}

	// Expire ahead of the server so a token is never presented at the edge of
	// its lifetime.
	return Token{
		Value:     parsed.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(ttlSeconds)*time.Second - a.safetyMargin),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
