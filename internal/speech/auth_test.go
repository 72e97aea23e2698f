package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newTokenServer issues tokens whose value embeds the client_secret, so tests
// can tell which credential a token came from. Secrets listed in quota get a
// 403; secrets listed in flaky get one 500 before succeeding.
func newTokenServer(t *testing.T, quota map[string]bool, flaky map[string]*int32) (*httptest.Server, *int32) {
	t.Helper()
	var exchanges int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&exchanges, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token request form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		secret := r.Form.Get("client_secret")

		if quota[secret] {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if remaining, ok := flaky[secret]; ok && atomic.AddInt32(remaining, -1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%s","expires_in":"600"}`, secret)
	}))
	return server, &exchanges
}

func newAuthenticator(tokenURL string, keys ...string) *Authenticator {
	return NewAuthenticator(tokenURL, keys, 60*time.Second, time.Millisecond)
}

func TestSelectCredentialDeterministic(t *testing.T) {
	auth := newAuthenticator("http://unused", "k0", "k1", "k2")

	for hash := uint32(0); hash < 10; hash++ {
		first, err := auth.SelectCredential(hash)
		if err != nil {
			t.Fatalf("SelectCredential(%d) returned error: %v", hash, err)
		}
		second, err := auth.SelectCredential(hash)
		if err != nil {
			t.Fatalf("SelectCredential(%d) returned error on repeat: %v", hash, err)
		}
		if first != second {
			t.Errorf("SelectCredential(%d) not deterministic: %q then %q", hash, first, second)
		}
		want := Credential([]string{"k0", "k1", "k2"}[hash%3])
		if first != want {
			t.Errorf("SelectCredential(%d) = %q, want %q", hash, first, want)
		}
	}
}

func TestSelectCredentialEmptyPool(t *testing.T) {
	auth := newAuthenticator("http://unused")
	if _, err := auth.SelectCredential(7); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestGetTokenCachesUntilExpiry(t *testing.T) {
	server, exchanges := newTokenServer(t, nil, nil)
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0")
	ctx := context.Background()

	first, err := auth.GetToken(ctx, 1)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	second, err := auth.GetToken(ctx, 1)
	if err != nil {
		t.Fatalf("second GetToken failed: %v", err)
	}

	if first.Value != second.Value {
		t.Errorf("expected cached token, got %q then %q", first.Value, second.Value)
	}
	if got := atomic.LoadInt32(exchanges); got != 1 {
		t.Errorf("expected 1 exchange, got %d", got)
	}
}

func TestGetTokenAppliesSafetyMargin(t *testing.T) {
	server, _ := newTokenServer(t, nil, nil)
	defer server.Close()

	margin := 60 * time.Second
	auth := NewAuthenticator(server.URL, []string{"k0"}, margin, time.Millisecond)

	before := time.Now()
	token, err := auth.GetToken(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}

	// Server TTL is 600s; effective lifetime must be shorter by the margin.
	upper := before.Add(600*time.Second - margin + time.Second)
	if token.ExpiresAt.After(upper) {
		t.Errorf("token expires at %v, want at most %v", token.ExpiresAt, upper)
	}
}

func TestGetTokenQuotaEvictsAndReroutes(t *testing.T) {
	server, _ := newTokenServer(t, map[string]bool{"k0": true}, nil)
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0", "k1")
	ctx := context.Background()

	// Hash 0 routes to k0, whose quota is gone.
	token, err := auth.GetToken(ctx, 0)
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if token.Value != "tok-k1" {
		t.Errorf("expected re-route to k1, got token %q", token.Value)
	}

	if auth.PoolSize() != 1 {
		t.Errorf("pool size = %d after eviction, want 1", auth.PoolSize())
	}

	// The evicted credential must never be selected again.
	for hash := uint32(0); hash < 10; hash++ {
		cred, err := auth.SelectCredential(hash)
		if err != nil {
			t.Fatalf("SelectCredential(%d) failed: %v", hash, err)
		}
		if cred == "k0" {
			t.Fatalf("evicted credential selected for hash %d", hash)
		}
	}
}

func TestGetTokenPoolExhausted(t *testing.T) {
	server, _ := newTokenServer(t, map[string]bool{"k0": true, "k1": true}, nil)
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0", "k1")
	if _, err := auth.GetToken(context.Background(), 3); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials once pool empties, got %v", err)
	}
	if auth.PoolSize() != 0 {
		t.Errorf("pool size = %d, want 0", auth.PoolSize())
	}
}

func TestExchangeRetriesTransientOnce(t *testing.T) {
	var failures int32 = 1
	server, exchanges := newTokenServer(t, nil, map[string]*int32{"k0": &failures})
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0")
	token, err := auth.GetToken(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetToken failed despite retry budget: %v", err)
	}
	if token.Value != "tok-k0" {
		t.Errorf("token = %q, want tok-k0", token.Value)
	}
	if got := atomic.LoadInt32(exchanges); got != 2 {
		t.Errorf("expected 2 exchange attempts, got %d", got)
	}
}

func TestExchangeTransientExhaustedIsFatal(t *testing.T) {
	var failures int32 = 10
	server, exchanges := newTokenServer(t, nil, map[string]*int32{"k0": &failures})
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0")
	if _, err := auth.GetToken(context.Background(), 0); err == nil {
		t.Fatal("expected error after exhausting exchange retries")
	}
	// Two attempts total, fixed.
	if got := atomic.LoadInt32(exchanges); got != 2 {
		t.Errorf("expected 2 exchange attempts, got %d", got)
	}
	// Credential stays in the pool: transient failures do not evict.
	if auth.PoolSize() != 1 {
		t.Errorf("pool size = %d, want 1", auth.PoolSize())
	}
}

func TestProbeDropsFailingCredentials(t *testing.T) {
	server, _ := newTokenServer(t, map[string]bool{"bad": true}, nil)
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0", "bad", "k1")
	if err := auth.Probe(context.Background()); err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if auth.PoolSize() != 2 {
		t.Errorf("pool size = %d after probe, want 2", auth.PoolSize())
	}
}

func TestProbeAllCredentialsFailing(t *testing.T) {
	server, _ := newTokenServer(t, map[string]bool{"k0": true}, nil)
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0")
	if err := auth.Probe(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestInvalidateTokenForcesExchange(t *testing.T) {
	server, exchanges := newTokenServer(t, nil, nil)
	defer server.Close()

	auth := newAuthenticator(server.URL, "k0")
	ctx := context.Background()

	if _, err := auth.GetToken(ctx, 0); err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	auth.InvalidateToken(0)
	if _, err := auth.GetToken(ctx, 0); err != nil {
		t.Fatalf("GetToken after invalidation failed: %v", err)
	}

	if got := atomic.LoadInt32(exchanges); got != 2 {
		t.Errorf("expected 2 exchanges after invalidation, got %d", got)
	}
}
