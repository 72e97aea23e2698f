package speech

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNoCredentials is returned once every configured credential has been
// removed from the pool, either at probe time or after quota exhaustion.
var ErrNoCredentials = errors.New("speech: no credentials available")

// BackendError is a non-2xx reply from the speech platform.
type BackendError struct {
	Op     string
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("speech %s: status %d: %s", e.Op, e.Status, e.Body)
}

// RetriesExhaustedError reports that a segment recognition request failed on
// every allowed attempt. The run continues; the segment gets a tombstone.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("speech: recognition failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

// AuthError wraps a failure to obtain a bearer token after the exchange's own
// retry budget is spent. Segment-level retries never recover these; the run
// aborts.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "speech: authentication failed: " + e.Err.Error() }

func (e *AuthError) Unwrap() error { return e.Err }

// IsQuotaExhausted reports whether the backend rejected the credential for
// lack of remaining quota. Quota failures are never retried against the same
// credential; the key is evicted and the request re-routed.
func IsQuotaExhausted(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Status == http.StatusForbidden
}

// IsTransient reports whether a failure is worth retrying: server-side 5xx
// replies and network-level errors (timeouts, refused connections).
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}
