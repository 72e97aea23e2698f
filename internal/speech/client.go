package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomecast/spout/internal/diarize"
	"github.com/tomecast/spout/internal/logger"
)

// Fixed request descriptor values required by the recognition protocol. The
// app id must not be regenerated; the platform only accepts this one.
const (
	recognizeScenario = "ulm"
	recognizeAppID    = "D4D52672-91D7-4C74-8AD8-42B1D98141A5"
	recognizeDeviceOS = "wp7"
	recognizeVersion  = "3.0"
	instanceID        = "565D69FF-E928-4B7E-87DA-9A750B96D9E3"

	segmentContentType = `audio/wav; codec="audio/pcm"; samplerate=16000`
)

// Status classifies the outcome of one segment's recognition.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNoSpeech Status = "no-speech"
	StatusFailed   Status = "failed"
)

// Result is the outcome of transcribing one audio segment.
type Result struct {
	RequestID  string
	Status     Status
	Confidence float64
	Content    string
	Speaker    string
	Timestamp  float64
}

// ArtifactStore persists one raw recognition reply per segment so coalescing
// can run as a separate, idempotent pass.
type ArtifactStore interface {
	Put(startSeconds, lengthSeconds float64, body []byte) error
}

// ClientConfig carries the knobs for a transcription client.
type ClientConfig struct {
	Endpoint    string
	Locale      string
	MaxAttempts int
	RetryDelay  time.Duration
	// Minimum spacing between recognition requests sharing one credential.
	RequestSpacing time.Duration
	// Stable per-run value so every request of a run routes to the same
	// credential, and retries reuse it.
	RoutingHash uint32
}

// Client performs one HTTP recognition exchange per audio segment, using the
// authenticator for bearer tokens and persisting each raw reply to the store.
type Client struct {
	cfg        ClientConfig
	auth       *Authenticator
	store      ArtifactStore
	httpClient *http.Client

	// Token buckets bounding request rate per credential. The backend limit
	// applies to the account, not the connection, so the bucket follows the
	// key even after re-routing.
	limiters map[Credential]*rate.Limiter
}

func NewClient(cfg ClientConfig, auth *Authenticator, store ArtifactStore) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Client{
		cfg:   cfg,
		auth:  auth,
		store: store,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiters: make(map[Credential]*rate.Limiter),
	}
}

// Transcribe sends one segment's audio to the recognition endpoint. Quota and
// server-side failures are retried with a fixed delay up to the configured
// attempt budget; exhausting it persists a failure marker and returns a
// RetriesExhaustedError so the caller can tombstone the segment and move on.
// Any other failure is fatal for the run.
func (c *Client) Transcribe(ctx context.Context, segment diarize.Segment, audio []byte) (*Result, error) {
	var lastErr error
	var lastRequestID string

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			logger.Warn(ctx, "retrying segment recognition", logger.Fields{
				"segment": segment.Start,
				"attempt": attempt,
				"error":   lastErr.Error(),
			})
			if err := sleepCtx(ctx, c.cfg.RetryDelay); err != nil {
				return nil, err
			}
		}

		if err := c.waitTurn(ctx); err != nil {
			return nil, err
		}

		requestID := strings.ToUpper(uuid.NewString())
		lastRequestID = requestID

		result, err := c.recognize(ctx, segment, audio, requestID)
		if err == nil {
			return result, nil
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}

		if IsQuotaExhausted(err) {
			// Force a fresh exchange on the next attempt; the token endpoint
			// decides whether the key is out of quota and evicts it there.
			c.auth.InvalidateToken(c.cfg.RoutingHash)
			lastErr = err
			continue
		}
		if IsTransient(err) {
			lastErr = err
			continue
		}
		return nil, err
	}

	if err := c.store.Put(segment.Start, segment.Length, FailureMarker(lastRequestID)); err != nil {
		logger.Error(ctx, "failed to persist failure marker", err, logger.Fields{
			"segment": segment.Start,
		})
	}
	return nil, &RetriesExhaustedError{Attempts: c.cfg.MaxAttempts, Err: lastErr}
}

// waitTurn blocks until the credential this run routes to may send another
// request.
func (c *Client) waitTurn(ctx context.Context) error {
	cred, err := c.auth.SelectCredential(c.cfg.RoutingHash)
	if err != nil {
		return err
	}
	limiter, ok := c.limiters[cred]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(c.cfg.RequestSpacing), 1)
		c.limiters[cred] = limiter
	}
	return limiter.Wait(ctx)
}

func (c *Client) recognize(ctx context.Context, segment diarize.Segment, audio []byte, requestID string) (*Result, error) {
	token, err := c.auth.GetToken(ctx, c.cfg.RoutingHash)
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	params := url.Values{}
	params.Set("scenarios", recognizeScenario)
	params.Set("appid", recognizeAppID)
	params.Set("locale", c.cfg.Locale)
	params.Set("device.os", recognizeDeviceOS)
	params.Set("version", recognizeVersion)
	params.Set("format", "json")
	params.Set("instanceid", instanceID)
	params.Set("requestid", requestID)

	requestURL := c.cfg.Endpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition request: %w", err)
	}
	req.Header.Set("Accept", "application/json;text/xml")
	req.Header.Set("Content-Type", segmentContentType)
	req.Header.Set("Authorization", "Bearer "+token.Value)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read recognition response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{Op: "recognize", Status: resp.StatusCode, Body: truncate(body)}
	}

	if err := c.store.Put(segment.Start, segment.Length, body); err != nil {
		return nil, fmt.Errorf("failed to persist recognition artifact: %w", err)
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse recognition response: %w", err)
	}

	result := &Result{
		RequestID: parsed.RequestID(),
		Speaker:   segment.Speaker,
		Timestamp: segment.Start,
	}

	switch {
	case parsed.NoSpeech():
		result.Status = StatusNoSpeech
	case parsed.Header.Status == "success" && len(parsed.Results) > 0:
		result.Status = StatusSuccess
		result.Content = parsed.Results[0].Name
		if confidence, ok := parsed.TopConfidence(); ok {
			result.Confidence = confidence
		}
	default:
		result.Status = StatusFailed
	}

	return result, nil
}
