package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tomecast/spout/internal/logger"
	"github.com/tomecast/spout/internal/transcript"
)

// Service publishes finished transcript documents to the transcript-hosting
// service.
type Service struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Response struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

func NewService(baseURL, apiKey string) *Service {
	return &Service{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Publish uploads one episode's transcript payload under the podcast title.
func (s *Service) Publish(ctx context.Context, podcastTitle string, payload *transcript.Payload) (*Response, error) {
	if payload == nil {
		return nil, fmt.Errorf("transcript payload is nil")
	}
	if s.baseURL == "" {
		return nil, fmt.Errorf("publish baseURL is empty")
	}

	logger.Info(ctx, "publishing transcript", logger.Fields{
		"podcast":  podcastTitle,
		"slug":     payload.Slug,
		"segments": len(payload.Segments),
	})

	body := map[string]any{
		"podcast":    podcastTitle,
		"transcript": payload,
	}
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal publish request: %w", err)
	}

	url := s.baseURL + "/transcripts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call publish target: %w", err)
	}
	defer resp.Body.Close()

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode publish response: %w", err)
	}

	if resp.StatusCode >= 400 {
		errMsg := fmt.Sprintf("publish target error (status %d)", resp.StatusCode)
		if parsed.Error != "" {
			errMsg += ": " + parsed.Error
		}
		return nil, fmt.Errorf("%s", errMsg)
	}

	logger.Info(ctx, "transcript published", logger.Fields{
		"slug":       payload.Slug,
		"publish_id": parsed.ID,
	})

	return &parsed, nil
}
