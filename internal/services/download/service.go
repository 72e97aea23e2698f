package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tomecast/spout/internal/logger"
)

// Service fetches episode source audio over HTTP.
type Service struct {
	httpClient *http.Client
}

func NewService() *Service {
	return &Service{
		httpClient: &http.Client{
			// Episode files run to hundreds of megabytes on slow CDNs.
			Timeout: 30 * time.Minute,
		},
	}
}

// Fetch downloads the file at url into destPath, replacing any previous copy.
func (s *Service) Fetch(ctx context.Context, url, destPath string) error {
	logger.Info(ctx, "downloading episode audio", logger.Fields{"url": url})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download episode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("episode download returned status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create episode file: %w", err)
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to write episode file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush episode file: %w", err)
	}

	logger.Info(ctx, "episode audio downloaded", logger.Fields{
		"path":  destPath,
		"bytes": written,
	})
	return nil
}
