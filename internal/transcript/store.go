package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Store persists one raw recognition artifact per segment as a JSON file
// named after the segment's start and length. Keeping artifacts on disk lets
// the coalescing pass run separately and makes a missing segment a degraded
// entry instead of a failed run.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// SegmentKey names a segment by its start and length in seconds, e.g.
// "segment-2679.39-19.66". Clip filenames use the same key.
func SegmentKey(startSeconds, lengthSeconds float64) string {
	return "segment-" + FormatSeconds(startSeconds) + "-" + FormatSeconds(lengthSeconds)
}

// FormatSeconds renders a 2-decimal seconds value without trailing zeros, the
// form used for artifact keys and transcript entry keys alike.
func FormatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (s *Store) path(startSeconds, lengthSeconds float64) string {
	return filepath.Join(s.dir, SegmentKey(startSeconds, lengthSeconds)+".json")
}

// Put writes a segment's artifact, replacing any previous attempt.
func (s *Store) Put(startSeconds, lengthSeconds float64, body []byte) error {
	if err := os.WriteFile(s.path(startSeconds, lengthSeconds), body, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact for %s: %w", SegmentKey(startSeconds, lengthSeconds), err)
	}
	return nil
}

// Read returns a segment's raw artifact. Callers treat any error as "no
// usable artifact"; an absent file is not exceptional here.
func (s *Store) Read(startSeconds, lengthSeconds float64) ([]byte, error) {
	body, err := os.ReadFile(s.path(startSeconds, lengthSeconds))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact for %s: %w", SegmentKey(startSeconds, lengthSeconds), err)
	}
	return body, nil
}
