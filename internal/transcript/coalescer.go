package transcript

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/tomecast/spout/internal/diarize"
	"github.com/tomecast/spout/internal/logger"
	"github.com/tomecast/spout/internal/speech"
)

// Metadata carries the episode fields attached once to the final document.
type Metadata struct {
	Title       string
	Description string
	EpisodeURL  string
	PubDate     string
}

// Payload is the terminal artifact of an episode run, handed to the publish
// target as-is.
type Payload struct {
	Title       string           `json:"title"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	EpisodeURL  string           `json:"episode_url"`
	Slug        string           `json:"slug"`
	Segments    map[string]Entry `json:"segments"`
}

// Entry is one segment of the final transcript, keyed in Payload.Segments by
// the string-formatted start second. A tombstone entry carries the timestamp
// and empty content.
type Entry struct {
	RequestID  string   `json:"requestid,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Timestamp  float64  `json:"timestamp"`
	Content    string   `json:"content"`
	Speaker    string   `json:"speaker,omitempty"`
}

// Coalescer merges the per-segment artifacts of a run into one ordered
// transcript document.
type Coalescer struct {
	store *Store
}

func NewCoalescer(store *Store) *Coalescer {
	return &Coalescer{store: store}
}

// Coalesce builds the transcript payload for a processed segment sequence.
// Each segment yields exactly one entry: a full entry when its artifact is a
// success, a tombstone with the request id when the backend reported an error
// or no speech, and a bare tombstone when the artifact is missing or corrupt.
// The last case never fails the run; one lost segment degrades the transcript,
// it does not discard it.
func (c *Coalescer) Coalesce(ctx context.Context, segments []diarize.Segment, meta Metadata) *Payload {
	payload := &Payload{
		Title:       meta.Title,
		Date:        normalizeDate(meta.PubDate),
		Description: meta.Description,
		EpisodeURL:  meta.EpisodeURL,
		Slug:        Slug(meta.Title),
		Segments:    make(map[string]Entry, len(segments)),
	}

	for _, segment := range segments {
		payload.Segments[FormatSeconds(segment.Start)] = c.entryFor(ctx, segment)
	}

	return payload
}

func (c *Coalescer) entryFor(ctx context.Context, segment diarize.Segment) Entry {
	tombstone := Entry{Timestamp: segment.Start, Content: ""}

	body, err := c.store.Read(segment.Start, segment.Length)
	if err != nil {
		logger.Warn(ctx, "segment artifact unavailable, writing tombstone", logger.Fields{
			"segment": segment.Start,
			"error":   err.Error(),
		})
		return tombstone
	}

	var resp speech.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		logger.Warn(ctx, "segment artifact corrupt, writing tombstone", logger.Fields{
			"segment": segment.Start,
			"error":   err.Error(),
		})
		return tombstone
	}

	if resp.Header.Status != "success" || len(resp.Results) == 0 {
		tombstone.RequestID = resp.RequestID()
		return tombstone
	}

	entry := Entry{
		RequestID: resp.RequestID(),
		Timestamp: segment.Start,
		Content:   resp.Results[0].Name,
		Speaker:   segment.Speaker,
	}
	if confidence, ok := resp.TopConfidence(); ok {
		entry.Confidence = &confidence
	}
	return entry
}

var (
	pathPrefixPattern = regexp.MustCompile(`^.*[\\/]`)
	invalidRunPattern = regexp.MustCompile(`[^0-9A-Za-z.\-]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Slug turns an episode title into a URL-safe identifier: path prefixes are
// stripped, anything outside [0-9A-Za-z.-] becomes whitespace, and runs of
// whitespace collapse into single dashes.
func Slug(title string) string {
	s := pathPrefixPattern.ReplaceAllString(title, "")
	s = invalidRunPattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return whitespacePattern.ReplaceAllString(s, "-")
}

// normalizeDate renders an RFC 3339 publish date as YYYY-MM-DD, falling back
// to today when the feed supplied something unparseable.
func normalizeDate(pubDate string) string {
	parsed, err := time.Parse(time.RFC3339, pubDate)
	if err != nil {
		return time.Now().Format("2006-01-02")
	}
	return parsed.Format("2006-01-02")
}
