package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/tomecast/spout/internal/diarize"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestCoalesceMissingArtifactYieldsTombstone(t *testing.T) {
	store := newTestStore(t)
	coalescer := NewCoalescer(store)

	segments := []diarize.Segment{{Start: 42.5, Length: 3.1, Speaker: "S0"}}
	payload := coalescer.Coalesce(context.Background(), segments, Metadata{Title: "Episode 1"})

	entry, ok := payload.Segments["42.5"]
	if !ok {
		t.Fatalf("no entry keyed by start time; keys: %v", keys(payload))
	}
	if entry.Timestamp != 42.5 {
		t.Errorf("timestamp = %v, want 42.5", entry.Timestamp)
	}
	if entry.Content != "" {
		t.Errorf("content = %q, want empty", entry.Content)
	}
	if entry.RequestID != "" || entry.Confidence != nil || entry.Speaker != "" {
		t.Errorf("bare tombstone carries extra fields: %+v", entry)
	}
}

func TestCoalesceCorruptArtifactYieldsTombstone(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put(1.5, 2, []byte("{not json")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	payload := NewCoalescer(store).Coalesce(context.Background(),
		[]diarize.Segment{{Start: 1.5, Length: 2, Speaker: "S0"}}, Metadata{})

	entry := payload.Segments["1.5"]
	if entry.Content != "" || entry.RequestID != "" {
		t.Errorf("corrupt artifact should tombstone, got %+v", entry)
	}
}

func TestCoalesceErrorArtifactKeepsRequestID(t *testing.T) {
	store := newTestStore(t)
	body := []byte(`{"header":{"status":"error","properties":{"requestid":"REQ-9","NOSPEECH":"1"}}}`)
	if err := store.Put(7.25, 4, body); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	payload := NewCoalescer(store).Coalesce(context.Background(),
		[]diarize.Segment{{Start: 7.25, Length: 4, Speaker: "S1"}}, Metadata{})

	entry := payload.Segments["7.25"]
	if entry.RequestID != "REQ-9" {
		t.Errorf("request id = %q, want REQ-9", entry.RequestID)
	}
	if entry.Content != "" {
		t.Errorf("content = %q, want empty", entry.Content)
	}
	if entry.Confidence != nil {
		t.Errorf("tombstone should not carry confidence")
	}
}

func TestCoalesceEndToEnd(t *testing.T) {
	store := newTestStore(t)

	// Segment 1: a successful transcription.
	success := []byte(`{"header":{"status":"success","properties":{"requestid":"REQ-A"}},"results":[{"name":"welcome back","confidence":"0.91"}]}`)
	if err := store.Put(0, 5, success); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Segment 2: backend heard nothing.
	noSpeech := []byte(`{"header":{"status":"error","properties":{"requestid":"REQ-B","NOSPEECH":"1"}}}`)
	if err := store.Put(5.5, 3, noSpeech); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Segment 3: no artifact at all.

	segments := []diarize.Segment{
		{Start: 0, Length: 5, Speaker: "S0"},
		{Start: 5.5, Length: 3, Speaker: "S1"},
		{Start: 9.75, Length: 2, Speaker: "S0"},
	}
	payload := NewCoalescer(store).Coalesce(context.Background(), segments, Metadata{
		Title:       "Episode 12: What We Know",
		Description: "season finale",
		EpisodeURL:  "https://example.com/ep12.mp3",
		PubDate:     "2014-12-18T10:30:00Z",
	})

	if len(payload.Segments) != 3 {
		t.Fatalf("got %d entries, want 3", len(payload.Segments))
	}

	full := payload.Segments["0"]
	if full.Content != "welcome back" {
		t.Errorf("content = %q, want %q", full.Content, "welcome back")
	}
	if full.Confidence == nil || *full.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", full.Confidence)
	}
	if full.RequestID != "REQ-A" || full.Speaker != "S0" {
		t.Errorf("unexpected entry: %+v", full)
	}

	if got := payload.Segments["5.5"].Content; got != "" {
		t.Errorf("no-speech content = %q, want empty", got)
	}
	if got := payload.Segments["9.75"].Content; got != "" {
		t.Errorf("missing-artifact content = %q, want empty", got)
	}

	if payload.Date != "2014-12-18" {
		t.Errorf("date = %q, want 2014-12-18", payload.Date)
	}
	if payload.Slug != "Episode-12-What-We-Know" {
		t.Errorf("slug = %q", payload.Slug)
	}
	if payload.EpisodeURL != "https://example.com/ep12.mp3" {
		t.Errorf("episode url = %q", payload.EpisodeURL)
	}
}

func TestCoalesceUnparseableDateFallsBackToToday(t *testing.T) {
	store := newTestStore(t)
	payload := NewCoalescer(store).Coalesce(context.Background(),
		[]diarize.Segment{{Start: 0, Length: 1}}, Metadata{PubDate: "next Tuesday"})

	if payload.Date != time.Now().Format("2006-01-02") {
		t.Errorf("date = %q, want today", payload.Date)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Episode 12: What We Know", "Episode-12-What-We-Know"},
		{"H.I. #52: 20,000 Years of Torment", "H.I.-52-20-000-Years-of-Torment"},
		{"  padded  title  ", "padded-title"},
		{"path/to/Episode One", "Episode-One"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Slug(tt.title); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func keys(p *Payload) []string {
	out := make([]string, 0, len(p.Segments))
	for k := range p.Segments {
		out = append(out, k)
	}
	return out
}
