package transcript

import (
	"testing"
)

func TestSegmentKey(t *testing.T) {
	tests := []struct {
		start, length float64
		want          string
	}{
		{2679.39, 19.66, "segment-2679.39-19.66"},
		{0, 5, "segment-0-5"},
		{5.5, 3, "segment-5.5-3"},
	}
	for _, tt := range tests {
		if got := SegmentKey(tt.start, tt.length); got != tt.want {
			t.Errorf("SegmentKey(%v, %v) = %q, want %q", tt.start, tt.length, got, tt.want)
		}
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	body := []byte(`{"header":{"status":"success"}}`)
	if err := store.Put(12.5, 4.2, body); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Read(12.5, 4.2)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("Read = %q, want %q", got, body)
	}

	if _, err := store.Read(99, 1); err == nil {
		t.Error("expected error reading absent artifact")
	}
}
