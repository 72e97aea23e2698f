package diarize

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Segment is one speaker turn from the diarization output, in seconds with
// two-decimal precision. Segments are immutable once parsed.
type Segment struct {
	Start   float64
	Length  float64
	Speaker string
}

// End returns the second at which the segment stops.
func (s Segment) End() float64 {
	return round2(s.Start + s.Length)
}

// Gap is a stretch of audio between two consecutive segments that no speaker
// turn covers.
type Gap struct {
	Size         float64
	PrevEnd      float64
	CurrentStart float64
}

// Report collects quality diagnostics about a parsed segment sequence. It is
// observability only and never alters downstream processing.
type Report struct {
	// Segments longer than the threshold, sorted descending by length.
	LongSegments []Segment
	// Uncovered stretches wider than the threshold, sorted descending by size.
	Gaps []Gap
}

// Options tunes the anomaly thresholds, both in seconds.
type Options struct {
	LongSegmentThreshold float64
	GapThreshold         float64
}

// DefaultOptions match the thresholds the pipeline has always warned at.
func DefaultOptions() Options {
	return Options{LongSegmentThreshold: 19, GapThreshold: 2}
}

// ParseFile reads a diarization .seg file. A missing or empty file is an
// error: with no segments there is no transcript to produce.
func ParseFile(path string, opts Options) ([]Segment, *Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open diarization output: %w", err)
	}
	defer f.Close()
	return Parse(f, opts)
}

// Parse reads whitespace-delimited diarization records of the form
//
//	name channel startCs lengthCs gender type env speaker
//
// where startCs and lengthCs are integers in hundredths of a second. Blank
// lines and lines starting with ";;" are skipped. The returned sequence is
// sorted ascending by start time; records with equal starts keep their
// original order.
func Parse(r io.Reader, opts Options) ([]Segment, *Report, error) {
	if opts.LongSegmentThreshold <= 0 {
		opts.LongSegmentThreshold = DefaultOptions().LongSegmentThreshold
	}
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = DefaultOptions().GapThreshold
	}

	var segments []Segment
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";;") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 8 {
			return nil, nil, fmt.Errorf("malformed diarization record on line %d: %q", lineNo, line)
		}

		startCs, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start on line %d: %w", lineNo, err)
		}
		lengthCs, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid length on line %d: %w", lineNo, err)
		}

		segments = append(segments, Segment{
			Start:   round2(float64(startCs) / 100),
			Length:  round2(float64(lengthCs) / 100),
			Speaker: fields[7],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read diarization output: %w", err)
	}

	if len(segments) == 0 {
		return nil, nil, fmt.Errorf("diarization output contains no segments")
	}

	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	return segments, inspect(segments, opts), nil
}

// inspect walks the sorted sequence once, flagging overlong segments and
// uncovered gaps between consecutive segments.
func inspect(segments []Segment, opts Options) *Report {
	report := &Report{}

	for i, segment := range segments {
		if segment.Length > opts.LongSegmentThreshold {
			report.LongSegments = append(report.LongSegments, segment)
		}

		if i == 0 {
			continue
		}
		prevEnd := segments[i-1].End()
		gap := round2(segment.Start - prevEnd)
		if gap > opts.GapThreshold {
			report.Gaps = append(report.Gaps, Gap{
				Size:         gap,
				PrevEnd:      prevEnd,
				CurrentStart: segment.Start,
			})
		}
	}

	sort.SliceStable(report.LongSegments, func(i, j int) bool {
		return report.LongSegments[i].Length > report.LongSegments[j].Length
	})
	sort.SliceStable(report.Gaps, func(i, j int) bool {
		return report.Gaps[i].Size > report.Gaps[j].Size
	})

	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
