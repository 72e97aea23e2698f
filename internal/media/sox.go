package media

import (
	"context"
	"fmt"
	"strconv"
)

// Resample converts an episode's source audio into the mono 16kHz 16-bit wav
// the diarizer and the recognition protocol both expect.
func Resample(ctx context.Context, inputPath, wavPath string) error {
	err := Run(ctx, "sox", inputPath,
		"-r", "16000",
		"-b", "16",
		"-e", "signed-integer",
		"-c", "1",
		wavPath,
	)
	if err != nil {
		return fmt.Errorf("failed to resample %s: %w", inputPath, err)
	}
	return nil
}

// Split extracts one segment's clip out of the full episode wav.
func Split(ctx context.Context, wavPath, clipPath string, startSeconds, lengthSeconds float64) error {
	start := strconv.FormatFloat(startSeconds, 'f', -1, 64)
	length := strconv.FormatFloat(lengthSeconds, 'f', -1, 64)
	if err := Run(ctx, "sox", wavPath, clipPath, "trim", start, length); err != nil {
		return fmt.Errorf("failed to extract clip at %ss: %w", start, err)
	}
	return nil
}
