package diarize

import (
	"context"
	"fmt"

	"github.com/tomecast/spout/internal/media"
)

// Run performs speaker diarization on a mono 16kHz wav file, writing the
// segment list to segPath in .seg format. The diarizer is an external jar
// invoked as a subprocess; its output streams are drained and logged by the
// runner while the call blocks until the process exits.
func Run(ctx context.Context, jarPath, wavPath, segPath string) error {
	err := media.Run(ctx, "java",
		"-Xmx2024m",
		"-jar", jarPath,
		"--fInputMask="+wavPath,
		"--sOutputFormat=seg",
		"--sOutputMask="+segPath,
		"--doCEClustering",
		"podcast",
	)
	if err != nil {
		return fmt.Errorf("speaker diarization failed: %w", err)
	}
	return nil
}
