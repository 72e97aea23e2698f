package media

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/tomecast/spout/internal/logger"
)

// Run executes a subprocess, streaming its stdout and stderr into the logger
// line by line. Both streams are drained on their own goroutines so the child
// never blocks on a full OS pipe, and both drains are joined before the wait
// returns. The call blocks until the process exits; pipeline stages stay
// strictly sequential.
func Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe for %s: %w", name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe for %s: %w", name, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	var g errgroup.Group
	g.Go(func() error { return drain(ctx, name, "stdout", stdout) })
	g.Go(func() error { return drain(ctx, name, "stderr", stderr) })

	drainErr := g.Wait()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s exited with error: %w", name, err)
	}
	if drainErr != nil {
		return fmt.Errorf("failed to drain %s output: %w", name, drainErr)
	}
	return nil
}

func drain(ctx context.Context, name, stream string, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Debug(ctx, "subprocess output", logger.Fields{
			"command": name,
			"stream":  stream,
			"line":    scanner.Text(),
		})
	}
	return scanner.Err()
}
