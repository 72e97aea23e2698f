package processing

import (
	"context"

	"github.com/tomecast/spout/internal/types"
)

// Processor defines the contract for handling a specific task type.
// Implementations orchestrate one run of their pipeline and report the
// outcome; a failed run is retried whole, never resumed partway.
type Processor interface {
	// TaskType returns the queues.task_type handled by this processor.
	TaskType() string
	// Process performs the unit of work and returns a TaskResult. It must not enqueue.
	Process(ctx context.Context, task *types.Task) *types.TaskResult
}
