package types

import (
	"encoding/json"
	"time"
)

// Task represents a task from the queues.task table
type Task struct {
	TaskID      int64           `json:"task_id"`
	TaskType    string          `json:"task_type"`
	Payload     json.RawMessage `json:"payload"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	DequeuedAt  *time.Time      `json:"dequeued_at"`
}

// TaskResult represents the result of processing a task
type TaskResult struct {
	Success       bool
	WorkerPayload any   // The result data from the processor (publish response, etc.)
	Error         error // Any error that occurred
}

// NewTaskSuccess creates a successful task result
func NewTaskSuccess(workerPayload any) *TaskResult {
	return &TaskResult{
		Success:       true,
		WorkerPayload: workerPayload,
	}
}

// NewTaskFailure creates a failed task result
func NewTaskFailure(err error) *TaskResult {
	return &TaskResult{
		Success: false,
		Error:   err,
	}
}
