package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomecast/spout/internal/config"
	"github.com/tomecast/spout/internal/database"
	"github.com/tomecast/spout/internal/logger"
	"github.com/tomecast/spout/internal/processing"
	"github.com/tomecast/spout/internal/services/download"
	"github.com/tomecast/spout/internal/services/publish"
	"github.com/tomecast/spout/internal/types"
)

type Worker struct {
	cfg config.Config
	db  *database.Client

	dispatcher *processing.Dispatcher
}

func NewWorker(cfg config.Config) (*Worker, error) {
	// Initialize database client
	db, err := database.NewClient(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database client: %w", err)
	}

	// Build processing stack
	downloads := download.NewService()
	publisher := publish.NewService(cfg.PublishURL, cfg.PublishAPIKey)
	dispatcher := processing.NewDispatcher()
	dispatcher.Register(processing.NewEpisodeProcessor(cfg, downloads, publisher))

	return &Worker{
		cfg:        cfg,
		db:         db,
		dispatcher: dispatcher,
	}, nil
}

func (w *Worker) Close() error {
	return w.db.Close()
}

// Run starts the worker loop
func (w *Worker) Run(ctx context.Context) error {
	logger.Info(ctx, "starting worker", logger.Fields{
		"poll_interval": w.cfg.PollInterval,
		"max_idle_time": w.cfg.MaxIdleTime,
		"concurrency":   w.cfg.Concurrency,
	})

	concurrency := w.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup

	startWorker := func(workerIndex int) {
		defer wg.Done()
		idleStart := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			task, err := w.db.DequeueNextTask(ctx)
			if err != nil {
				logger.Error(ctx, "failed to dequeue task", err)
				time.Sleep(w.cfg.PollInterval)
				continue
			}
			if task == nil {
				if time.Since(idleStart) > w.cfg.MaxIdleTime {
					// keep alive, but log occasionally
					logger.Debug(ctx, "worker idle", logger.Fields{"worker": workerIndex})
				}
				time.Sleep(w.cfg.PollInterval)
				continue
			}

			idleStart = time.Now()

			if err := w.processTask(ctx, task); err != nil {
				logger.Error(ctx, "failed to process task", err, logger.Fields{
					"task_id":   task.TaskID,
					"task_type": task.TaskType,
				})
			}
		}
	}

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go startWorker(i)
	}

	wg.Wait()
	return ctx.Err()
}

// processTask runs a single task through its processor and records the outcome.
func (w *Worker) processTask(ctx context.Context, task *types.Task) error {
	logger.Info(ctx, "processing task", logger.Fields{
		"task_id":      task.TaskID,
		"task_type":    task.TaskType,
		"scheduled_at": task.ScheduledAt,
	})

	processor, err := w.dispatcher.Get(task)
	if err != nil {
		if failErr := w.db.FailTask(ctx, task.TaskID, err.Error()); failErr != nil {
			logger.Error(ctx, "failed to record task failure", failErr)
		}
		return err
	}

	result := processor.Process(ctx, task)
	if !result.Success {
		if failErr := w.db.FailTask(ctx, task.TaskID, result.Error.Error()); failErr != nil {
			logger.Error(ctx, "failed to record task failure", failErr)
		}
		return result.Error
	}

	if err := w.db.CompleteTask(ctx, task.TaskID); err != nil {
		logger.Error(ctx, "failed to complete task", err, logger.Fields{"task_id": task.TaskID})
		return err
	}

	logger.Info(ctx, "task completed", logger.Fields{"task_id": task.TaskID})
	return nil
}
