package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueExports is the queue name export tasks run on.
	QueueExports = "exports"
	// TaskLedgerExport is the task type for ledger export runs.
	TaskLedgerExport = "ledger:export"
)

// LedgerExportPayload identifies the persisted export task to run.
type LedgerExportPayload struct {
	TaskID int64 `json:"task_id"`
}

// NewLedgerExportTask constructs an Asynq task for a persisted export task.
func NewLedgerExportTask(payload LedgerExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerExport, data), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueLedgerExport enqueues an export run. Retries are disabled: the task
// record owns the retry decision, a failed run must surface as FAILED rather
// than silently re-execute.
func (c *Client) EnqueueLedgerExport(ctx context.Context, taskID int64) error {
	task, err := NewLedgerExportTask(LedgerExportPayload{TaskID: taskID})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueExports), asynq.MaxRetry(0))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}
