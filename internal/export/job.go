package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/seaway-erp/seaway-erp/internal/jobs"
	"github.com/seaway-erp/seaway-erp/jobs"
)

// JobConfig wires dependencies required by the worker job.
type JobConfig struct {
	Service *Service
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// Job processes ledger export runs coming from the queue.
type Job struct {
	service *Service
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewJob constructs a Job handler.
func NewJob(cfg JobConfig) *Job {
	return &Job{service: cfg.Service, metrics: cfg.Metrics, logger: cfg.Logger}
}

// Handle fulfils the asynq.HandlerFunc contract. The task record owns retry
// semantics, so queue-level retries stay off: a malformed payload or a
// missing task is dropped, everything else is surfaced once and recorded on
// the task row by the service.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.service == nil {
		return fmt.Errorf("export job not configured")
	}
	var payload jobs.LedgerExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TaskID == 0 {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track(jobs.TaskLedgerExport)
	err := j.service.Execute(ctx, payload.TaskID)
	if errors.Is(err, ErrTaskNotFound) {
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if err == nil {
		if t, loadErr := j.service.Get(ctx, payload.TaskID); loadErr == nil && t.Result != nil {
			j.metrics.AddRecords(string(t.Kind), t.Result.RecordCount)
		}
	}
	return tracker.End(err)
}
