package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seaway-erp/seaway-erp/internal/files"
	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/shared"
	"github.com/seaway-erp/seaway-erp/internal/sources"
	"github.com/seaway-erp/seaway-erp/internal/subjects"
	"github.com/seaway-erp/seaway-erp/internal/voucher"
	"github.com/seaway-erp/seaway-erp/internal/voucher/dbf"
)

// TaskStore persists export tasks.
type TaskStore interface {
	Insert(ctx context.Context, kind voucher.Kind, params map[string]string, scope orgs.Scope, expectedRecords, submittedBy int64) (Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	List(ctx context.Context, filter ListFilter) ([]Task, error)
	ClaimRunning(ctx context.Context, id int64, at time.Time) error
	MarkSucceeded(ctx context.Context, id int64, result TaskResult, at time.Time) error
	MarkFailed(ctx context.Context, id int64, step, message string, at time.Time) error
}

// ScopeResolver turns a principal into the set of organizations it may export.
type ScopeResolver interface {
	Resolve(ctx context.Context, p *shared.Principal, filterOrgID int64) (orgs.Scope, error)
}

// ConfigResolver loads the chart-of-accounts mapping for the touched orgs.
type ConfigResolver interface {
	Resolve(ctx context.Context, codes []subjects.Code, orgIDs []int64) (*subjects.ConfigSet, error)
}

// RecordStore reads and marks exportable source records.
type RecordStore interface {
	Count(ctx context.Context, q sources.Query) (int64, error)
	DistinctOrgIDs(ctx context.Context, q sources.Query) ([]int64, error)
	ClaimForTask(ctx context.Context, q sources.Query, taskID int64) ([]sources.Record, error)
	MarkExported(ctx context.Context, recordType sources.RecordType, taskID int64, at time.Time) (int64, error)
	ReleaseClaims(ctx context.Context, recordType sources.RecordType, taskID int64) error
}

// FileRegistrar stores the produced artifact.
type FileRegistrar interface {
	Register(ctx context.Context, displayName, remark, contentType string, payload []byte) (files.StoredFile, error)
}

// Enqueuer hands the accepted task to the queue.
type Enqueuer interface {
	EnqueueLedgerExport(ctx context.Context, taskID int64) error
}

// Service orchestrates export task submission and execution.
type Service struct {
	tasks     TaskStore
	scopes    ScopeResolver
	configs   ConfigResolver
	records   RecordStore
	registrar FileRegistrar
	queue     Enqueuer
	generator *voucher.Generator
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceConfig wires the service dependencies.
type ServiceConfig struct {
	Tasks     TaskStore
	Scopes    ScopeResolver
	Configs   ConfigResolver
	Records   RecordStore
	Registrar FileRegistrar
	Queue     Enqueuer
	Logger    *slog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		tasks:     cfg.Tasks,
		scopes:    cfg.Scopes,
		configs:   cfg.Configs,
		records:   cfg.Records,
		registrar: cfg.Registrar,
		queue:     cfg.Queue,
		generator: voucher.NewGenerator(cfg.Logger),
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Submit validates the request, snapshots the resolved scope, and inserts a
// pending task. The data pre-checks run before anything is persisted:
// an empty selection or an incomplete account mapping fails the submission
// itself and no task record is created.
func (s *Service) Submit(ctx context.Context, params Params) (Task, error) {
	scope, err := s.scopes.Resolve(ctx, &params.Principal, params.FilterOrgID)
	if err != nil {
		return Task{}, err
	}
	query := params.Query(scope)

	var (
		count  int64
		orgIDs []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		count, err = s.records.Count(gctx, query)
		return err
	})
	g.Go(func() error {
		var err error
		orgIDs, err = s.records.DistinctOrgIDs(gctx, query)
		return err
	})
	if err := g.Wait(); err != nil {
		return Task{}, err
	}
	if count == 0 {
		return Task{}, voucher.ErrNoRecords
	}
	if _, err := s.configs.Resolve(ctx, params.Kind.RequiredCodes(), orgIDs); err != nil {
		return Task{}, err
	}

	task, err := s.tasks.Insert(ctx, params.Kind, params.ToMap(), scope, count, params.Principal.ID)
	if err != nil {
		return Task{}, err
	}
	if err := s.queue.EnqueueLedgerExport(ctx, task.ID); err != nil {
		_ = s.tasks.MarkFailed(ctx, task.ID, StepSubmit, err.Error(), s.now())
		return Task{}, fmt.Errorf("export: enqueue task %d: %w", task.ID, err)
	}
	if s.logger != nil {
		s.logger.Info("export task submitted",
			slog.Int64("task_id", task.ID),
			slog.String("kind", string(task.Kind)),
			slog.Int64("expected_records", count))
	}
	return task, nil
}

// Get loads a single task.
func (s *Service) Get(ctx context.Context, id int64) (Task, error) {
	return s.tasks.Get(ctx, id)
}

// List returns tasks matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	return s.tasks.List(ctx, filter)
}

// Execute runs the pipeline for a queued task. A task already in a terminal
// state, or claimed by another worker, is a clean no-op. Any failure after
// the record claim releases the claimed records before the task is marked
// failed, so a later run can pick them up again.
func (s *Service) Execute(ctx context.Context, taskID int64) error {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if err := s.tasks.ClaimRunning(ctx, task.ID, s.now()); err != nil {
		if errors.Is(err, ErrNotClaimable) {
			return nil
		}
		return err
	}

	result, runErr := s.run(ctx, task)
	if runErr != nil {
		step := StepParams
		var stepErr *StepError
		if errors.As(runErr, &stepErr) {
			step = stepErr.Step
		}
		_ = s.tasks.MarkFailed(ctx, task.ID, step, runErr.Error(), s.now())
		if s.logger != nil {
			s.logger.Error("export task failed",
				slog.Int64("task_id", task.ID),
				slog.String("step", step),
				slog.Any("error", runErr))
		}
		return runErr
	}

	if err := s.tasks.MarkSucceeded(ctx, task.ID, result, s.now()); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("export task succeeded",
			slog.Int64("task_id", task.ID),
			slog.String("file", result.FileName),
			slog.Int("records", result.RecordCount),
			slog.Int("entries", result.EntryCount))
	}
	return nil
}

func (s *Service) run(ctx context.Context, task Task) (TaskResult, error) {
	params, err := ParseParams(task.Params)
	if err != nil {
		return TaskResult{}, &StepError{Step: StepParams, Err: err}
	}
	if task.Scope.Empty() {
		return TaskResult{}, &StepError{Step: StepScope, Err: errors.New("scope snapshot is empty")}
	}
	query := params.Query(task.Scope)

	records, err := s.records.ClaimForTask(ctx, query, task.ID)
	if err != nil {
		return TaskResult{}, &StepError{Step: StepQuery, Err: err}
	}
	if len(records) == 0 {
		return TaskResult{}, &StepError{Step: StepQuery, Err: voucher.ErrNoRecords}
	}
	recordType := params.Kind.RecordType()

	result, err := s.produce(ctx, task, params, records)
	if err != nil {
		if relErr := s.records.ReleaseClaims(ctx, recordType, task.ID); relErr != nil && s.logger != nil {
			s.logger.Error("release claims", slog.Int64("task_id", task.ID), slog.Any("error", relErr))
		}
		return TaskResult{}, err
	}

	if _, err := s.records.MarkExported(ctx, recordType, task.ID, s.now()); err != nil {
		return TaskResult{}, &StepError{Step: StepMark, Err: err}
	}
	return result, nil
}

// produce runs the pure pipeline stages: resolve configs for the orgs the
// claimed records actually touch, aggregate, generate, encode, register.
func (s *Service) produce(ctx context.Context, task Task, params Params, records []sources.Record) (TaskResult, error) {
	orgSeen := make(map[int64]bool)
	var orgIDs []int64
	for _, rec := range records {
		if !orgSeen[rec.OrgID] {
			orgSeen[rec.OrgID] = true
			orgIDs = append(orgIDs, rec.OrgID)
		}
	}
	set, err := s.configs.Resolve(ctx, params.Kind.RequiredCodes(), orgIDs)
	if err != nil {
		return TaskResult{}, &StepError{Step: StepConfig, Err: err}
	}

	groups, err := voucher.Aggregate(params.Kind, records)
	if err != nil {
		return TaskResult{}, &StepError{Step: StepAggregate, Err: err}
	}

	generated, err := s.generator.Generate(params.Kind, groups, set, params.AccountingDate)
	if err != nil {
		return TaskResult{}, &StepError{Step: StepGenerate, Err: err}
	}

	payload, err := dbf.Encode(generated.Entries)
	if err != nil {
		return TaskResult{}, &StepError{Step: StepEncode, Err: err}
	}

	fileName := fmt.Sprintf("%s_Export_%s.dbf", params.Kind, s.now().UTC().Format("20060102150405"))
	remark := fmt.Sprintf("%s export: %d records, %d vouchers, %d entries, total %s",
		params.Kind, len(records), generated.VoucherCount, len(generated.Entries), generated.Total.StringFixed(2))
	stored, err := s.registrar.Register(ctx, fileName, remark, "application/x-dbf", payload)
	if err != nil {
		return TaskResult{}, &StepError{Step: StepRegister, Err: err}
	}

	return TaskResult{
		FileID:        stored.ID,
		FileName:      fileName,
		ByteCount:     len(payload),
		RecordCount:   len(records),
		GroupCount:    len(groups),
		SkippedGroups: generated.SkippedGroups,
		VoucherCount:  generated.VoucherCount,
		EntryCount:    len(generated.Entries),
		Total:         generated.Total.StringFixed(2),
	}, nil
}
