package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/platform/db"
	"github.com/seaway-erp/seaway-erp/internal/voucher"
)

// Repository persists export tasks. The resolved scope is snapshotted onto
// the row at submission time; the worker replays exactly the scope the
// submitter had, regardless of later permission changes.
type Repository struct {
	db db.Querier
}

// NewRepository constructs a repository wrapper.
func NewRepository(querier db.Querier) *Repository {
	return &Repository{db: querier}
}

const taskColumns = `id, kind, status, params, scope_unrestricted, scope_org_ids, expected_records, submitted_by,
result, COALESCE(error_step,''), COALESCE(error_message,''), created_at, updated_at, started_at, finished_at`

// Insert stores a new pending task and returns it.
func (r *Repository) Insert(ctx context.Context, kind voucher.Kind, params map[string]string, scope orgs.Scope, expectedRecords, submittedBy int64) (Task, error) {
	if r == nil || r.db == nil {
		return Task{}, fmt.Errorf("export: repository not initialised")
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return Task{}, err
	}
	var scopeIDs []int64
	if !scope.Unrestricted() {
		scopeIDs = scope.IDs()
	}
	const insert = `INSERT INTO export_tasks (kind, status, params, scope_unrestricted, scope_org_ids, expected_records, submitted_by)
VALUES ($1,'PENDING',$2,$3,$4,$5,$6)
RETURNING ` + taskColumns
	task, err := scanTask(r.db.QueryRow(ctx, insert, string(kind), payload, scope.Unrestricted(), scopeIDs, expectedRecords, submittedBy))
	if err != nil {
		return Task{}, err
	}
	return task, nil
}

// Get loads a task by id.
func (r *Repository) Get(ctx context.Context, id int64) (Task, error) {
	if r == nil || r.db == nil {
		return Task{}, fmt.Errorf("export: repository not initialised")
	}
	const query = `SELECT ` + taskColumns + ` FROM export_tasks WHERE id = $1`
	task, err := scanTask(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
	return task, nil
}

// ListFilter configures List queries.
type ListFilter struct {
	SubmittedBy int64
	Status      Status
	Limit       int
	Offset      int
}

// List returns tasks, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Task, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("export: repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT ` + taskColumns + ` FROM export_tasks
WHERE ($1 = 0 OR submitted_by = $1)
  AND ($2 = '' OR status = $2)
ORDER BY id DESC
LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, filter.SubmittedBy, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ClaimRunning transitions PENDING → RUNNING. The conditional update is the
// claim: zero rows affected means another worker got there first or the
// task already finished.
func (r *Repository) ClaimRunning(ctx context.Context, id int64, at time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("export: repository not initialised")
	}
	const update = `UPDATE export_tasks
SET status = 'RUNNING', started_at = $2, updated_at = $2
WHERE id = $1 AND status = 'PENDING'`
	cmd, err := r.db.Exec(ctx, update, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotClaimable
	}
	return nil
}

// MarkSucceeded records the run summary. Only a RUNNING task can succeed.
func (r *Repository) MarkSucceeded(ctx context.Context, id int64, result TaskResult, at time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("export: repository not initialised")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	const update = `UPDATE export_tasks
SET status = 'SUCCEEDED', result = $2, finished_at = $3, updated_at = $3
WHERE id = $1 AND status = 'RUNNING'`
	cmd, err := r.db.Exec(ctx, update, id, payload, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotClaimable
	}
	return nil
}

// MarkFailed records the failing step and message. A task already in a
// terminal state is left untouched.
func (r *Repository) MarkFailed(ctx context.Context, id int64, step, message string, at time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("export: repository not initialised")
	}
	if message == "" {
		message = "unknown error"
	}
	const update = `UPDATE export_tasks
SET status = 'FAILED', error_step = $2, error_message = $3, finished_at = $4, updated_at = $4
WHERE id = $1 AND status IN ('PENDING','RUNNING')`
	_, err := r.db.Exec(ctx, update, id, step, message, at)
	return err
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		task         Task
		kind         string
		status       string
		paramsRaw    []byte
		unrestricted bool
		scopeIDs     []int64
		resultRaw    []byte
	)
	err := row.Scan(&task.ID, &kind, &status, &paramsRaw, &unrestricted, &scopeIDs, &task.ExpectedRecords, &task.SubmittedBy,
		&resultRaw, &task.ErrorStep, &task.ErrorMessage, &task.CreatedAt, &task.UpdatedAt, &task.StartedAt, &task.FinishedAt)
	if err != nil {
		return Task{}, err
	}
	task.Kind = voucher.Kind(kind)
	task.Status = NormaliseStatus(status)
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &task.Params); err != nil {
			return Task{}, fmt.Errorf("export: task %d params: %w", task.ID, err)
		}
	}
	if unrestricted {
		task.Scope = orgs.UnrestrictedScope()
	} else {
		task.Scope = orgs.NewScope(scopeIDs)
	}
	if len(resultRaw) > 0 {
		var result TaskResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return Task{}, fmt.Errorf("export: task %d result: %w", task.ID, err)
		}
		task.Result = &result
	}
	return task, nil
}
