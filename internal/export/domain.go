// Package export orchestrates asynchronous ledger export tasks: a submitted
// request becomes a persisted task, a queue worker claims it, runs the
// pipeline, and the task record carries the outcome the back office polls.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/voucher"
)

// Status captures the lifecycle state of an export task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// NormaliseStatus uppercases and trims the provided status string.
func NormaliseStatus(v string) Status {
	v = strings.TrimSpace(strings.ToUpper(v))
	switch Status(v) {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return Status(v)
	default:
		return StatusPending
	}
}

// Pipeline step names recorded on failure so the back office can tell a
// data problem from an infrastructure one.
const (
	StepSubmit    = "submit"
	StepParams    = "params"
	StepScope     = "scope"
	StepConfig    = "config"
	StepQuery     = "query"
	StepAggregate = "aggregate"
	StepGenerate  = "generate"
	StepEncode    = "encode"
	StepRegister  = "register"
	StepMark      = "mark"
)

// StepError tags a pipeline failure with the step it happened in.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("export: step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Task is the persisted export request/result record.
type Task struct {
	ID              int64
	Kind            voucher.Kind
	Status          Status
	Params          map[string]string
	Scope           orgs.Scope
	ExpectedRecords int64
	SubmittedBy     int64
	Result          *TaskResult
	ErrorStep       string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// TaskResult summarises a successful run.
type TaskResult struct {
	FileID        uuid.UUID `json:"file_id"`
	FileName      string    `json:"file_name"`
	ByteCount     int       `json:"byte_count"`
	RecordCount   int       `json:"record_count"`
	GroupCount    int       `json:"group_count"`
	SkippedGroups int       `json:"skipped_groups"`
	VoucherCount  int       `json:"voucher_count"`
	EntryCount    int       `json:"entry_count"`
	Total         string    `json:"total"`
}

var (
	// ErrTaskNotFound indicates an unknown task id.
	ErrTaskNotFound = errors.New("export: task not found")
	// ErrNotClaimable indicates the task is no longer PENDING; another
	// worker already took it or it already finished.
	ErrNotClaimable = errors.New("export: task not claimable")
)
