package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/seaway-erp/seaway-erp/internal/files"
	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/shared"
	"github.com/seaway-erp/seaway-erp/internal/sources"
	"github.com/seaway-erp/seaway-erp/internal/subjects"
	"github.com/seaway-erp/seaway-erp/internal/voucher"
)

type stubTasks struct {
	tasks     map[int64]Task
	nextID    int64
	inserted  []Task
	claimed   []int64
	succeeded map[int64]TaskResult
	failed    map[int64][2]string
}

func newStubTasks() *stubTasks {
	return &stubTasks{
		tasks:     make(map[int64]Task),
		nextID:    100,
		succeeded: make(map[int64]TaskResult),
		failed:    make(map[int64][2]string),
	}
}

func (s *stubTasks) Insert(_ context.Context, kind voucher.Kind, params map[string]string, scope orgs.Scope, expected, submittedBy int64) (Task, error) {
	s.nextID++
	task := Task{ID: s.nextID, Kind: kind, Status: StatusPending, Params: params, Scope: scope, ExpectedRecords: expected, SubmittedBy: submittedBy}
	s.tasks[task.ID] = task
	s.inserted = append(s.inserted, task)
	return task, nil
}

func (s *stubTasks) Get(_ context.Context, id int64) (Task, error) {
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return task, nil
}

func (s *stubTasks) List(_ context.Context, _ ListFilter) ([]Task, error) { return nil, nil }

func (s *stubTasks) ClaimRunning(_ context.Context, id int64, _ time.Time) error {
	task, ok := s.tasks[id]
	if !ok || task.Status != StatusPending {
		return ErrNotClaimable
	}
	task.Status = StatusRunning
	s.tasks[id] = task
	s.claimed = append(s.claimed, id)
	return nil
}

func (s *stubTasks) MarkSucceeded(_ context.Context, id int64, result TaskResult, _ time.Time) error {
	task := s.tasks[id]
	task.Status = StatusSucceeded
	task.Result = &result
	s.tasks[id] = task
	s.succeeded[id] = result
	return nil
}

func (s *stubTasks) MarkFailed(_ context.Context, id int64, step, message string, _ time.Time) error {
	task := s.tasks[id]
	task.Status = StatusFailed
	task.ErrorStep = step
	task.ErrorMessage = message
	s.tasks[id] = task
	s.failed[id] = [2]string{step, message}
	return nil
}

type stubScopes struct {
	scope orgs.Scope
	err   error
}

func (s stubScopes) Resolve(_ context.Context, _ *shared.Principal, _ int64) (orgs.Scope, error) {
	return s.scope, s.err
}

type stubConfigs struct {
	set *subjects.ConfigSet
	err error
}

func (s stubConfigs) Resolve(_ context.Context, _ []subjects.Code, _ []int64) (*subjects.ConfigSet, error) {
	return s.set, s.err
}

type stubRecords struct {
	count    int64
	orgIDs   []int64
	records  []sources.Record
	claimed  []int64
	marked   []int64
	released []int64
	countErr error
}

func (s *stubRecords) Count(_ context.Context, _ sources.Query) (int64, error) {
	return s.count, s.countErr
}

func (s *stubRecords) DistinctOrgIDs(_ context.Context, _ sources.Query) ([]int64, error) {
	return s.orgIDs, nil
}

func (s *stubRecords) ClaimForTask(_ context.Context, _ sources.Query, taskID int64) ([]sources.Record, error) {
	s.claimed = append(s.claimed, taskID)
	return s.records, nil
}

func (s *stubRecords) MarkExported(_ context.Context, _ sources.RecordType, taskID int64, _ time.Time) (int64, error) {
	s.marked = append(s.marked, taskID)
	return int64(len(s.records)), nil
}

func (s *stubRecords) ReleaseClaims(_ context.Context, _ sources.RecordType, taskID int64) error {
	s.released = append(s.released, taskID)
	return nil
}

type stubRegistrar struct {
	stored   []files.StoredFile
	payloads [][]byte
	err      error
}

func (s *stubRegistrar) Register(_ context.Context, displayName, remark, contentType string, payload []byte) (files.StoredFile, error) {
	if s.err != nil {
		return files.StoredFile{}, s.err
	}
	file := files.StoredFile{
		ID:          uuid.New(),
		DisplayName: displayName,
		Remark:      remark,
		ContentType: contentType,
		Size:        int64(len(payload)),
	}
	s.stored = append(s.stored, file)
	s.payloads = append(s.payloads, payload)
	return file, nil
}

type stubQueue struct {
	enqueued []int64
	err      error
}

func (s *stubQueue) EnqueueLedgerExport(_ context.Context, taskID int64) error {
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, taskID)
	return nil
}

type rowsByOrg struct {
	rows map[int64][]subjects.SubjectConfig
}

func (s rowsByOrg) ListForOrg(_ context.Context, orgID int64) ([]subjects.SubjectConfig, error) {
	return s.rows[orgID], nil
}

func payableSet(t *testing.T, orgIDs []int64) *subjects.ConfigSet {
	t.Helper()
	rows := map[int64][]subjects.SubjectConfig{
		0: {
			{Code: subjects.CodePayableTotal, AccountNo: "2201"},
			{Code: subjects.CodePayableDomestic, AccountNo: "2202"},
			{Code: subjects.CodePayableForeign, AccountNo: "2203"},
			{Code: subjects.CodePayableAdvance, AccountNo: "1123"},
		},
	}
	resolver := subjects.NewResolver(rowsByOrg{rows: rows}, nil)
	set, err := resolver.Resolve(context.Background(), voucher.KindPayableFee.RequiredCodes(), orgIDs)
	require.NoError(t, err)
	return set
}

func payableRecords() []sources.Record {
	date := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	one := decimal.NewFromInt(1)
	return []sources.Record{
		{ID: 1, Type: sources.TypeFee, Direction: sources.DirectionPayable, OrgID: 3, JobNo: "JOB-1",
			Counterparty: "CP01", CounterpartyName: "Acme Lines", Amount: decimal.RequireFromString("100"),
			Currency: "RMB", ExchangeRate: one, Date: date},
		{ID: 2, Type: sources.TypeFee, Direction: sources.DirectionPayable, OrgID: 3, JobNo: "JOB-2",
			Counterparty: "CP01", CounterpartyName: "Acme Lines", Amount: decimal.RequireFromString("200"),
			Currency: "RMB", ExchangeRate: one, Date: date},
	}
}

type fixture struct {
	service   *Service
	tasks     *stubTasks
	records   *stubRecords
	registrar *stubRegistrar
	queue     *stubQueue
}

func newFixture(t *testing.T, records *stubRecords, configs ConfigResolver) *fixture {
	t.Helper()
	tasks := newStubTasks()
	registrar := &stubRegistrar{}
	queue := &stubQueue{}
	svc := NewService(ServiceConfig{
		Tasks:     tasks,
		Scopes:    stubScopes{scope: orgs.NewScope([]int64{3})},
		Configs:   configs,
		Records:   records,
		Registrar: registrar,
		Queue:     queue,
	})
	svc.WithNow(func() time.Time { return time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC) })
	return &fixture{service: svc, tasks: tasks, records: records, registrar: registrar, queue: queue}
}

func submitParams() Params {
	return Params{
		Kind:           voucher.KindPayableFee,
		AccountingDate: time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Principal:      shared.Principal{ID: 42, Role: shared.RoleMerchantAdmin, MerchantID: 3},
	}
}

func TestSubmitInsertsAndEnqueues(t *testing.T) {
	records := &stubRecords{count: 2, orgIDs: []int64{3}}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})

	task, err := f.service.Submit(context.Background(), submitParams())
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)
	require.Equal(t, int64(2), task.ExpectedRecords)
	require.Equal(t, int64(42), task.SubmittedBy)
	require.Equal(t, []int64{task.ID}, f.queue.enqueued)
	require.Equal(t, "PAYABLE_FEE", task.Params["kind"])
}

func TestSubmitNoRecordsCreatesNoTask(t *testing.T) {
	records := &stubRecords{count: 0}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, nil)})

	_, err := f.service.Submit(context.Background(), submitParams())
	require.ErrorIs(t, err, voucher.ErrNoRecords)
	require.Empty(t, f.tasks.inserted)
	require.Empty(t, f.queue.enqueued)
}

func TestSubmitMissingConfigCreatesNoTask(t *testing.T) {
	missing := &subjects.MissingCodesError{Missing: map[int64][]subjects.Code{3: {subjects.CodePayableTotal}}}
	records := &stubRecords{count: 2, orgIDs: []int64{3}}
	f := newFixture(t, records, stubConfigs{err: missing})

	_, err := f.service.Submit(context.Background(), submitParams())
	var got *subjects.MissingCodesError
	require.ErrorAs(t, err, &got)
	require.Empty(t, f.tasks.inserted)
}

func TestSubmitEnqueueFailureMarksTaskFailed(t *testing.T) {
	records := &stubRecords{count: 2, orgIDs: []int64{3}}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})
	f.queue.err = errors.New("redis down")

	_, err := f.service.Submit(context.Background(), submitParams())
	require.Error(t, err)
	require.Len(t, f.tasks.inserted, 1)
	id := f.tasks.inserted[0].ID
	require.Equal(t, StepSubmit, f.tasks.failed[id][0])
}

func TestExecuteProducesFileAndMarksRecords(t *testing.T) {
	records := &stubRecords{records: payableRecords()}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})

	task, err := f.tasks.Insert(context.Background(), voucher.KindPayableFee, submitParams().ToMap(), orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)

	require.NoError(t, f.service.Execute(context.Background(), task.ID))

	result, ok := f.tasks.succeeded[task.ID]
	require.True(t, ok)
	require.Equal(t, 2, result.RecordCount)
	require.Equal(t, 1, result.GroupCount)
	require.Equal(t, 1, result.VoucherCount)
	require.Equal(t, 2, result.EntryCount)
	require.Equal(t, "300.00", result.Total)
	require.Equal(t, "PAYABLE_FEE_Export_20250630120000.dbf", result.FileName)
	require.Positive(t, result.ByteCount)
	require.Equal(t, []int64{task.ID}, records.marked)
	require.Empty(t, records.released)
	require.Len(t, f.registrar.payloads, 1)
	require.Equal(t, byte(0x03), f.registrar.payloads[0][0])
}

func TestExecuteTerminalTaskIsNoOp(t *testing.T) {
	records := &stubRecords{records: payableRecords()}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})
	task, err := f.tasks.Insert(context.Background(), voucher.KindPayableFee, submitParams().ToMap(), orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)
	require.NoError(t, f.tasks.MarkSucceeded(context.Background(), task.ID, TaskResult{}, time.Now()))

	require.NoError(t, f.service.Execute(context.Background(), task.ID))
	require.Empty(t, records.claimed)
}

func TestExecuteAlreadyClaimedIsNoOp(t *testing.T) {
	records := &stubRecords{records: payableRecords()}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})
	task, err := f.tasks.Insert(context.Background(), voucher.KindPayableFee, submitParams().ToMap(), orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)
	require.NoError(t, f.tasks.ClaimRunning(context.Background(), task.ID, time.Now()))

	require.NoError(t, f.service.Execute(context.Background(), task.ID))
	require.Empty(t, records.claimed)
}

func TestExecuteEmptyClaimFailsInQueryStep(t *testing.T) {
	records := &stubRecords{}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})
	task, err := f.tasks.Insert(context.Background(), voucher.KindPayableFee, submitParams().ToMap(), orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)

	err = f.service.Execute(context.Background(), task.ID)
	require.ErrorIs(t, err, voucher.ErrNoRecords)
	require.Equal(t, StepQuery, f.tasks.failed[task.ID][0])
}

func TestExecuteRegisterFailureReleasesClaims(t *testing.T) {
	records := &stubRecords{records: payableRecords()}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})
	f.registrar.err = errors.New("minio unreachable")
	task, err := f.tasks.Insert(context.Background(), voucher.KindPayableFee, submitParams().ToMap(), orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)

	err = f.service.Execute(context.Background(), task.ID)
	require.Error(t, err)
	require.Equal(t, StepRegister, f.tasks.failed[task.ID][0])
	require.Equal(t, []int64{task.ID}, records.released)
	require.Empty(t, records.marked)
}

func TestExecuteEmptyScopeSnapshotFails(t *testing.T) {
	records := &stubRecords{records: payableRecords()}
	f := newFixture(t, records, stubConfigs{set: payableSet(t, []int64{3})})
	task, err := f.tasks.Insert(context.Background(), voucher.KindPayableFee, submitParams().ToMap(), orgs.NewScope(nil), 2, 42)
	require.NoError(t, err)

	err = f.service.Execute(context.Background(), task.ID)
	require.Error(t, err)
	require.Equal(t, StepScope, f.tasks.failed[task.ID][0])
	require.Empty(t, records.claimed)
}
