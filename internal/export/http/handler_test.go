package exporthttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/seaway-erp/seaway-erp/internal/export"
	"github.com/seaway-erp/seaway-erp/internal/files"
	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/shared"
	"github.com/seaway-erp/seaway-erp/internal/sources"
	"github.com/seaway-erp/seaway-erp/internal/subjects"
	"github.com/seaway-erp/seaway-erp/internal/voucher"
)

type fakeTasks struct {
	tasks  map[int64]export.Task
	nextID int64
}

func (f *fakeTasks) Insert(_ context.Context, kind voucher.Kind, params map[string]string, scope orgs.Scope, expected, submittedBy int64) (export.Task, error) {
	f.nextID++
	task := export.Task{ID: f.nextID, Kind: kind, Status: export.StatusPending, Params: params, Scope: scope, ExpectedRecords: expected, SubmittedBy: submittedBy, CreatedAt: time.Now()}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeTasks) Get(_ context.Context, id int64) (export.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return export.Task{}, export.ErrTaskNotFound
	}
	return task, nil
}

func (f *fakeTasks) List(_ context.Context, filter export.ListFilter) ([]export.Task, error) {
	var out []export.Task
	for _, task := range f.tasks {
		if filter.SubmittedBy != 0 && task.SubmittedBy != filter.SubmittedBy {
			continue
		}
		out = append(out, task)
	}
	return out, nil
}

func (f *fakeTasks) ClaimRunning(context.Context, int64, time.Time) error { return nil }
func (f *fakeTasks) MarkSucceeded(context.Context, int64, export.TaskResult, time.Time) error {
	return nil
}
func (f *fakeTasks) MarkFailed(context.Context, int64, string, string, time.Time) error { return nil }

type fakeScopes struct{}

func (fakeScopes) Resolve(_ context.Context, p *shared.Principal, _ int64) (orgs.Scope, error) {
	if p == nil {
		return orgs.Scope{}, shared.ErrUnauthenticated
	}
	return orgs.NewScope([]int64{3}), nil
}

type fakeConfigs struct{ err error }

func (f fakeConfigs) Resolve(context.Context, []subjects.Code, []int64) (*subjects.ConfigSet, error) {
	return &subjects.ConfigSet{}, f.err
}

type fakeRecords struct{ count int64 }

func (f fakeRecords) Count(context.Context, sources.Query) (int64, error) { return f.count, nil }
func (f fakeRecords) DistinctOrgIDs(context.Context, sources.Query) ([]int64, error) {
	return []int64{3}, nil
}
func (f fakeRecords) ClaimForTask(context.Context, sources.Query, int64) ([]sources.Record, error) {
	return nil, nil
}
func (f fakeRecords) MarkExported(context.Context, sources.RecordType, int64, time.Time) (int64, error) {
	return 0, nil
}
func (f fakeRecords) ReleaseClaims(context.Context, sources.RecordType, int64) error { return nil }

type fakeRegistrar struct{}

func (fakeRegistrar) Register(context.Context, string, string, string, []byte) (files.StoredFile, error) {
	return files.StoredFile{}, nil
}

type fakeQueue struct{ enqueued []int64 }

func (f *fakeQueue) EnqueueLedgerExport(_ context.Context, taskID int64) error {
	f.enqueued = append(f.enqueued, taskID)
	return nil
}

func newTestRouter(t *testing.T, recordCount int64) (*chi.Mux, *fakeTasks) {
	t.Helper()
	tasks := &fakeTasks{tasks: make(map[int64]export.Task)}
	svc := export.NewService(export.ServiceConfig{
		Tasks:     tasks,
		Scopes:    fakeScopes{},
		Configs:   fakeConfigs{},
		Records:   fakeRecords{count: recordCount},
		Registrar: fakeRegistrar{},
		Queue:     &fakeQueue{},
	})
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, nil)
	router := chi.NewRouter()
	router.Route("/api", handler.MountRoutes)
	return router, tasks
}

func withPrincipal(r *http.Request, p *shared.Principal) *http.Request {
	return r.WithContext(shared.ContextWithPrincipal(r.Context(), p))
}

func TestSubmitAccepted(t *testing.T) {
	router, _ := newTestRouter(t, 5)
	body := `{"kind":"PAYABLE_FEE","accounting_date":"2025-06-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/exports", strings.NewReader(body))
	req = withPrincipal(req, &shared.Principal{ID: 42, Role: shared.RoleMerchantAdmin, MerchantID: 3})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"expected_records":5`)
	require.Contains(t, rec.Body.String(), `"status":"PENDING"`)
}

func TestSubmitWithoutPrincipal(t *testing.T) {
	router, _ := newTestRouter(t, 5)
	body := `{"kind":"PAYABLE_FEE","accounting_date":"2025-06-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/exports", strings.NewReader(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitUnknownKind(t *testing.T) {
	router, _ := newTestRouter(t, 5)
	body := `{"kind":"PETTY_CASH","accounting_date":"2025-06-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/exports", strings.NewReader(body))
	req = withPrincipal(req, &shared.Principal{ID: 42, Role: shared.RoleOrdinary})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitNoRecordsUnprocessable(t *testing.T) {
	router, _ := newTestRouter(t, 0)
	body := `{"kind":"TAX_INVOICE","accounting_date":"2025-06-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/exports", strings.NewReader(body))
	req = withPrincipal(req, &shared.Principal{ID: 42, Role: shared.RoleOrdinary})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDetailHidesForeignTask(t *testing.T) {
	router, tasks := newTestRouter(t, 5)
	task, err := tasks.Insert(context.Background(), voucher.KindPayableFee, nil, orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/exports/1", nil)
	req = withPrincipal(req, &shared.Principal{ID: 7, Role: shared.RoleOrdinary})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/exports/1", nil)
	req = withPrincipal(req, &shared.Principal{ID: task.SubmittedBy, Role: shared.RoleOrdinary})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDetailGlobalAdminSeesAll(t *testing.T) {
	router, tasks := newTestRouter(t, 5)
	_, err := tasks.Insert(context.Background(), voucher.KindPayableFee, nil, orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/exports/1", nil)
	req = withPrincipal(req, &shared.Principal{ID: 1, Role: shared.RoleGlobalAdmin})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDownloadNotReady(t *testing.T) {
	router, tasks := newTestRouter(t, 5)
	_, err := tasks.Insert(context.Background(), voucher.KindPayableFee, nil, orgs.NewScope([]int64{3}), 2, 42)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/exports/1/download", nil)
	req = withPrincipal(req, &shared.Principal{ID: 42, Role: shared.RoleOrdinary})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusConflict, rec.Code)
}
