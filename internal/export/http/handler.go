// Package exporthttp exposes the JSON API for submitting and tracking
// ledger export tasks.
package exporthttp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/seaway-erp/seaway-erp/internal/export"
	"github.com/seaway-erp/seaway-erp/internal/files"
	"github.com/seaway-erp/seaway-erp/internal/platform/httpx"
	"github.com/seaway-erp/seaway-erp/internal/shared"
	"github.com/seaway-erp/seaway-erp/internal/sources"
	"github.com/seaway-erp/seaway-erp/internal/subjects"
	"github.com/seaway-erp/seaway-erp/internal/voucher"
)

// Handler wires HTTP endpoints for export tasks.
type Handler struct {
	logger    *slog.Logger
	service   *export.Service
	registrar *files.Registrar
	validate  *validator.Validate
}

// NewHandler constructs a Handler value.
func NewHandler(logger *slog.Logger, service *export.Service, registrar *files.Registrar) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		registrar: registrar,
		validate:  validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/exports", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/", h.list)
		r.Get("/{id}", h.detail)
		r.Get("/{id}/download", h.download)
	})
}

type submitRequest struct {
	Kind           string `json:"kind" validate:"required"`
	AccountingDate string `json:"accounting_date" validate:"required,datetime=2006-01-02"`
	OrgID          int64  `json:"org_id" validate:"omitempty,gt=0"`
	Counterparty   string `json:"counterparty"`
	JobNo          string `json:"job_no"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
	DateFrom       string `json:"date_from" validate:"omitempty,datetime=2006-01-02"`
	DateTo         string `json:"date_to" validate:"omitempty,datetime=2006-01-02"`
}

type taskResponse struct {
	ID              int64              `json:"task_id"`
	Kind            string             `json:"kind"`
	Status          string             `json:"status"`
	ExpectedRecords int64              `json:"expected_records"`
	Result          *export.TaskResult `json:"result,omitempty"`
	ErrorStep       string             `json:"error_step,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
}

func toResponse(t export.Task) taskResponse {
	return taskResponse{
		ID:              t.ID,
		Kind:            string(t.Kind),
		Status:          string(t.Status),
		ExpectedRecords: t.ExpectedRecords,
		Result:          t.Result,
		ErrorStep:       t.ErrorStep,
		ErrorMessage:    t.ErrorMessage,
		CreatedAt:       t.CreatedAt,
		FinishedAt:      t.FinishedAt,
	}
}

// submit accepts an export request and returns 202 with the task reference.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	params, err := h.toParams(req, principal)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	task, err := h.service.Submit(r.Context(), params)
	if err != nil {
		h.submitError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, toResponse(task))
}

func (h *Handler) toParams(req submitRequest, principal *shared.Principal) (export.Params, error) {
	kind, err := voucher.ParseKind(req.Kind)
	if err != nil {
		return export.Params{}, err
	}
	date, err := time.Parse("2006-01-02", req.AccountingDate)
	if err != nil {
		return export.Params{}, fmt.Errorf("accounting_date: %w", err)
	}
	filter := sources.Filter{
		Counterparty: strings.TrimSpace(req.Counterparty),
		JobNo:        strings.TrimSpace(req.JobNo),
		Currency:     strings.ToUpper(strings.TrimSpace(req.Currency)),
	}
	if req.DateFrom != "" {
		from, err := time.Parse("2006-01-02", req.DateFrom)
		if err != nil {
			return export.Params{}, fmt.Errorf("date_from: %w", err)
		}
		filter.DateFrom = &from
	}
	if req.DateTo != "" {
		to, err := time.Parse("2006-01-02", req.DateTo)
		if err != nil {
			return export.Params{}, fmt.Errorf("date_to: %w", err)
		}
		filter.DateTo = &to
	}
	if filter.DateFrom != nil && filter.DateTo != nil && filter.DateTo.Before(*filter.DateFrom) {
		return export.Params{}, errors.New("date_to before date_from")
	}
	return export.Params{
		Kind:           kind,
		AccountingDate: date,
		FilterOrgID:    req.OrgID,
		Filter:         filter,
		Principal:      *principal,
	}, nil
}

// submitError maps pre-check failures onto meaningful status codes: an
// empty selection or an incomplete account mapping is the caller's data
// problem, not a server fault.
func (h *Handler) submitError(w http.ResponseWriter, err error) {
	var missing *subjects.MissingCodesError
	switch {
	case errors.Is(err, voucher.ErrNoRecords):
		httpx.Problem(w, http.StatusUnprocessableEntity, "No Records", "no unexported records match the request")
	case errors.As(err, &missing):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Incomplete Configuration", missing.Error())
	case errors.Is(err, shared.ErrUnauthenticated):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "outside permitted organizations")
	default:
		h.logger.Error("submit export", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to submit export task")
	}
}

// list returns the caller's tasks, newest first. Global admins see all.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return
	}
	filter := export.ListFilter{Limit: parseInt(r.URL.Query().Get("limit"))}
	filter.Offset = parseInt(r.URL.Query().Get("offset"))
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		filter.Status = export.NormaliseStatus(status)
	}
	if principal.Role != shared.RoleGlobalAdmin {
		filter.SubmittedBy = principal.ID
	}
	tasks, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list export tasks", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to list export tasks")
		return
	}
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toResponse(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tasks": out})
}

// detail returns one task, restricted to its submitter for non-admins.
func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(task))
}

// download streams the produced artifact of a succeeded task.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	task, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if task.Status != export.StatusSucceeded || task.Result == nil {
		httpx.Problem(w, http.StatusConflict, "Not Ready", "task has not produced a file")
		return
	}
	reader, stored, err := h.registrar.Open(r.Context(), task.Result.FileID)
	if err != nil {
		if errors.Is(err, files.ErrFileNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "file not found")
			return
		}
		h.logger.Error("open export file", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to open export file")
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", stored.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+stored.DisplayName+`"`)
	if stored.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stored.Size, 10))
	}
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Warn("stream export file", slog.Any("error", err))
	}
}

func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request) (export.Task, bool) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing principal")
		return export.Task{}, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid task id")
		return export.Task{}, false
	}
	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, export.ErrTaskNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "task not found")
			return export.Task{}, false
		}
		h.logger.Error("get export task", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "failed to load export task")
		return export.Task{}, false
	}
	if principal.Role != shared.RoleGlobalAdmin && task.SubmittedBy != principal.ID {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "task not found")
		return export.Task{}, false
	}
	return task, true
}

func parseInt(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
