// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	service "github.com/aflyhorse/kmstat/internal/app"

	"github.com/aflyhorse/kmstat/internal/adapters/repository"
	"github.com/aflyhorse/kmstat/internal/adapters/xlsx"
	"github.com/aflyhorse/kmstat/internal/domain/model"
	"github.com/aflyhorse/kmstat/internal/domain/reconcile"
)

// UploadsDependencies defines the interface for monthly upload operations.
type UploadsDependencies interface {
	ProcessUpload(ctx context.Context, req UploadRequest, wb xlsx.Workbook) (UploadResult, error)
	ListUploads(ctx context.Context) ([]model.MonthlyUpload, error)
	UploadExists(ctx context.Context, year, month int) (bool, error)
	DeleteUpload(ctx context.Context, year, month int) error
	UploadSummary(ctx context.Context, year, month int) (reconcile.Summary, error)
}

// UploadsHandler handles monthly upload requests.
type UploadsHandler struct {
	deps           UploadsDependencies
	maxUploadBytes int64
}

// NewUploadsHandler creates a new uploads handler.
func NewUploadsHandler(deps UploadsDependencies, maxUploadBytes int64) *UploadsHandler {
	return &UploadsHandler{deps: deps, maxUploadBytes: maxUploadBytes}
}

type uploadConflictResponse struct {
	Code  string `json:"code"`
	Year  int    `json:"year"`
	Month int    `json:"month"`
}

// HandleUploads routes /api/uploads: GET lists uploads, POST (guarded)
// accepts a workbook.
func (h *UploadsHandler) HandleUploads(guard func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	post := guard(h.handlePostUpload)
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.handleListUploads(w, r)
		case http.MethodPost:
			post(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

func (h *UploadsHandler) handleListUploads(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_uploads"
	uploads, err := h.deps.ListUploads(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	if uploads == nil {
		uploads = []model.MonthlyUpload{}
	}
	writeJSON(w, http.StatusOK, uploads)
}

// handlePostUpload handles POST /api/uploads multipart requests with fields
// file, year, month, tax_rate, ore_convert_rate and overwrite.
func (h *UploadsHandler) handlePostUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_upload"

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", Wrap(op, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	req := UploadRequest{UploadedBy: requestUsername(r)}
	var err error
	if req.Year, err = strconv.Atoi(r.FormValue("year")); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if req.Month, err = strconv.Atoi(r.FormValue("month")); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if s := r.FormValue("tax_rate"); s != "" {
		if req.TaxRate, err = strconv.ParseFloat(s, 64); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if s := r.FormValue("ore_convert_rate"); s != "" {
		if req.OreConvertRate, err = strconv.ParseFloat(s, 64); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	req.Overwrite, _ = strconv.ParseBool(r.FormValue("overwrite"))

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	defer file.Close()

	wb, err := xlsx.Read(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_workbook", Wrap(op, err))
		return
	}

	res, err := h.deps.ProcessUpload(r.Context(), req, wb)
	if err != nil {
		var conflict *service.UploadExistsError
		switch {
		case errors.As(err, &conflict):
			writeJSON(w, http.StatusConflict, uploadConflictResponse{
				Code: "exists", Year: conflict.Year, Month: conflict.Month,
			})
		case errors.Is(err, service.ErrBadPeriod):
			writeError(w, http.StatusBadRequest, "bad_period", Wrap(op, err))
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		}
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleUploadByMonth routes /api/uploads/{year}/{month}[/exists]:
// GET serves the reconciliation summary or the existence probe, DELETE
// (guarded) removes the upload.
func (h *UploadsHandler) HandleUploadByMonth(guard func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	del := guard(h.handleDeleteUpload)
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, probe, ok := parseUploadPath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}

		switch {
		case r.Method == http.MethodGet && probe:
			h.handleUploadExists(w, r, year, month)
		case r.Method == http.MethodGet:
			h.handleUploadSummary(w, r, year, month)
		case r.Method == http.MethodDelete && !probe:
			r.SetPathValue("year", strconv.Itoa(year))
			r.SetPathValue("month", strconv.Itoa(month))
			del(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

// parseUploadPath splits /api/uploads/{year}/{month}[/exists].
func parseUploadPath(path string) (year, month int, probe, ok bool) {
	rest := strings.TrimPrefix(path, "/api/uploads/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, false, false
	}
	if len(parts) == 3 {
		if parts[2] != "exists" {
			return 0, 0, false, false
		}
		probe = true
	}
	var err error
	if year, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, false, false
	}
	if month, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, false, false
	}
	return year, month, probe, true
}

func (h *UploadsHandler) handleUploadExists(w http.ResponseWriter, r *http.Request, year, month int) {
	const op = "api.upload_exists"
	exists, err := h.deps.UploadExists(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

func (h *UploadsHandler) handleUploadSummary(w http.ResponseWriter, r *http.Request, year, month int) {
	const op = "api.upload_summary"
	sum, err := h.deps.UploadSummary(r.Context(), year, month)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *UploadsHandler) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_upload"
	year, _ := strconv.Atoi(r.PathValue("year"))
	month, _ := strconv.Atoi(r.PathValue("month"))

	if err := h.deps.DeleteUpload(r.Context(), year, month); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
