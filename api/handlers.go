/*
handlers.go - HTTP API handlers for the HR absence engine

PURPOSE:
  Exposes absences, entitlements, the employee directory and the inbox via
  REST. Handles request/response JSON and delegates to the domain services.

ENDPOINTS:
  Absences:
    GET    /api/absences                     List (employees see their own)
    POST   /api/absences                     Request (JSON or multipart)
    GET    /api/absences/{id}                Get one
    POST   /api/absences/{id}/approve        Approve (reviewers)
    POST   /api/absences/{id}/reject         Reject with reason (reviewers)
    POST   /api/absences/{id}/cancel         Cancel (requester only)

  Entitlements:
    GET    /api/working-days                 Count Mon-Fri in a range
    GET    /api/me/entitlement               Own yearly snapshot
    GET    /api/employees/{id}/entitlement   Snapshot of an employee

  Directory:
    GET    /api/employees                    List (reviewers)
    POST   /api/employees                    Create or replace (admins)
    GET    /api/employees/{id}               Get one (self or reviewers)

  Inbox:
    GET    /api/notifications                Own notifications, newest first
    POST   /api/notifications/{id}/read      Mark read

  Admin:
    POST   /api/admin/probation/scan         Run the probation scan now
    GET    /api/certificates/*               Stream an uploaded certificate

TENANCY:
  Every lookup is scoped to the caller's company from the token. Records of
  other companies are reported as not found.

ERROR HANDLING:
  Errors are returned as {"error": message}:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid token
  - 403: Role or ownership check failed
  - 404: Record not found
  - 409: Wrong lifecycle state, lost a concurrent update
  - 500: Anything else (details are logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token verification
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/hr-engine/absence"
	"github.com/warp/hr-engine/employee"
	"github.com/warp/hr-engine/generic"
	"github.com/warp/hr-engine/notify"
	"github.com/warp/hr-engine/probation"
	"github.com/warp/hr-engine/storage"
)

// MaxUploadSize caps a multipart absence request.
const MaxUploadSize = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Absences      *absence.Service
	Employees     employee.Store
	Notifications notify.Store
	Files         storage.FileStore
	Scanner       *probation.Scanner
	Clock         generic.Clock
	Logger        *zap.Logger

	validate *validator.Validate
}

func NewHandler(
	absences *absence.Service,
	employees employee.Store,
	notifications notify.Store,
	files storage.FileStore,
	scanner *probation.Scanner,
	logger *zap.Logger,
) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Absences:      absences,
		Employees:     employees,
		Notifications: notifications,
		Files:         files,
		Scanner:       scanner,
		Clock:         generic.SystemClock{},
		Logger:        logger.Named("http"),
		validate:      v,
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// WORKING DAYS & ENTITLEMENT
// =============================================================================

// WorkingDays counts Mon-Fri in [start, end]. A reversed range counts 0.
func (h *Handler) WorkingDays(w http.ResponseWriter, r *http.Request) {
	start, err := generic.ParseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: expected YYYY-MM-DD")
		return
	}
	end, err := generic.ParseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: expected YYYY-MM-DD")
		return
	}

	writeJSON(w, http.StatusOK, WorkingDaysDTO{
		Start:       start.String(),
		End:         end.String(),
		WorkingDays: absence.WorkingDays(start, end),
	})
}

func (h *Handler) MyEntitlement(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	h.writeEntitlement(w, r, p.CompanyID, p.UserID)
}

func (h *Handler) EmployeeEntitlement(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	userID := chi.URLParam(r, "id")
	if userID != p.UserID && !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}
	h.writeEntitlement(w, r, p.CompanyID, userID)
}

func (h *Handler) writeEntitlement(w http.ResponseWriter, r *http.Request, companyID, userID string) {
	ent, err := h.Absences.Entitlement(r.Context(), companyID, userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementDTO(ent))
}

// =============================================================================
// ABSENCE HANDLERS
// =============================================================================

// ListAbsences returns absences of the caller's company ordered by start
// date. Employees only ever see their own.
func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	q := r.URL.Query()

	f := absence.Filter{CompanyID: p.CompanyID, UserID: q.Get("userId")}
	if s := q.Get("status"); s != "" {
		f.Status = absence.Status(s)
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("status: unknown status %q", s))
			return
		}
	}
	if !p.IsReviewer() {
		f.UserID = p.UserID
	}

	list, err := h.Absences.List(r.Context(), f)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	dtos := make([]AbsenceDTO, len(list))
	for i, a := range list {
		dtos[i] = toAbsenceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAbsence accepts a JSON body or a multipart form whose optional
// "certificate" part is stored next to the record.
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	var (
		req  CreateAbsenceRequest
		file *absence.Attachment
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		req = CreateAbsenceRequest{
			Type:               r.FormValue("type"),
			StartDate:          r.FormValue("startDate"),
			EndDate:            r.FormValue("endDate"),
			Note:               r.FormValue("note"),
			DestinationCountry: r.FormValue("destinationCountry"),
		}

		f, header, err := r.FormFile("certificate")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			writeError(w, http.StatusBadRequest, "invalid certificate upload")
			return
		default:
			defer f.Close()
			file = &absence.Attachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
				Content:     f,
			}
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.validRequest(w, req) {
		return
	}

	id, err := h.Absences.RequestAbsence(r.Context(), p.CompanyID, p.UserID, req.toDomain(), file)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreatedDTO{ID: id})
}

func (h *Handler) GetAbsence(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	a, err := h.Absences.Get(r.Context(), p.CompanyID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if a.UserID != p.UserID && !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(*a))
}

func (h *Handler) ApproveAbsence(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	if !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}

	a, err := h.Absences.Approve(r.Context(), p.CompanyID, chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(*a))
}

func (h *Handler) RejectAbsence(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	if !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}

	var req RejectAbsenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.validRequest(w, req) {
		return
	}

	a, err := h.Absences.Reject(r.Context(), p.CompanyID, chi.URLParam(r, "id"), p.UserID, req.Reason)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(*a))
}

func (h *Handler) CancelAbsence(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	a, err := h.Absences.Cancel(r.Context(), p.CompanyID, chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(*a))
}

// GetCertificate streams a stored file. Keys are
// absences/{company}/{user}/{absence}/{file}; only the owner and reviewers
// of the same company may read one.
func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	key, err := storage.CleanKey(chi.URLParam(r, "*"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	parts := strings.SplitN(key, "/", 4)
	if len(parts) != 4 || parts[0] != "absences" || parts[1] != p.CompanyID {
		h.handleError(w, r, fmt.Errorf("certificate %s: %w", key, generic.ErrNotFound))
		return
	}
	if parts[2] != p.UserID && !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}

	rc, err := h.Files.Get(r.Context(), key)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": path.Base(key)}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.Logger.Warn("certificate stream interrupted", zap.String("key", key), zap.Error(err))
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	if !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}

	employees, err := h.Employees.ListEmployees(r.Context(), p.CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	id := chi.URLParam(r, "id")
	if id != p.UserID && !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}

	e, err := h.Employees.GetEmployee(r.Context(), p.CompanyID, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*e))
}

// CreateEmployee creates or replaces a directory record in the caller's
// company.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	if !p.IsAdmin() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}

	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !h.validRequest(w, req) {
		return
	}

	now := generic.Millis(h.Clock.Now())
	e := employee.Employee{
		ID:                  req.ID,
		CompanyID:           p.CompanyID,
		Name:                req.Name,
		Email:               req.Email,
		Role:                employee.Role(req.Role),
		Status:              employee.Status(req.Status),
		VacationEntitlement: req.VacationEntitlement,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if e.Status == "" {
		e.Status = employee.StatusActive
	}
	if req.StartDate != "" {
		d := generic.MustParseDate(req.StartDate)
		e.StartDate = &d
	}
	if req.ProbationEndDate != "" {
		d := generic.MustParseDate(req.ProbationEndDate)
		e.ProbationEndDate = &d
	}
	if e.StartDate != nil && e.ProbationEndDate != nil && e.ProbationEndDate.Before(*e.StartDate) {
		writeError(w, http.StatusBadRequest, "probationEndDate: before startDate")
		return
	}

	if err := h.Employees.SaveEmployee(r.Context(), e); err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}

// =============================================================================
// NOTIFICATIONS & ADMIN
// =============================================================================

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	list, err := h.Notifications.ListNotifications(r.Context(), p.CompanyID, p.UserID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	dtos := make([]NotificationDTO, len(list))
	for i, n := range list {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)

	if err := h.Notifications.MarkNotificationRead(r.Context(), p.CompanyID, p.UserID, chi.URLParam(r, "id")); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ScanProbation runs the probation scan for the caller's company.
func (h *Handler) ScanProbation(w http.ResponseWriter, r *http.Request) {
	p := mustPrincipal(r)
	if !p.IsReviewer() {
		h.handleError(w, r, generic.ErrForbidden)
		return
	}

	res, err := h.Scanner.Scan(r.Context(), p.CompanyID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScanResultDTO{
		CompanyID: p.CompanyID,
		Scanned:   res.Scanned,
		Sent:      res.Sent,
		Failed:    res.Failed,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func mustPrincipal(r *http.Request) Principal {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		// Routes using this sit behind Authenticate.
		panic("api: no principal in request context")
	}
	return p
}

// validRequest runs the struct validator and writes a 400 on failure.
func (h *Handler) validRequest(w http.ResponseWriter, req any) bool {
	err := h.validate.Struct(req)
	if err == nil {
		return true
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: failed on %s", fe.Field(), fe.Tag()))
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}

// handleError maps domain errors onto status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, generic.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, generic.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, generic.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, generic.ErrState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, generic.ErrConcurrentModification), errors.Is(err, generic.ErrDuplicateKey):
		writeError(w, http.StatusConflict, "conflict, please retry")
	default:
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
