// Package admin contiene los controllers administrativos.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	dto "github.com/campuskey/campuskey/internal/http/dto/admin"
	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	"github.com/campuskey/campuskey/internal/http/middlewares"
	adminsvc "github.com/campuskey/campuskey/internal/http/services/admin"
	authsvc "github.com/campuskey/campuskey/internal/http/services/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
	"go.uber.org/zap"
)

// maxBodyBytes acota el body de la carga masiva.
const maxBodyBytes = 256 << 10

// AssignmentsController atiende la gestión de asignaciones docentes.
type AssignmentsController struct {
	service adminsvc.AssignmentsService
}

// NewAssignmentsController crea el controller de asignaciones.
func NewAssignmentsController(s adminsvc.AssignmentsService) *AssignmentsController {
	return &AssignmentsController{service: s}
}

// BulkCreate maneja POST /admin/assignments/bulk
// Requiere rol administrativo y una sesión step-up APPROVED en mfa_id.
func (c *AssignmentsController) BulkCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.assignments.bulk"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	claims := middlewares.GetClaims(ctx)
	if claims == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var req dto.BulkAssignmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	res, err := c.service.BulkCreate(ctx, claims, req)
	if err != nil {
		c.writeBulkError(w, err, log)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// List maneja GET /admin/assignments?faculty_id=...
// Requiere rol administrativo.
func (c *AssignmentsController) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.assignments.list"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	if middlewares.GetClaims(ctx) == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	facultyID := strings.TrimSpace(r.URL.Query().Get("faculty_id"))
	if facultyID == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("faculty_id is required"))
		return
	}

	items, err := c.service.ListByFaculty(ctx, facultyID)
	if err != nil {
		log.Error("list assignments failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"assignments": items})
}

func (c *AssignmentsController) writeBulkError(w http.ResponseWriter, err error, log *zap.Logger) {
	switch {
	case errors.Is(err, adminsvc.ErrEmptyBatch),
		errors.Is(err, adminsvc.ErrInvalidBatch):
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(err.Error()))
	case errors.Is(err, adminsvc.ErrBatchTooLarge):
		httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
	case errors.Is(err, authsvc.ErrStepUpRequired):
		httperrors.WriteError(w, httperrors.ErrChallengeDenied.WithDetail("step-up verification required"))
	case errors.Is(err, authsvc.ErrChallengeNotFound):
		httperrors.WriteError(w, httperrors.ErrChallengeNotFound)
	case errors.Is(err, authsvc.ErrChallengeExpired):
		httperrors.WriteError(w, httperrors.ErrChallengeExpired)
	case errors.Is(err, authsvc.ErrChallengeDenied):
		httperrors.WriteError(w, httperrors.ErrChallengeDenied)
	default:
		log.Error("bulk assignments failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternal)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
