package auth

import (
	"errors"
	"net/http"
	"strings"

	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	"github.com/campuskey/campuskey/internal/http/middlewares"
	svc "github.com/campuskey/campuskey/internal/http/services/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// StepUpController maneja la verificación reforzada por acción.
type StepUpController struct {
	service svc.StepUpService
}

// NewStepUpController crea el controller step-up.
func NewStepUpController(s svc.StepUpService) *StepUpController {
	return &StepUpController{service: s}
}

// Initiate maneja POST /auth/action-mfa/initiate
// Requiere usuario autenticado.
func (c *StepUpController) Initiate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.stepup.initiate"))

	if !requirePost(w, r) {
		return
	}

	claims := middlewares.GetClaims(ctx)
	if claims == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var req dto.ActionMFAInitiateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("action is required"))
		return
	}

	res, err := c.service.Initiate(ctx, claims, req)
	if err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("step-up initiate failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Check maneja GET /auth/action-mfa/check?mfa_id=...
// Requiere usuario autenticado.
func (c *StepUpController) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.stepup.check"))

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return
	}

	claims := middlewares.GetClaims(ctx)
	if claims == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("mfa_id"))
	if id == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("mfa_id is required"))
		return
	}

	res, err := c.service.Check(ctx, claims, id)
	if err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("step-up check failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Verify maneja POST /auth/action-mfa/verify
// Requiere usuario autenticado. Valida un passcode sobre la sesión de acción.
func (c *StepUpController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.stepup.verify"))

	if !requirePost(w, r) {
		return
	}

	claims := middlewares.GetClaims(ctx)
	if claims == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var req dto.ActionMFAVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.VerifyPasscode(ctx, claims, req)
	if err != nil {
		if errors.Is(err, svc.ErrStepUpRequired) {
			httperrors.WriteError(w, httperrors.ErrChallengeDenied)
			return
		}
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("step-up verify failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
