package auth

import (
	"errors"
	"net/http"

	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	svc "github.com/campuskey/campuskey/internal/http/services/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// ResetController atiende los tres pasos del restablecimiento de contraseña.
type ResetController struct {
	service svc.ResetService
}

// NewResetController crea el controller de restablecimiento.
func NewResetController(s svc.ResetService) *ResetController {
	return &ResetController{service: s}
}

// Request maneja POST /auth/forgot-password
func (c *ResetController) Request(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.reset.request"))

	if !requirePost(w, r) {
		return
	}

	var req dto.ForgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.Request(ctx, req)
	if err != nil {
		if errors.Is(err, svc.ErrTooManyResends) {
			httperrors.WriteError(w, httperrors.ErrTooManyAttempts)
			return
		}
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("reset request failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Verify maneja POST /auth/forgot-password/verify
func (c *ResetController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.reset.verify"))

	if !requirePost(w, r) {
		return
	}

	var req dto.ForgotVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.Verify(ctx, req)
	if err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("reset verify failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Reset maneja POST /auth/forgot-password/reset
func (c *ResetController) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.reset.reset"))

	if !requirePost(w, r) {
		return
	}

	var req dto.ForgotResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.Reset(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrResetNotVerified):
			httperrors.WriteError(w, httperrors.ErrResetSessionNotVerified)
		case errors.Is(err, svc.ErrResetMismatch):
			httperrors.WriteError(w, httperrors.ErrResetSessionMismatch)
		default:
			appErr := mapServiceError(err)
			if appErr == httperrors.ErrInternal {
				log.Error("reset failed", logger.Err(err))
			}
			httperrors.WriteError(w, appErr)
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}
