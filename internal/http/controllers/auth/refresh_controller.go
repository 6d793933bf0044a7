package auth

import (
	"errors"
	"net/http"

	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	svc "github.com/campuskey/campuskey/internal/http/services/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// RefreshController rota y revoca refresh tokens.
type RefreshController struct {
	service svc.RefreshService
}

// NewRefreshController crea el controller de rotación.
func NewRefreshController(s svc.RefreshService) *RefreshController {
	return &RefreshController{service: s}
}

// Refresh maneja POST /auth/refresh
func (c *RefreshController) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.refresh"))

	if !requirePost(w, r) {
		return
	}

	var req dto.RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.Refresh(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrRefreshReused):
			httperrors.WriteError(w, httperrors.ErrRotatedTokenReuse)
		case errors.Is(err, svc.ErrRefreshExpired):
			httperrors.WriteError(w, httperrors.ErrTokenExpired)
		case errors.Is(err, svc.ErrRefreshNotFound):
			httperrors.WriteError(w, httperrors.ErrTokenInvalid)
		default:
			appErr := mapServiceError(err)
			if appErr == httperrors.ErrInternal {
				log.Error("refresh failed", logger.Err(err))
			}
			httperrors.WriteError(w, appErr)
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Logout maneja POST /auth/logout
func (c *RefreshController) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.logout"))

	if !requirePost(w, r) {
		return
	}

	var req dto.LogoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := c.service.Logout(ctx, req); err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("logout failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}
