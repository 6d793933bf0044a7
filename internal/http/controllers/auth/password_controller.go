package auth

import (
	"net/http"

	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	"github.com/campuskey/campuskey/internal/http/middlewares"
	svc "github.com/campuskey/campuskey/internal/http/services/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// PasswordController atiende el cambio de contraseña autenticado.
type PasswordController struct {
	service svc.PasswordService
}

// NewPasswordController crea el controller de cambio de contraseña.
func NewPasswordController(s svc.PasswordService) *PasswordController {
	return &PasswordController{service: s}
}

// Change maneja POST /auth/change-password
// Requiere usuario autenticado.
func (c *PasswordController) Change(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.password.change"))

	if !requirePost(w, r) {
		return
	}

	claims := middlewares.GetClaims(ctx)
	if claims == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var req dto.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.Change(ctx, claims.UserID, req)
	if err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("password change failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
