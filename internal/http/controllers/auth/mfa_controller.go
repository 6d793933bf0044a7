package auth

import (
	"net/http"
	"strings"

	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	svc "github.com/campuskey/campuskey/internal/http/services/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// MFAController completa el login de los roles con segundo factor.
type MFAController struct {
	service svc.MFAService
}

// NewMFAController crea el controller de verificación.
func NewMFAController(s svc.MFAService) *MFAController {
	return &MFAController{service: s}
}

// Verify maneja POST /auth/mfa/verify
//
// Sin "otp" en el body el endpoint actúa como poll del push pendiente; con
// "otp" valida el passcode. Ambas variantes responden el mismo cuerpo.
func (c *MFAController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.mfa.verify"))

	if !requirePost(w, r) {
		return
	}

	var req dto.MFAVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.MFAID) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("mfa_id is required"))
		return
	}

	res, err := c.service.Verify(ctx, req)
	if err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("mfa verification failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
