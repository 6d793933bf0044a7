package auth

import (
	"net/http"

	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	svc "github.com/campuskey/campuskey/internal/http/services/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// LoginController atiende el login por credenciales.
type LoginController struct {
	service svc.LoginService
}

// NewLoginController crea el controller de login.
func NewLoginController(s svc.LoginService) *LoginController {
	return &LoginController{service: s}
}

// Login maneja POST /auth/login
func (c *LoginController) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.login"))

	if !requirePost(w, r) {
		return
	}

	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.Login(ctx, req)
	if err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("login failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// OAuthLogin maneja POST /auth/oauth-login
func (c *LoginController) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.oauth_login"))

	if !requirePost(w, r) {
		return
	}

	var req dto.OAuthLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := c.service.LoginOAuth(ctx, req)
	if err != nil {
		appErr := mapServiceError(err)
		if appErr == httperrors.ErrInternal {
			log.Error("oauth login failed", logger.Err(err))
		}
		httperrors.WriteError(w, appErr)
		return
	}

	writeJSON(w, http.StatusOK, res)
}
