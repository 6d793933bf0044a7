// Package auth contiene los controllers de los endpoints de autenticación.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	httperrors "github.com/campuskey/campuskey/internal/http/errors"
	svc "github.com/campuskey/campuskey/internal/http/services/auth"
)

// maxBodyBytes limita el cuerpo de los requests de autenticación.
const maxBodyBytes = 16 << 10

// Controllers agrupa los controllers del dominio auth.
type Controllers struct {
	Login    *LoginController
	MFA      *MFAController
	Refresh  *RefreshController
	StepUp   *StepUpController
	Reset    *ResetController
	Password *PasswordController
}

// NewControllers crea todos los controllers auth a partir de los services.
func NewControllers(s svc.Services) *Controllers {
	return &Controllers{
		Login:    NewLoginController(s.Login),
		MFA:      NewMFAController(s.MFA),
		Refresh:  NewRefreshController(s.Refresh),
		StepUp:   NewStepUpController(s.StepUp),
		Reset:    NewResetController(s.Reset),
		Password: NewPasswordController(s.Password),
	}
}

// requirePost corta cualquier método que no sea POST y acota el body.
func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return true
}

// decodeJSON parsea el body JSON y escribe el error HTTP si falla.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httperrors.WriteError(w, httperrors.ErrBodyTooLarge)
			return false
		}
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return false
	}
	return true
}

// writeJSON escribe la respuesta exitosa. Los endpoints de credenciales no
// deben cachearse nunca.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mapServiceError traduce los errores sentinela compartidos de los services
// auth al error HTTP correspondiente. Los controllers agregan primero sus
// ramas específicas y delegan acá el resto.
func mapServiceError(err error) *httperrors.AppError {
	switch {
	case errors.Is(err, svc.ErrMissingFields):
		return httperrors.ErrMissingFields
	case errors.Is(err, svc.ErrInvalidCredentials):
		return httperrors.ErrInvalidCredentials
	case errors.Is(err, svc.ErrChallengeNotFound):
		return httperrors.ErrChallengeNotFound
	case errors.Is(err, svc.ErrChallengeExpired):
		return httperrors.ErrChallengeExpired
	case errors.Is(err, svc.ErrChallengeDenied):
		return httperrors.ErrChallengeDenied
	case errors.Is(err, svc.ErrPasscodeInvalid):
		return httperrors.ErrInvalidPasscode
	case errors.Is(err, svc.ErrTooManyAttempts):
		return httperrors.ErrTooManyAttempts
	case errors.Is(err, svc.ErrProviderUnavailable):
		return httperrors.ErrProviderDispatchFailed
	case errors.Is(err, svc.ErrPasswordMismatch):
		return httperrors.ErrPasswordMismatch
	case errors.Is(err, svc.ErrWeakPassword):
		return httperrors.ErrWeakPassword
	default:
		return httperrors.ErrInternal
	}
}
