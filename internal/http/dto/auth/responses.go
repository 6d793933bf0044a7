package auth

import "time"

// UserPayload es la representación pública del usuario autenticado.
type UserPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`

	// PasswordChangeRequired indica que el usuario entra con la contraseña
	// provisional y debe cambiarla antes de operar.
	PasswordChangeRequired bool `json:"password_change_required"`
}

// TokenPair son los tokens emitidos tras autenticarse.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"` // siempre "Bearer"
	ExpiresIn    int64  `json:"expires_in"` // segundos del access token
}

// LoginResponse es la respuesta del login. Exactamente una de las dos
// formas viene poblada: tokens directos o desafío MFA.
type LoginResponse struct {
	// Forma 1: credenciales alcanzan (roles sin MFA)
	*TokenPair
	User *UserPayload `json:"user,omitempty"`

	// Forma 2: hace falta segundo factor
	MFARequired bool   `json:"mfa_required,omitempty"`
	MFAID       string `json:"mfa_id,omitempty"`
	PushSent    bool   `json:"push_sent,omitempty"`
	Message     string `json:"message,omitempty"`
}

// MFAVerifyResponse es la respuesta del poll/verificación.
// Cuando MFAVerified es true incluye los tokens.
type MFAVerifyResponse struct {
	MFAVerified bool   `json:"mfa_verified"`
	Message     string `json:"message,omitempty"`

	*TokenPair
	User *UserPayload `json:"user,omitempty"`
}

// RefreshResponse entrega el nuevo par tras la rotación.
type RefreshResponse struct {
	*TokenPair
}

// ActionMFAInitiateResponse describe la sesión step-up creada.
type ActionMFAInitiateResponse struct {
	MFAID     string    `json:"mfa_id"`
	PushSent  bool      `json:"push_sent"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ActionMFACheckResponse es el estado actual de la sesión step-up.
type ActionMFACheckResponse struct {
	MFAVerified bool `json:"mfa_verified"`
	Expired     bool `json:"expired"`
}

// ForgotPasswordResponse confirma el envío del OTP. Siempre tiene la misma
// forma aunque el email no exista (anti enumeración).
type ForgotPasswordResponse struct {
	OTPSent bool   `json:"otp_sent"`
	Message string `json:"message"`
}

// ForgotVerifyResponse confirma la verificación y entrega la referencia de
// sesión que el paso final debe presentar.
type ForgotVerifyResponse struct {
	Verified bool   `json:"verified"`
	ResetID  string `json:"reset_id"`
}

// ForgotResetResponse confirma el cambio de contraseña.
type ForgotResetResponse struct {
	Reset   bool   `json:"reset"`
	Message string `json:"message"`
}

// ChangePasswordResponse confirma el cambio autenticado.
type ChangePasswordResponse struct {
	Changed bool `json:"changed"`
}
