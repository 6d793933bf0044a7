// Package auth contiene DTOs para endpoints de autenticación.
package auth

// LoginRequest representa la solicitud de login por password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// OAuthLoginRequest es el login con el authorization code de Google.
type OAuthLoginRequest struct {
	Code string `json:"code"`
}

// MFAVerifyRequest cubre las dos variantes del endpoint de verificación:
// sin OTP actúa como poll del push; con OTP valida el passcode.
type MFAVerifyRequest struct {
	MFAID string `json:"mfa_id"`
	OTP   string `json:"otp,omitempty"`
}

// RefreshRequest solicita la rotación del refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest revoca el refresh token entregado.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ActionMFAInitiateRequest inicia una verificación step-up para una acción.
type ActionMFAInitiateRequest struct {
	Action string `json:"action"`
}

// ActionMFAVerifyRequest valida un passcode sobre una sesión de acción.
type ActionMFAVerifyRequest struct {
	MFAID string `json:"mfa_id"`
	OTP   string `json:"otp"`
}

// ForgotPasswordRequest dispara el envío del OTP de restablecimiento.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotVerifyRequest valida el OTP recibido por email.
type ForgotVerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ForgotResetRequest fija la nueva contraseña. ResetID debe ser la sesión
// verificada que pertenece a ese mismo email.
type ForgotResetRequest struct {
	Email           string `json:"email"`
	ResetID         string `json:"reset_id"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePasswordRequest es el cambio de contraseña de un usuario autenticado
// (primer login con contraseña provisional).
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}
