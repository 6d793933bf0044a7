package mfa

import (
	"time"

	"github.com/google/uuid"
)

// Status es el estado de una sesión de verificación.
//
// El grafo de transiciones es estricto: PENDING puede pasar a APPROVED,
// DENIED o EXPIRED, y los tres estados finales son absorbentes. Nunca se
// regresa a PENDING ni se cruza entre estados finales.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusExpired  Status = "EXPIRED"
)

// Terminal indica si el estado es absorbente.
func (s Status) Terminal() bool { return s != StatusPending }

// Purpose indica para qué sirve la sesión. Cada propósito vive en su propio
// namespace de claves: una sesión de login jamás autoriza una acción.
type Purpose string

const (
	PurposeLogin  Purpose = "login"
	PurposeAction Purpose = "action"
	PurposeReset  Purpose = "reset"
)

// Method es el mecanismo de verificación de la sesión.
type Method string

const (
	MethodPush     Method = "push"
	MethodPasscode Method = "passcode"
	MethodEmailOTP Method = "email_otp"
)

// Session es una sesión de verificación de segundo factor.
// Se serializa a JSON para el backend Redis.
type Session struct {
	ID      string  `json:"id"`
	Purpose Purpose `json:"purpose"`

	// Ref es la referencia pública de la sesión cuando la clave del store
	// no es el ID (restablecimiento: la clave es el email, Ref es el
	// reset_id que el cliente debe presentar en el paso final).
	Ref string `json:"ref,omitempty"`

	UserID string `json:"user_id"`
	Email  string `json:"email"`

	// Handle identifica al usuario ante el proveedor de push.
	Handle string `json:"handle,omitempty"`

	Method Method `json:"method"`
	Status Status `json:"status"`

	// Action es el nombre de la acción protegida (solo purpose=action).
	Action string `json:"action,omitempty"`

	// PushTxID es la transacción del proveedor si el push salió.
	PushTxID string `json:"push_tx_id,omitempty"`

	// OTPHash guarda el hash del código enviado por email (solo purpose=reset).
	OTPHash string `json:"otp_hash,omitempty"`

	Attempts int `json:"attempts"`

	// Resends cuenta los reenvíos del OTP dentro de la ventana que arranca
	// en WindowStart (solo purpose=reset).
	Resends     int       `json:"resends"`
	WindowStart time.Time `json:"window_start"`

	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// NewSession crea una sesión PENDING con el TTL dado.
func NewSession(purpose Purpose, userID, email string, ttl time.Duration) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Purpose:   purpose,
		UserID:    userID,
		Email:     email,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// ExpiredAt indica si la sesión ya venció al instante dado.
func (s *Session) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// clone devuelve una copia superficial (los stores nunca comparten punteros
// con los callers).
func (s *Session) clone() *Session {
	cp := *s
	if s.VerifiedAt != nil {
		t := *s.VerifiedAt
		cp.VerifiedAt = &t
	}
	return &cp
}
