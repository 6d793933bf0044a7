// Package auth contiene los services de autenticación: login, verificación
// MFA, rotación de tokens, step-up por acción y restablecimiento de
// contraseña. Los controllers traducen los errores sentinela de cada service
// al error HTTP correspondiente.
package auth

import (
	"time"

	"github.com/campuskey/campuskey/internal/domain/repository"
	"github.com/campuskey/campuskey/internal/email"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
	"github.com/campuskey/campuskey/internal/mfa"
)

// Deps contiene las dependencias compartidas para crear los services auth.
type Deps struct {
	Users  repository.UserRepository
	Tokens repository.TokenRepository

	Issuer     *jwtx.Issuer
	RefreshTTL time.Duration

	Broker *mfa.Broker

	// OAuth canjea authorization codes de Google. nil deshabilita el
	// login social.
	OAuth OAuthVerifier

	// Mail envía los OTP de restablecimiento. nil deshabilita el flujo.
	Mail email.Sender

	// Parámetros del flujo de restablecimiento.
	OTPTTL       time.Duration
	MaxResends   int
	ResendWindow time.Duration
}

// Services agrupa todos los services del dominio auth.
type Services struct {
	Login    LoginService
	MFA      MFAService
	Refresh  RefreshService
	StepUp   StepUpService
	Reset    ResetService
	Password PasswordService
}

// NewServices crea el agregador de services auth.
func NewServices(d Deps) Services {
	m := &minter{issuer: d.Issuer, tokens: d.Tokens, refreshTTL: d.RefreshTTL}
	return Services{
		Login:    NewLoginService(LoginDeps{Users: d.Users, Broker: d.Broker, Minter: m, OAuth: d.OAuth}),
		MFA:      NewMFAService(MFADeps{Users: d.Users, Broker: d.Broker, Minter: m}),
		Refresh:  NewRefreshService(RefreshDeps{Users: d.Users, Tokens: d.Tokens, Minter: m}),
		StepUp:   NewStepUpService(StepUpDeps{Users: d.Users, Broker: d.Broker}),
		Reset: NewResetService(ResetDeps{
			Users:        d.Users,
			Tokens:       d.Tokens,
			Store:        d.Broker.Store(),
			Mail:         d.Mail,
			OTPTTL:       d.OTPTTL,
			MaxResends:   d.MaxResends,
			ResendWindow: d.ResendWindow,
		}),
		Password: NewPasswordService(PasswordDeps{Users: d.Users, Tokens: d.Tokens}),
	}
}
