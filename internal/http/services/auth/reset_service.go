package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campuskey/campuskey/internal/domain/repository"
	"github.com/campuskey/campuskey/internal/email"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	"github.com/campuskey/campuskey/internal/metrics"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/observability/logger"
	"github.com/campuskey/campuskey/internal/security/otp"
	"github.com/campuskey/campuskey/internal/security/password"
	tokens "github.com/campuskey/campuskey/internal/security/token"
)

// ResetService implementa el restablecimiento de contraseña en tres pasos:
// solicitar un OTP por email, verificarlo, y fijar la nueva contraseña
// presentando la referencia de sesión verificada junto con el mismo email.
type ResetService interface {
	Request(ctx context.Context, in dto.ForgotPasswordRequest) (*dto.ForgotPasswordResponse, error)
	Verify(ctx context.Context, in dto.ForgotVerifyRequest) (*dto.ForgotVerifyResponse, error)
	Reset(ctx context.Context, in dto.ForgotResetRequest) (*dto.ForgotResetResponse, error)
}

// ResetDeps contiene las dependencias del flujo de restablecimiento.
type ResetDeps struct {
	Users  repository.UserRepository
	Tokens repository.TokenRepository
	Store  mfa.Store
	Mail   email.Sender

	OTPTTL       time.Duration // default 5m
	MaxResends   int           // default 5
	ResendWindow time.Duration // default 5m
	MaxAttempts  int           // default 5
}

func (d ResetDeps) withDefaults() ResetDeps {
	if d.OTPTTL <= 0 {
		d.OTPTTL = 5 * time.Minute
	}
	if d.MaxResends <= 0 {
		d.MaxResends = 5
	}
	if d.ResendWindow <= 0 {
		d.ResendWindow = 5 * time.Minute
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 5
	}
	return d
}

type resetService struct {
	deps ResetDeps
}

// NewResetService crea el servicio de restablecimiento.
func NewResetService(deps ResetDeps) ResetService {
	return &resetService{deps: deps.withDefaults()}
}

// Errores del flujo de restablecimiento
var (
	ErrTooManyResends   = fmt.Errorf("too many otp resends")
	ErrPasswordMismatch = fmt.Errorf("password confirmation mismatch")
	ErrWeakPassword     = fmt.Errorf("password does not meet requirements")
	ErrResetNotVerified = fmt.Errorf("reset session not verified")
	ErrResetMismatch    = fmt.Errorf("reset session does not match identity")
)

// resetKey deriva la clave de sesión a partir del email. Una sola sesión
// activa por email: solicitar de nuevo sobrescribe e invalida el OTP previo.
func resetKey(email string) string {
	return tokens.SHA256Hex(email)
}

// genericResponse es la respuesta fija del paso de solicitud. Email
// inexistente o deshabilitado responden igual que uno válido.
func genericResponse() *dto.ForgotPasswordResponse {
	return &dto.ForgotPasswordResponse{
		OTPSent: true,
		Message: "Si la cuenta existe, enviamos un código de verificación al email indicado.",
	}
}

func (s *resetService) Request(ctx context.Context, in dto.ForgotPasswordRequest) (*dto.ForgotPasswordResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.reset"),
		logger.Op("Request"),
	)

	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" {
		return nil, ErrMissingFields
	}

	metrics.ResetFlows.WithLabelValues("requested").Inc()

	// Paso 1: Resolver la cuenta. Las ramas de falla responden el mismo
	// cuerpo que el camino feliz.
	user, err := s.deps.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Debug("reset requested for unknown email")
			return genericResponse(), nil
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active() {
		log.Info("reset requested for disabled account", logger.UserID(user.ID))
		return genericResponse(), nil
	}

	// Paso 2: Límite de reenvíos por ventana. La ventana arranca con la
	// primera solicitud; mientras haya sesión PENDING dentro de ella el
	// contador se arrastra. Cerrada la ventana arranca de cero.
	now := time.Now().UTC()
	resends := 0
	windowStart := now
	prev, err := s.deps.Store.Get(ctx, mfa.PurposeReset, resetKey(in.Email))
	if err != nil && !errors.Is(err, mfa.ErrNotFound) {
		return nil, fmt.Errorf("load previous session: %w", err)
	}
	if prev != nil && prev.Status == mfa.StatusPending && now.Before(prev.WindowStart.Add(s.deps.ResendWindow)) {
		if prev.Resends+1 >= s.deps.MaxResends {
			log.Warn("otp resend limit reached", logger.UserID(user.ID))
			return nil, ErrTooManyResends
		}
		resends = prev.Resends + 1
		windowStart = prev.WindowStart
	}

	// Paso 3: Generar el OTP y sobrescribir la sesión. Solo el hash del
	// código se persiste; el claro viaja por email y muere ahí.
	code, err := otp.Generate(otp.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	ref, err := tokens.GenerateOpaqueToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate reset ref: %w", err)
	}

	sess := mfa.NewSession(mfa.PurposeReset, user.ID, in.Email, s.deps.OTPTTL)
	sess.ID = resetKey(in.Email)
	sess.Ref = ref
	sess.Method = mfa.MethodEmailOTP
	sess.OTPHash = tokens.SHA256Base64URL(code)
	sess.Resends = resends
	sess.WindowStart = windowStart

	if err := s.deps.Store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	// Paso 4: Enviar el código. Un fallo del SMTP se loguea pero la
	// respuesta no cambia: el cuerpo es idéntico exista o no la cuenta.
	if s.deps.Mail == nil {
		log.Warn("mail sender not configured, otp not delivered", logger.UserID(user.ID))
	} else if err := email.SendResetOTP(s.deps.Mail, in.Email, code, s.deps.OTPTTL); err != nil {
		log.Error("failed to send reset otp", logger.UserID(user.ID), logger.Err(err))
	} else {
		log.Info("reset otp sent", logger.UserID(user.ID), logger.Int("resends", resends))
	}

	return genericResponse(), nil
}

func (s *resetService) Verify(ctx context.Context, in dto.ForgotVerifyRequest) (*dto.ForgotVerifyResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.reset"),
		logger.Op("Verify"),
	)

	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.OTP = strings.TrimSpace(in.OTP)
	if in.Email == "" || in.OTP == "" {
		return nil, ErrMissingFields
	}

	key := resetKey(in.Email)
	sess, err := s.deps.Store.Get(ctx, mfa.PurposeReset, key)
	if err != nil {
		if errors.Is(err, mfa.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	switch sess.Status {
	case mfa.StatusApproved:
		// Verificar dos veces el mismo código es idempotente.
		return &dto.ForgotVerifyResponse{Verified: true, ResetID: sess.Ref}, nil
	case mfa.StatusExpired:
		return nil, ErrChallengeExpired
	case mfa.StatusDenied:
		return nil, ErrTooManyAttempts
	}

	// Comparación por hash en tiempo constante.
	want := []byte(sess.OTPHash)
	got := []byte(tokens.SHA256Base64URL(in.OTP))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		_, locked, ferr := s.deps.Store.RecordFailure(ctx, mfa.PurposeReset, key, s.deps.MaxAttempts)
		if ferr != nil {
			return nil, fmt.Errorf("record failure: %w", ferr)
		}
		if locked {
			log.Warn("reset session locked by otp failures", logger.UserID(sess.UserID))
			return nil, ErrTooManyAttempts
		}
		return nil, ErrPasscodeInvalid
	}

	sess, won, err := s.deps.Store.Transition(ctx, mfa.PurposeReset, key, mfa.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("approve session: %w", err)
	}
	if !won && sess.Status != mfa.StatusApproved {
		// La expiración ganó entre el Get y el CAS.
		return nil, ErrChallengeExpired
	}

	metrics.ResetFlows.WithLabelValues("verified").Inc()
	log.Info("reset otp verified", logger.UserID(sess.UserID))

	return &dto.ForgotVerifyResponse{Verified: true, ResetID: sess.Ref}, nil
}

func (s *resetService) Reset(ctx context.Context, in dto.ForgotResetRequest) (*dto.ForgotResetResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.reset"),
		logger.Op("Reset"),
	)

	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.ResetID = strings.TrimSpace(in.ResetID)
	if in.Email == "" || in.ResetID == "" || in.NewPassword == "" {
		return nil, ErrMissingFields
	}
	if in.NewPassword != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if err := validatePassword(in.NewPassword); err != nil {
		return nil, err
	}

	key := resetKey(in.Email)
	sess, err := s.deps.Store.Get(ctx, mfa.PurposeReset, key)
	if err != nil {
		if errors.Is(err, mfa.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	// La referencia tiene que ser la de la sesión de ESTE email. Una
	// referencia verificada de otro usuario no sirve acá.
	if subtle.ConstantTimeCompare([]byte(sess.Ref), []byte(in.ResetID)) != 1 {
		log.Warn("reset ref does not match session", logger.UserID(sess.UserID))
		return nil, ErrResetMismatch
	}

	switch sess.Status {
	case mfa.StatusApproved:
		// seguir
	case mfa.StatusExpired:
		return nil, ErrChallengeExpired
	default:
		return nil, ErrResetNotVerified
	}

	// Un solo cambio de contraseña por sesión verificada.
	ok, err := s.deps.Store.Consume(ctx, mfa.PurposeReset, key)
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}
	if !ok {
		return nil, ErrChallengeNotFound
	}

	hash, err := password.Hash(password.Default, in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.deps.Users.UpdatePassword(ctx, sess.UserID, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	// Las sesiones abiertas del dueño caen junto con la contraseña vieja.
	if n, err := s.deps.Tokens.RevokeAllByUser(ctx, sess.UserID); err != nil {
		log.Error("failed to revoke sessions after reset", logger.UserID(sess.UserID), logger.Err(err))
	} else if n > 0 {
		log.Info("sessions revoked after reset", logger.UserID(sess.UserID), logger.Count(n))
	}

	metrics.ResetFlows.WithLabelValues("completed").Inc()
	log.Info("password reset completed", logger.UserID(sess.UserID))

	return &dto.ForgotResetResponse{
		Reset:   true,
		Message: "Contraseña actualizada. Inicie sesión con la nueva contraseña.",
	}, nil
}

// validatePassword aplica la política mínima de contraseñas.
func validatePassword(plain string) error {
	if len(plain) < 8 {
		return ErrWeakPassword
	}
	return nil
}
