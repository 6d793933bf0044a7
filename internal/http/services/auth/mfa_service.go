package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campuskey/campuskey/internal/domain/repository"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	"github.com/campuskey/campuskey/internal/metrics"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/mfa/push"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// MFAService completa el login de los roles que requieren segundo factor.
// Verify atiende las dos variantes del endpoint: sin OTP es un poll del
// push, con OTP valida el passcode.
type MFAService interface {
	Verify(ctx context.Context, in dto.MFAVerifyRequest) (*dto.MFAVerifyResponse, error)
}

// MFADeps contiene las dependencias para el servicio de verificación.
type MFADeps struct {
	Users  repository.UserRepository
	Broker *mfa.Broker
	Minter *minter
}

type mfaService struct {
	deps MFADeps
}

// NewMFAService crea el servicio de verificación de login.
func NewMFAService(deps MFADeps) MFAService {
	return &mfaService{deps: deps}
}

// Errores de verificación MFA
var (
	ErrChallengeNotFound   = fmt.Errorf("verification session not found")
	ErrChallengeExpired    = fmt.Errorf("verification session expired")
	ErrChallengeDenied     = fmt.Errorf("verification denied")
	ErrPasscodeInvalid     = fmt.Errorf("invalid passcode")
	ErrTooManyAttempts     = fmt.Errorf("too many failed attempts")
	ErrProviderUnavailable = fmt.Errorf("verification provider unavailable")
)

func (s *mfaService) Verify(ctx context.Context, in dto.MFAVerifyRequest) (*dto.MFAVerifyResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.mfa"),
		logger.Op("Verify"),
	)

	in.MFAID = strings.TrimSpace(in.MFAID)
	in.OTP = strings.TrimSpace(in.OTP)
	if in.MFAID == "" {
		return nil, ErrMissingFields
	}

	log = log.With(logger.SessionID(in.MFAID))

	// Paso 1: Resolver el estado de la sesión según la variante.
	var (
		sess *mfa.Session
		err  error
	)
	if in.OTP == "" {
		sess, err = s.deps.Broker.Poll(ctx, mfa.PurposeLogin, in.MFAID)
	} else {
		sess, err = s.deps.Broker.VerifyPasscode(ctx, mfa.PurposeLogin, in.MFAID, in.OTP)
	}

	switch {
	case err == nil:
		// seguir abajo con el estado
	case errors.Is(err, mfa.ErrNotFound):
		return nil, ErrChallengeNotFound
	case errors.Is(err, mfa.ErrPasscodeRejected):
		if sess != nil && sess.Status == mfa.StatusDenied {
			log.Warn("session locked by passcode failures")
			return nil, ErrTooManyAttempts
		}
		return nil, ErrPasscodeInvalid
	case errors.Is(err, push.ErrUnavailable):
		log.Error("passcode provider unavailable", logger.Err(err))
		return nil, ErrProviderUnavailable
	default:
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	// Paso 2: Mapear el estado. Solo APPROVED sigue al canje.
	switch sess.Status {
	case mfa.StatusPending:
		return &dto.MFAVerifyResponse{
			MFAVerified: false,
			Message:     "Verificación pendiente. Apruebe la notificación en su dispositivo.",
		}, nil
	case mfa.StatusDenied:
		metrics.MFASessions.WithLabelValues(string(mfa.PurposeLogin), "denied").Inc()
		return nil, ErrChallengeDenied
	case mfa.StatusExpired:
		metrics.MFASessions.WithLabelValues(string(mfa.PurposeLogin), "expired").Inc()
		return nil, ErrChallengeExpired
	}

	// Paso 3: Canjear la sesión aprobada por tokens. Consume garantiza un
	// solo canje: dos polls que vieron APPROVED a la vez emiten tokens una
	// sola vez, el perdedor recibe "no existe".
	ok, err := s.deps.Broker.Consume(ctx, mfa.PurposeLogin, in.MFAID)
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}
	if !ok {
		log.Warn("approved session already consumed")
		return nil, ErrChallengeNotFound
	}

	user, err := s.deps.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active() {
		log.Info("account disabled between challenge and redemption")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.deps.Minter.mint(ctx, user, nil)
	if err != nil {
		log.Error("failed to issue tokens", logger.Err(err))
		return nil, ErrTokenIssueFailed
	}

	metrics.MFASessions.WithLabelValues(string(mfa.PurposeLogin), "approved").Inc()
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	log.Info("mfa login completed", logger.UserID(user.ID))

	return &dto.MFAVerifyResponse{
		MFAVerified: true,
		Message:     "Verificación exitosa.",
		TokenPair:   pair,
		User:        userPayload(user),
	}, nil
}
