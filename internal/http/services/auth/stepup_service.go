package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campuskey/campuskey/internal/domain/repository"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
	"github.com/campuskey/campuskey/internal/metrics"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/mfa/push"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// StepUpService maneja la verificación reforzada por acción: un usuario ya
// autenticado debe aprobar un segundo factor antes de ejecutar una acción
// sensible puntual. La sesión resultante autoriza esa acción una sola vez.
type StepUpService interface {
	Initiate(ctx context.Context, claims *jwtx.Claims, in dto.ActionMFAInitiateRequest) (*dto.ActionMFAInitiateResponse, error)
	Check(ctx context.Context, claims *jwtx.Claims, mfaID string) (*dto.ActionMFACheckResponse, error)
	VerifyPasscode(ctx context.Context, claims *jwtx.Claims, in dto.ActionMFAVerifyRequest) (*dto.ActionMFACheckResponse, error)

	// Authorize canjea una sesión step-up APPROVED para ejecutar la acción.
	// Verifica que la sesión pertenezca al usuario y a la acción pedida, y
	// la consume: un segundo canje con el mismo mfa_id falla.
	Authorize(ctx context.Context, userID, action, mfaID string) error
}

// StepUpDeps contiene las dependencias del servicio step-up.
type StepUpDeps struct {
	Users  repository.UserRepository
	Broker *mfa.Broker
}

type stepUpService struct {
	deps StepUpDeps
}

// NewStepUpService crea el servicio step-up.
func NewStepUpService(deps StepUpDeps) StepUpService {
	return &stepUpService{deps: deps}
}

// ErrStepUpRequired indica que la acción exige una sesión step-up APPROVED
// y la presentada no lo está (o no se presentó ninguna).
var ErrStepUpRequired = fmt.Errorf("step-up verification required")

func (s *stepUpService) Initiate(ctx context.Context, claims *jwtx.Claims, in dto.ActionMFAInitiateRequest) (*dto.ActionMFAInitiateResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.stepup"),
		logger.Op("Initiate"),
		logger.UserID(claims.UserID),
	)

	in.Action = strings.TrimSpace(in.Action)
	if in.Action == "" {
		return nil, ErrMissingFields
	}

	// El handle de push sale de la cuenta, no del token: puede haber
	// cambiado desde que el access token se emitió.
	user, err := s.deps.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active() {
		return nil, ErrInvalidCredentials
	}

	res, err := s.deps.Broker.Initiate(ctx, mfa.Subject{
		UserID: user.ID,
		Email:  user.Email,
		Handle: user.PushHandle,
	}, mfa.PurposeAction, in.Action)
	if err != nil {
		log.Error("failed to start step-up session", logger.Err(err))
		return nil, ErrTokenIssueFailed
	}

	if res.PushSent {
		metrics.PushDispatches.WithLabelValues("sent").Inc()
	} else {
		metrics.PushDispatches.WithLabelValues("degraded").Inc()
	}
	log.Info("step-up challenge issued",
		logger.SessionID(res.Session.ID),
		logger.Action(in.Action),
		logger.Bool("push_sent", res.PushSent),
	)

	return &dto.ActionMFAInitiateResponse{
		MFAID:     res.Session.ID,
		PushSent:  res.PushSent,
		Message:   res.Message,
		ExpiresAt: res.Session.ExpiresAt,
	}, nil
}

// requireOwner verifica que la sesión pertenezca al caller antes de tocarla.
// Una sesión ajena se responde como inexistente, sin sincronizar con el
// proveedor ni gastar intentos.
func (s *stepUpService) requireOwner(ctx context.Context, claims *jwtx.Claims, mfaID string) error {
	sess, err := s.deps.Broker.Get(ctx, mfa.PurposeAction, mfaID)
	if err != nil {
		if errors.Is(err, mfa.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("load session: %w", err)
	}
	if sess.UserID != claims.UserID {
		logger.From(ctx).Warn("step-up session does not belong to caller",
			logger.Layer("service"),
			logger.Component("auth.stepup"),
			logger.SessionID(mfaID),
			logger.UserID(claims.UserID),
		)
		return ErrChallengeNotFound
	}
	return nil
}

func (s *stepUpService) Check(ctx context.Context, claims *jwtx.Claims, mfaID string) (*dto.ActionMFACheckResponse, error) {
	mfaID = strings.TrimSpace(mfaID)
	if mfaID == "" {
		return nil, ErrMissingFields
	}
	if err := s.requireOwner(ctx, claims, mfaID); err != nil {
		return nil, err
	}

	sess, err := s.deps.Broker.Poll(ctx, mfa.PurposeAction, mfaID)
	if err != nil {
		if errors.Is(err, mfa.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("poll session: %w", err)
	}
	return checkResponse(sess), nil
}

func (s *stepUpService) VerifyPasscode(ctx context.Context, claims *jwtx.Claims, in dto.ActionMFAVerifyRequest) (*dto.ActionMFACheckResponse, error) {
	in.MFAID = strings.TrimSpace(in.MFAID)
	in.OTP = strings.TrimSpace(in.OTP)
	if in.MFAID == "" || in.OTP == "" {
		return nil, ErrMissingFields
	}
	if err := s.requireOwner(ctx, claims, in.MFAID); err != nil {
		return nil, err
	}

	sess, err := s.deps.Broker.VerifyPasscode(ctx, mfa.PurposeAction, in.MFAID, in.OTP)
	switch {
	case err == nil:
		return checkResponse(sess), nil
	case errors.Is(err, mfa.ErrNotFound):
		return nil, ErrChallengeNotFound
	case errors.Is(err, mfa.ErrPasscodeRejected):
		if sess != nil && sess.Status == mfa.StatusDenied {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrPasscodeInvalid
	case errors.Is(err, push.ErrUnavailable):
		return nil, ErrProviderUnavailable
	default:
		return nil, fmt.Errorf("verify passcode: %w", err)
	}
}

func (s *stepUpService) Authorize(ctx context.Context, userID, action, mfaID string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.stepup"),
		logger.Op("Authorize"),
		logger.UserID(userID),
		logger.Action(action),
	)

	mfaID = strings.TrimSpace(mfaID)
	if mfaID == "" {
		return ErrStepUpRequired
	}

	sess, err := s.deps.Broker.Get(ctx, mfa.PurposeAction, mfaID)
	if err != nil {
		if errors.Is(err, mfa.ErrNotFound) {
			return ErrChallengeNotFound
		}
		return fmt.Errorf("load session: %w", err)
	}

	// La sesión tiene que ser de ESTE usuario y para ESTA acción. Un
	// mfa_id ajeno se trata como inexistente para no filtrar nada.
	if sess.UserID != userID || sess.Action != action {
		log.Warn("step-up session mismatch", logger.SessionID(mfaID))
		return ErrChallengeNotFound
	}

	switch sess.Status {
	case mfa.StatusApproved:
		// seguir al canje
	case mfa.StatusExpired:
		metrics.MFASessions.WithLabelValues(string(mfa.PurposeAction), "expired").Inc()
		return ErrChallengeExpired
	case mfa.StatusDenied:
		metrics.MFASessions.WithLabelValues(string(mfa.PurposeAction), "denied").Inc()
		return ErrChallengeDenied
	default:
		return ErrStepUpRequired
	}

	ok, err := s.deps.Broker.Consume(ctx, mfa.PurposeAction, mfaID)
	if err != nil {
		return fmt.Errorf("consume session: %w", err)
	}
	if !ok {
		log.Warn("step-up session already consumed", logger.SessionID(mfaID))
		return ErrChallengeNotFound
	}

	metrics.MFASessions.WithLabelValues(string(mfa.PurposeAction), "approved").Inc()
	log.Info("step-up authorization redeemed", logger.SessionID(mfaID))
	return nil
}

func checkResponse(sess *mfa.Session) *dto.ActionMFACheckResponse {
	return &dto.ActionMFACheckResponse{
		MFAVerified: sess.Status == mfa.StatusApproved,
		Expired:     sess.Status == mfa.StatusExpired,
	}
}
