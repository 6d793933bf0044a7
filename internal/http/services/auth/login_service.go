package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/campuskey/campuskey/internal/domain/repository"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	"github.com/campuskey/campuskey/internal/metrics"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/oauth/google"
	"github.com/campuskey/campuskey/internal/observability/logger"
	"github.com/campuskey/campuskey/internal/security/password"
	"go.uber.org/zap"
)

// LoginService autentica por email y contraseña, o por authorization code
// de Google.
type LoginService interface {
	Login(ctx context.Context, in dto.LoginRequest) (*dto.LoginResponse, error)
	LoginOAuth(ctx context.Context, in dto.OAuthLoginRequest) (*dto.LoginResponse, error)
}

// OAuthVerifier canjea un authorization code por la identidad del proveedor.
type OAuthVerifier interface {
	Authenticate(ctx context.Context, code string) (*google.Identity, error)
}

// LoginDeps contiene las dependencias para el login service.
type LoginDeps struct {
	Users  repository.UserRepository
	Broker *mfa.Broker
	Minter *minter

	// OAuth es opcional: nil deshabilita el login con Google.
	OAuth OAuthVerifier
}

type loginService struct {
	deps LoginDeps
}

// NewLoginService crea un nuevo servicio de login.
func NewLoginService(deps LoginDeps) LoginService {
	return &loginService{deps: deps}
}

// Errores de login
var (
	ErrMissingFields      = fmt.Errorf("missing required fields")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrTokenIssueFailed   = fmt.Errorf("failed to issue tokens")
)

func (s *loginService) Login(ctx context.Context, in dto.LoginRequest) (*dto.LoginResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("Login"),
	)

	// Paso 0: Normalización
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || in.Password == "" {
		return nil, ErrMissingFields
	}

	// Paso 1: Buscar usuario. Cuenta inexistente, deshabilitada o password
	// incorrecta responden lo mismo: no se filtra cuál falló.
	user, err := s.deps.Users.GetByEmail(ctx, in.Email)
	if err != nil {
		if repository.IsNotFound(err) {
			log.Debug("user not found")
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	log = log.With(logger.UserID(user.ID))

	if !user.Active() {
		log.Info("login attempt on disabled account")
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	// Paso 2: Verificar password
	if !password.Verify(in.Password, user.PasswordHash) {
		log.Debug("password check failed")
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	// Paso 3: Continuación común a ambos métodos de autenticación.
	return s.finishLogin(ctx, log, user)
}

// LoginOAuth autentica canjeando un authorization code de Google. La cuenta
// debe existir: el login social no da de alta usuarios.
func (s *loginService) LoginOAuth(ctx context.Context, in dto.OAuthLoginRequest) (*dto.LoginResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.login"),
		logger.Op("LoginOAuth"),
	)

	if strings.TrimSpace(in.Code) == "" {
		return nil, ErrMissingFields
	}
	if s.deps.OAuth == nil {
		return nil, ErrProviderUnavailable
	}

	// Paso 1: Canjear el código. Cualquier falla (código vencido o ya usado,
	// id_token inválido) responde lo mismo que una contraseña incorrecta;
	// la causa concreta queda solo en el log.
	ident, err := s.deps.OAuth.Authenticate(ctx, in.Code)
	if err != nil {
		log.Debug("oauth code exchange failed", logger.Err(err))
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	if !ident.EmailVerified || ident.Email == "" {
		log.Debug("oauth identity without verified email")
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	// Paso 2: La identidad de Google debe corresponder a una cuenta ya
	// registrada y activa.
	user, err := s.deps.Users.GetByEmail(ctx, strings.ToLower(ident.Email))
	if err != nil {
		if repository.IsNotFound(err) {
			log.Debug("no account for oauth identity")
			metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	log = log.With(logger.UserID(user.ID))

	if !user.Active() {
		log.Info("oauth login attempt on disabled account")
		metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	return s.finishLogin(ctx, log, user)
}

// finishLogin aplica el gate MFA por rol y emite tokens. Los roles
// privilegiados no reciben tokens acá: reciben una sesión de verificación y
// el login queda a medias hasta que el segundo factor apruebe.
func (s *loginService) finishLogin(ctx context.Context, log *zap.Logger, user *repository.User) (*dto.LoginResponse, error) {
	if user.Role.RequiresMFA() {
		res, err := s.deps.Broker.Initiate(ctx, mfa.Subject{
			UserID: user.ID,
			Email:  user.Email,
			Handle: user.PushHandle,
		}, mfa.PurposeLogin, "")
		if err != nil {
			log.Error("failed to start mfa session", logger.Err(err))
			return nil, ErrTokenIssueFailed
		}

		metrics.LoginAttempts.WithLabelValues("mfa_required").Inc()
		if res.PushSent {
			metrics.PushDispatches.WithLabelValues("sent").Inc()
		} else {
			metrics.PushDispatches.WithLabelValues("degraded").Inc()
		}

		log.Info("mfa challenge issued",
			logger.SessionID(res.Session.ID),
			logger.Bool("push_sent", res.PushSent),
		)
		return &dto.LoginResponse{
			MFARequired: true,
			MFAID:       res.Session.ID,
			PushSent:    res.PushSent,
			Message:     res.Message,
		}, nil
	}

	pair, err := s.deps.Minter.mint(ctx, user, nil)
	if err != nil {
		log.Error("failed to issue tokens", logger.Err(err))
		return nil, ErrTokenIssueFailed
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	log.Info("login successful", logger.Role(string(user.Role)))

	return &dto.LoginResponse{
		TokenPair: pair,
		User:      userPayload(user),
	}, nil
}
