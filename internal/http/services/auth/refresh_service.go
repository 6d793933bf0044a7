package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campuskey/campuskey/internal/domain/repository"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	"github.com/campuskey/campuskey/internal/metrics"
	"github.com/campuskey/campuskey/internal/observability/logger"
	tokens "github.com/campuskey/campuskey/internal/security/token"
	"go.uber.org/zap"
)

// RefreshService rota refresh tokens y revoca en el logout.
type RefreshService interface {
	Refresh(ctx context.Context, in dto.RefreshRequest) (*dto.RefreshResponse, error)
	Logout(ctx context.Context, in dto.LogoutRequest) error
}

// RefreshDeps contiene las dependencias para el refresh service.
type RefreshDeps struct {
	Users  repository.UserRepository
	Tokens repository.TokenRepository
	Minter *minter
}

type refreshService struct {
	deps RefreshDeps
}

// NewRefreshService crea el servicio de rotación.
func NewRefreshService(deps RefreshDeps) RefreshService {
	return &refreshService{deps: deps}
}

// Errores de rotación
var (
	ErrRefreshNotFound = fmt.Errorf("refresh token not found")
	ErrRefreshExpired  = fmt.Errorf("refresh token expired")

	// ErrRefreshReused indica el reuso de un token ya rotado. No es un
	// token viejo cualquiera: alguien presentó un valor que ya fue
	// canjeado, así que toda la familia del usuario queda revocada.
	ErrRefreshReused = fmt.Errorf("rotated refresh token reused")
)

func (s *refreshService) Refresh(ctx context.Context, in dto.RefreshRequest) (*dto.RefreshResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.refresh"),
		logger.Op("Refresh"),
	)

	in.RefreshToken = strings.TrimSpace(in.RefreshToken)
	if in.RefreshToken == "" {
		return nil, ErrMissingFields
	}

	hash := tokens.SHA256Base64URL(in.RefreshToken)

	// Paso 1: Rotación atómica. El repo revoca el token activo y lo
	// retorna; bajo concurrencia exactamente un caller gana.
	old, err := s.deps.Tokens.Rotate(ctx, hash)
	switch {
	case err == nil:
		// rotación ganada
	case errors.Is(err, repository.ErrTokenRotated):
		return nil, s.handleReuse(ctx, hash, log)
	case errors.Is(err, repository.ErrTokenExpired):
		metrics.TokenRotations.WithLabelValues("expired").Inc()
		return nil, ErrRefreshExpired
	case repository.IsNotFound(err):
		metrics.TokenRotations.WithLabelValues("not_found").Inc()
		return nil, ErrRefreshNotFound
	default:
		return nil, fmt.Errorf("rotate token: %w", err)
	}

	log = log.With(logger.UserID(old.UserID))

	// Paso 2: El dueño tiene que seguir activo.
	user, err := s.deps.Users.GetByID(ctx, old.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrRefreshNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active() {
		log.Info("refresh attempt on disabled account")
		return nil, ErrRefreshNotFound
	}

	// Paso 3: Emitir el par nuevo encadenado al token recién revocado.
	pair, err := s.deps.Minter.mint(ctx, user, &old.ID)
	if err != nil {
		log.Error("failed to issue tokens", logger.Err(err))
		return nil, ErrTokenIssueFailed
	}

	metrics.TokenRotations.WithLabelValues("rotated").Inc()
	log.Debug("refresh token rotated", logger.TokenID(old.ID))

	return &dto.RefreshResponse{TokenPair: pair}, nil
}

// handleReuse ejecuta la respuesta al reuso de un token rotado: revocar
// todos los tokens activos del dueño. El atacante y la víctima quedan
// afuera por igual; la víctima recupera el acceso con sus credenciales.
func (s *refreshService) handleReuse(ctx context.Context, hash string, log *zap.Logger) error {
	metrics.TokenRotations.WithLabelValues("reuse_detected").Inc()

	rt, err := s.deps.Tokens.GetByHash(ctx, hash)
	if err != nil {
		log.Error("reuse detected but token lookup failed", logger.Err(err))
		return ErrRefreshReused
	}

	n, err := s.deps.Tokens.RevokeAllByUser(ctx, rt.UserID)
	if err != nil {
		log.Error("failed to revoke token family", logger.UserID(rt.UserID), logger.Err(err))
		return ErrRefreshReused
	}

	log.Warn("rotated token reuse detected, token family revoked",
		logger.UserID(rt.UserID),
		logger.TokenID(rt.ID),
		logger.Count(n),
	)
	return ErrRefreshReused
}

func (s *refreshService) Logout(ctx context.Context, in dto.LogoutRequest) error {
	in.RefreshToken = strings.TrimSpace(in.RefreshToken)
	if in.RefreshToken == "" {
		return ErrMissingFields
	}

	// Revocar es idempotente: logout de un token ya revocado o desconocido
	// también responde 200 y no filtra si el token existía.
	if err := s.deps.Tokens.Revoke(ctx, tokens.SHA256Base64URL(in.RefreshToken)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
