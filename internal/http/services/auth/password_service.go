package auth

import (
	"context"
	"fmt"

	"github.com/campuskey/campuskey/internal/domain/repository"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	"github.com/campuskey/campuskey/internal/observability/logger"
	"github.com/campuskey/campuskey/internal/security/password"
)

// PasswordService cambia la contraseña de un usuario ya autenticado. Es el
// camino del primer login: la cuenta se crea con contraseña provisional y
// el usuario la reemplaza acá.
type PasswordService interface {
	Change(ctx context.Context, userID string, in dto.ChangePasswordRequest) (*dto.ChangePasswordResponse, error)
}

// PasswordDeps contiene las dependencias del cambio de contraseña.
type PasswordDeps struct {
	Users  repository.UserRepository
	Tokens repository.TokenRepository
}

type passwordService struct {
	deps PasswordDeps
}

// NewPasswordService crea el servicio de cambio de contraseña.
func NewPasswordService(deps PasswordDeps) PasswordService {
	return &passwordService{deps: deps}
}

func (s *passwordService) Change(ctx context.Context, userID string, in dto.ChangePasswordRequest) (*dto.ChangePasswordResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.password"),
		logger.Op("Change"),
		logger.UserID(userID),
	)

	if in.CurrentPassword == "" || in.NewPassword == "" {
		return nil, ErrMissingFields
	}
	if in.NewPassword != in.ConfirmPassword {
		return nil, ErrPasswordMismatch
	}
	if err := validatePassword(in.NewPassword); err != nil {
		return nil, err
	}

	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active() {
		return nil, ErrInvalidCredentials
	}

	// La contraseña vigente es el factor de confirmación.
	if !password.Verify(in.CurrentPassword, user.PasswordHash) {
		log.Debug("current password check failed")
		return nil, ErrInvalidCredentials
	}

	hash, err := password.Hash(password.Default, in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.deps.Users.UpdatePassword(ctx, userID, hash); err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}

	// Los refresh tokens emitidos con la contraseña anterior se revocan;
	// el access token vigente sigue siendo válido hasta su exp.
	if n, err := s.deps.Tokens.RevokeAllByUser(ctx, userID); err != nil {
		log.Error("failed to revoke sessions after change", logger.Err(err))
	} else if n > 0 {
		log.Info("sessions revoked after password change", logger.Count(n))
	}

	log.Info("password changed")
	return &dto.ChangePasswordResponse{Changed: true}, nil
}
