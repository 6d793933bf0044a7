package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/campuskey/campuskey/internal/domain/repository"
	dto "github.com/campuskey/campuskey/internal/http/dto/auth"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
	tokens "github.com/campuskey/campuskey/internal/security/token"
)

// minter emite el par access+refresh para un usuario. Lo comparten login,
// verificación MFA y refresh para que los tres caminos emitan exactamente
// el mismo formato.
type minter struct {
	issuer     *jwtx.Issuer
	tokens     repository.TokenRepository
	refreshTTL time.Duration
}

// mint emite un access token firmado y un refresh token opaco nuevo.
// rotatedFrom encadena el refresh nuevo con el que reemplaza (nil en login).
func (m *minter) mint(ctx context.Context, u *repository.User, rotatedFrom *string) (*dto.TokenPair, error) {
	access, exp, err := m.issuer.IssueAccess(u.ID, u.Email, string(u.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	raw, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	// Solo el hash toca la base. El valor opaco viaja una única vez.
	_, err = m.tokens.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:      u.ID,
		TokenHash:   tokens.SHA256Base64URL(raw),
		TTL:         m.refreshTTL,
		RotatedFrom: rotatedFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &dto.TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	}, nil
}

func userPayload(u *repository.User) *dto.UserPayload {
	return &dto.UserPayload{
		ID:                     u.ID,
		Email:                  u.Email,
		Name:                   u.Name,
		Role:                   string(u.Role),
		PasswordChangeRequired: !u.PasswordChanged,
	}
}
