package repository

import (
	"context"
	"time"
)

// RefreshToken representa un token de refresco.
// El token opaco nunca se persiste: solo su hash SHA-256.
type RefreshToken struct {
	ID          string
	UserID      string
	TokenHash   string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RotatedFrom *string
	RevokedAt   *time.Time
}

// CreateRefreshTokenInput contiene los datos para crear un refresh token.
type CreateRefreshTokenInput struct {
	UserID    string
	TokenHash string
	TTL       time.Duration
	// RotatedFrom referencia el ID del token que este reemplaza (cadena de rotación).
	RotatedFrom *string
}

// TokenRepository define operaciones sobre refresh tokens.
type TokenRepository interface {
	// Create crea un nuevo refresh token. Retorna el ID del token creado.
	Create(ctx context.Context, input CreateRefreshTokenInput) (string, error)

	// Rotate revoca atómicamente el token activo identificado por su hash y
	// retorna el registro revocado. Un solo caller gana bajo concurrencia:
	// el segundo intento con el mismo hash recibe ErrTokenRotated.
	//
	// Errores: ErrNotFound (hash desconocido), ErrTokenExpired (venció sin
	// revocar), ErrTokenRotated (ya revocado o rotado antes).
	Rotate(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// GetByHash busca un refresh token por su hash, sin importar su estado.
	// Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	// Revoke revoca el token activo con ese hash (logout).
	// Es idempotente: revocar un token ya revocado no es error.
	Revoke(ctx context.Context, tokenHash string) error

	// RevokeAllByUser revoca todos los tokens activos de un usuario.
	// Retorna el número de tokens revocados.
	RevokeAllByUser(ctx context.Context, userID string) (int, error)
}
