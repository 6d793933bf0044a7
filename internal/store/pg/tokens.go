package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskey/campuskey/internal/domain/repository"
)

// TokenRepo implementa repository.TokenRepository.
type TokenRepo struct{ pool *pgxpool.Pool }

var _ repository.TokenRepository = (*TokenRepo)(nil)

func (r *TokenRepo) Create(ctx context.Context, input repository.CreateRefreshTokenInput) (string, error) {
	const q = `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at, rotated_from)
		VALUES ($1, $2, NOW(), NOW() + $3::interval, $4)
		RETURNING id`

	var id string
	err := r.pool.QueryRow(ctx, q,
		input.UserID, input.TokenHash, input.TTL.String(), input.RotatedFrom,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Rotate es el corazón de la rotación single-use. El UPDATE condicionado a
// revoked_at IS NULL es la barrera: bajo dos requests concurrentes con el
// mismo token, solo uno afecta la fila y el otro cae al diagnóstico.
func (r *TokenRepo) Rotate(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	const q = `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
		RETURNING id, user_id, token_hash, issued_at, expires_at, rotated_from, revoked_at`

	var t repository.RefreshToken
	err := r.pool.QueryRow(ctx, q, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.RotatedFrom, &t.RevokedAt,
	)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// El token no estaba activo. Diagnosticar por qué para que el caller
	// distinga robo (reuso de rotado) de una sesión vieja (expirado).
	return nil, r.diagnose(ctx, tokenHash)
}

// diagnose determina la causa cuando el UPDATE de rotación no afectó filas.
func (r *TokenRepo) diagnose(ctx context.Context, tokenHash string) error {
	const q = `SELECT expires_at, revoked_at FROM refresh_tokens WHERE token_hash = $1`

	var expiresAt time.Time
	var revokedAt *time.Time
	err := r.pool.QueryRow(ctx, q, tokenHash).Scan(&expiresAt, &revokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	if revokedAt != nil {
		return repository.ErrTokenRotated
	}
	return repository.ErrTokenExpired
}

func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	const q = `
		SELECT id, user_id, token_hash, issued_at, expires_at, rotated_from, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	var t repository.RefreshToken
	err := r.pool.QueryRow(ctx, q, tokenHash).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.RotatedFrom, &t.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	const q = `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL`

	_, err := r.pool.Exec(ctx, q, tokenHash)
	return err
}

func (r *TokenRepo) RevokeAllByUser(ctx context.Context, userID string) (int, error) {
	const q = `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE user_id = $1 AND revoked_at IS NULL`

	ct, err := r.pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}
