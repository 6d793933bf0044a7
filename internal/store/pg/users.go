package pg

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskey/campuskey/internal/domain/repository"
	"github.com/campuskey/campuskey/internal/domain/types"
)

// UserRepo implementa repository.UserRepository.
type UserRepo struct{ pool *pgxpool.Pool }

var _ repository.UserRepository = (*UserRepo)(nil)

const userColumns = `
	id, email, name, role, password_hash,
	COALESCE(push_handle, ''), password_changed, password_changed_at,
	created_at, disabled_at`

func (r *UserRepo) Create(ctx context.Context, input repository.CreateUserInput) (string, error) {
	const q = `
		INSERT INTO users (email, name, role, password_hash, push_handle)
		VALUES (LOWER($1), $2, $3, $4, $5)
		RETURNING id`

	var id string
	err := r.pool.QueryRow(ctx, q,
		input.Email, input.Name, string(input.Role),
		input.PasswordHash, nullIfEmpty(input.PushHandle),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", repository.ErrConflict
		}
		return "", err
	}
	return id, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = LOWER($1)`
	return r.scanOne(r.pool.QueryRow(ctx, q, strings.TrimSpace(email)))
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

func (r *UserRepo) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	const q = `
		UPDATE users
		SET password_hash = $2, password_changed = TRUE, password_changed_at = NOW()
		WHERE id = $1`

	ct, err := r.pool.Exec(ctx, q, userID, passwordHash)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *UserRepo) scanOne(row pgx.Row) (*repository.User, error) {
	var u repository.User
	var role string
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &role, &u.PasswordHash,
		&u.PushHandle, &u.PasswordChanged, &u.PasswordChangedAt,
		&u.CreatedAt, &u.DisabledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = types.Role(role)
	return &u, nil
}
