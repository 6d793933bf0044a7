package repository

import (
	"context"
	"time"

	"github.com/campuskey/campuskey/internal/domain/types"
)

// User representa un usuario del sistema.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         types.Role
	PasswordHash string

	// PushHandle es el identificador del usuario ante el proveedor de push
	// (normalmente el mismo email). Vacío = sin enrolar.
	PushHandle string

	// PasswordChanged indica si el usuario ya reemplazó la contraseña
	// provisional asignada al crear la cuenta.
	PasswordChanged bool

	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	DisabledAt        *time.Time
}

// Active indica si la cuenta puede iniciar sesión.
func (u *User) Active() bool { return u.DisabledAt == nil }

// CreateUserInput contiene los datos para crear un usuario.
type CreateUserInput struct {
	Email        string
	Name         string
	Role         types.Role
	PasswordHash string
	PushHandle   string
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// Create crea un usuario. Retorna el ID creado.
	// Retorna ErrConflict si el email ya existe.
	Create(ctx context.Context, input CreateUserInput) (string, error)

	// GetByEmail busca un usuario por email (case-insensitive).
	// Retorna ErrNotFound si no existe.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID busca un usuario por ID.
	// Retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*User, error)

	// UpdatePassword reemplaza el hash de contraseña y marca la cuenta
	// como "contraseña ya cambiada".
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}
