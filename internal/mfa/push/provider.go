// Package push abstrae el proveedor externo de segundo factor (push a la
// app del usuario y verificación de passcodes generados por esa app).
package push

import (
	"context"
	"errors"
)

// Outcome es el resultado de una transacción push del lado del proveedor.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeAllow   Outcome = "allow"
	OutcomeDeny    Outcome = "deny"
)

// ErrUnavailable indica que el proveedor no respondió o rechazó el envío.
// El caller debe degradar a passcode, no fallar el flujo completo.
var ErrUnavailable = errors.New("push: provider unavailable")

// Provider es el contrato mínimo con el proveedor de MFA.
type Provider interface {
	// Dispatch envía una notificación push asíncrona al dispositivo del
	// usuario. Retorna el ID de transacción del proveedor.
	Dispatch(ctx context.Context, handle string) (txID string, err error)

	// Status consulta el estado de una transacción push.
	Status(ctx context.Context, txID string) (Outcome, error)

	// VerifyPasscode valida un código generado por la app del usuario.
	// Retorna (false, nil) para un código incorrecto; error solo ante
	// fallas del proveedor.
	VerifyPasscode(ctx context.Context, handle, code string) (bool, error)
}
