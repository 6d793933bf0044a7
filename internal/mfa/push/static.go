package push

import (
	"context"
	"crypto/subtle"
)

// Static es un proveedor para entornos de desarrollo sin Duo configurado.
// Dispatch siempre falla (el flujo degrada a passcode) y VerifyPasscode
// compara contra un código fijo.
type Static struct {
	Passcode string
}

func (s *Static) Dispatch(_ context.Context, _ string) (string, error) {
	return "", ErrUnavailable
}

func (s *Static) Status(_ context.Context, _ string) (Outcome, error) {
	return OutcomePending, nil
}

func (s *Static) VerifyPasscode(_ context.Context, _, code string) (bool, error) {
	if s.Passcode == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(s.Passcode), []byte(code)) == 1, nil
}
