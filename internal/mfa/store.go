package mfa

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indica que la sesión no existe o ya fue consumida.
var ErrNotFound = errors.New("mfa: session not found")

// retention mantiene las sesiones vencidas un tiempo extra en el backend
// para que un cliente que llega tarde reciba EXPIRED y no "no existe".
const retention = 30 * time.Minute

// Store persiste sesiones de verificación.
//
// Todas las mutaciones son compare-and-set: bajo concurrencia (aprobar vs
// expirar, doble verificación del mismo passcode) exactamente un caller
// observa won=true y el resto ve el estado final que quedó.
type Store interface {
	// Save persiste la sesión. Sobrescribe cualquier sesión previa con la
	// misma clave (purpose, id).
	Save(ctx context.Context, s *Session) error

	// Get retorna la sesión. Aplica expiración perezosa: si sigue PENDING
	// pero su ExpiresAt ya pasó, la transiciona a EXPIRED antes de retornarla.
	Get(ctx context.Context, purpose Purpose, id string) (*Session, error)

	// Transition intenta PENDING→to y retorna la sesión resultante.
	// won=false significa que otra transición ganó primero; la sesión
	// retornada refleja el estado que quedó. La expiración perezosa corre
	// antes del intento.
	Transition(ctx context.Context, purpose Purpose, id string, to Status) (s *Session, won bool, err error)

	// RecordFailure incrementa el contador de intentos fallidos. Al llegar
	// a max la sesión pasa a DENIED. locked=true indica que ESTA llamada
	// la bloqueó. Sobre una sesión ya terminal no hace nada (won-less).
	RecordFailure(ctx context.Context, purpose Purpose, id string, max int) (s *Session, locked bool, err error)

	// Consume elimina la sesión. Retorna true solo para el primer caller:
	// el segundo Consume del mismo ID retorna false.
	Consume(ctx context.Context, purpose Purpose, id string) (bool, error)

	// Ping verifica la salud del backend.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error
}

// sessionKey construye la clave con namespace por propósito.
func sessionKey(p Purpose, id string) string {
	return "mfa:" + string(p) + ":" + id
}

// backendTTL calcula cuánto debe vivir la entrada en el backend.
func backendTTL(s *Session, now time.Time) time.Duration {
	ttl := s.ExpiresAt.Add(retention).Sub(now)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl
}

// applyLazyExpiry marca EXPIRED en memoria si corresponde. Retorna true si
// mutó la sesión (el caller debe persistirla).
func applyLazyExpiry(s *Session, now time.Time) bool {
	if s.Status == StatusPending && s.ExpiredAt(now) {
		s.Status = StatusExpired
		return true
	}
	return false
}

// applyTransition ejecuta el CAS PENDING→to sobre la sesión ya cargada.
// Retorna true si esta llamada realizó la transición. La expiración perezosa
// corre primero: si la sesión venció, gana EXPIRED sin importar el `to` pedido
// (salvo que el `to` pedido fuera justamente EXPIRED).
func applyTransition(s *Session, to Status, now time.Time) bool {
	if applyLazyExpiry(s, now) {
		return to == StatusExpired
	}
	if s.Status.Terminal() {
		return false
	}
	s.Status = to
	if to == StatusApproved {
		t := now
		s.VerifiedAt = &t
	}
	return true
}

// applyFailure registra un intento fallido sobre la sesión ya cargada.
// Retorna true si este intento la bloqueó (pasó a DENIED).
func applyFailure(s *Session, max int, now time.Time) bool {
	if applyLazyExpiry(s, now) {
		return false
	}
	if s.Status.Terminal() {
		return false
	}
	s.Attempts++
	if max > 0 && s.Attempts >= max {
		s.Status = StatusDenied
		return true
	}
	return false
}
