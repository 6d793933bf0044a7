package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuskey/campuskey/internal/mfa/push"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// Mensajes para el usuario final según cómo quedó la sesión al iniciarla.
const (
	msgPushSent = "Notificación push enviada. Apruebe la solicitud desde su dispositivo."
	msgDegraded = "No pudimos enviar la notificación push. Ingrese el código generado por su aplicación para continuar."
	msgPasscode = "Ingrese el código generado por su aplicación para continuar."
)

// ErrPasscodeRejected indica que el proveedor rechazó el código.
// La sesión retornada junto al error refleja intentos y posible bloqueo.
var ErrPasscodeRejected = errors.New("mfa: passcode rejected")

// Config son los parámetros operativos del broker.
type Config struct {
	LoginTTL    time.Duration // default 5m
	ActionTTL   time.Duration // default 10m
	MaxAttempts int           // intentos de passcode antes de DENIED, default 5
}

func (c Config) withDefaults() Config {
	if c.LoginTTL <= 0 {
		c.LoginTTL = 5 * time.Minute
	}
	if c.ActionTTL <= 0 {
		c.ActionTTL = 10 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Subject identifica al usuario que debe verificar.
type Subject struct {
	UserID string
	Email  string
	// Handle ante el proveedor de push. Vacío = sin enrolar, solo passcode.
	Handle string
}

// InitiateResult es lo que el caller comunica al cliente tras iniciar
// una verificación.
type InitiateResult struct {
	Session *Session

	// PushSent indica si la notificación push salió. false no es error:
	// la sesión queda PENDING esperando passcode (modo degradado).
	PushSent bool

	// Message es el texto para mostrar al usuario.
	Message string
}

// Broker orquesta sesiones de verificación contra el Store y el Provider.
type Broker struct {
	store    Store
	provider push.Provider
	cfg      Config
}

// NewBroker crea el broker. Aplica defaults a la configuración.
func NewBroker(store Store, provider push.Provider, cfg Config) *Broker {
	return &Broker{store: store, provider: provider, cfg: cfg.withDefaults()}
}

// Initiate crea una sesión PENDING para el usuario e intenta el push.
//
// El fallo del push NO falla la operación: la sesión se persiste igual y el
// resultado indica el modo degradado para que el cliente pida passcode.
func (b *Broker) Initiate(ctx context.Context, sub Subject, purpose Purpose, action string) (*InitiateResult, error) {
	log := logger.From(ctx).With(logger.Layer("mfa"), logger.Op("initiate"))

	ttl := b.cfg.LoginTTL
	if purpose == PurposeAction {
		ttl = b.cfg.ActionTTL
	}

	s := NewSession(purpose, sub.UserID, sub.Email, ttl)
	s.Handle = sub.Handle
	s.Action = action

	res := &InitiateResult{Session: s}

	if sub.Handle == "" {
		s.Method = MethodPasscode
		res.Message = msgPasscode
	} else {
		// Paso 1: intentar el push antes de persistir, así la sesión se
		// guarda una sola vez ya con el txid (o sin él, degradada).
		txID, err := b.provider.Dispatch(ctx, sub.Handle)
		switch {
		case err == nil:
			s.Method = MethodPush
			s.PushTxID = txID
			res.PushSent = true
			res.Message = msgPushSent
		default:
			log.Warn("push dispatch failed, degrading to passcode",
				logger.SessionID(s.ID), logger.Purpose(string(purpose)), logger.Err(err))
			s.Method = MethodPasscode
			res.Message = msgDegraded
		}
	}

	// Paso 2: persistir la sesión PENDING.
	if err := b.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("mfa: initiate: %w", err)
	}

	log.Info("verification session created",
		logger.SessionID(s.ID),
		logger.Purpose(string(purpose)),
		logger.MFAMethod(string(s.Method)),
		logger.Bool("push_sent", res.PushSent),
	)
	return res, nil
}

// Poll consulta el estado de la sesión y, si hay una transacción push en
// curso, sincroniza el resultado del proveedor.
//
// Un fallo transitorio del proveedor deja la sesión PENDING (se loguea y el
// cliente reintenta en el próximo poll).
func (b *Broker) Poll(ctx context.Context, purpose Purpose, id string) (*Session, error) {
	s, err := b.store.Get(ctx, purpose, id)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() || s.PushTxID == "" {
		return s, nil
	}

	outcome, err := b.provider.Status(ctx, s.PushTxID)
	if err != nil {
		logger.From(ctx).Warn("push status check failed",
			logger.Layer("mfa"), logger.Op("poll"),
			logger.SessionID(s.ID), logger.Err(err))
		return s, nil
	}

	switch outcome {
	case push.OutcomeAllow:
		s, _, err = b.store.Transition(ctx, purpose, id, StatusApproved)
	case push.OutcomeDeny:
		s, _, err = b.store.Transition(ctx, purpose, id, StatusDenied)
	default:
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// VerifyPasscode valida un código contra el proveedor y aprueba la sesión.
//
// Código incorrecto retorna ErrPasscodeRejected junto con la sesión (que
// puede haber quedado DENIED si se agotaron los intentos). Un código
// correcto sobre una sesión ya terminal no la revive: se retorna el estado
// que quedó y won lo decide el CAS del store.
func (b *Broker) VerifyPasscode(ctx context.Context, purpose Purpose, id, code string) (*Session, error) {
	s, err := b.store.Get(ctx, purpose, id)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return s, nil
	}

	handle := s.Handle
	if handle == "" {
		handle = s.Email
	}

	ok, err := b.provider.VerifyPasscode(ctx, handle, code)
	if err != nil {
		return s, fmt.Errorf("mfa: verify passcode: %w", err)
	}

	if !ok {
		s, locked, ferr := b.store.RecordFailure(ctx, purpose, id, b.cfg.MaxAttempts)
		if ferr != nil {
			return nil, ferr
		}
		if locked {
			logger.From(ctx).Warn("session locked after too many passcode failures",
				logger.Layer("mfa"), logger.SessionID(id), logger.Int("attempts", s.Attempts))
		}
		return s, ErrPasscodeRejected
	}

	s, _, err = b.store.Transition(ctx, purpose, id, StatusApproved)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Consume destruye la sesión. Solo el primer caller recibe true: es la
// garantía de un solo uso para emitir tokens o ejecutar la acción protegida.
func (b *Broker) Consume(ctx context.Context, purpose Purpose, id string) (bool, error) {
	return b.store.Consume(ctx, purpose, id)
}

// Get expone la lectura directa (con expiración perezosa) para flujos que
// no necesitan sincronizar con el proveedor.
func (b *Broker) Get(ctx context.Context, purpose Purpose, id string) (*Session, error) {
	return b.store.Get(ctx, purpose, id)
}

// Store expone el store subyacente para flujos que manejan sus propias
// sesiones (restablecimiento de contraseña por OTP).
func (b *Broker) Store() Store { return b.store }
