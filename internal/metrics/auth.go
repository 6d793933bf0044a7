package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth-related Prometheus metrics. Standalone package to avoid import cycles
// between services and HTTP packages.

var (
	LoginAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_attempts_total",
		Help: "Intentos de login por resultado (success, invalid_credentials, mfa_required)",
	}, []string{"result"})

	MFASessions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_mfa_sessions_total",
		Help: "Sesiones MFA por propósito y estado final",
	}, []string{"purpose", "status"})

	PushDispatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_push_dispatches_total",
		Help: "Envíos de push por resultado (sent, degraded)",
	}, []string{"result"})

	TokenRotations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Rotaciones de refresh token por resultado (rotated, reuse_detected, expired, not_found)",
	}, []string{"result"})

	ResetFlows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_password_resets_total",
		Help: "Flujos de restablecimiento por etapa (requested, verified, completed)",
	}, []string{"stage"})
)

// Register registra las métricas en el registry dado (default si es nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		LoginAttempts, MFASessions, PushDispatches, TokenRotations, ResetFlows,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// Handler devuelve el handler para /metrics sobre el registry default.
func Handler() http.Handler {
	return promhttp.Handler()
}
