// Package router registra las rutas del servicio sobre un http.ServeMux.
package router

import (
	"net/http"

	"github.com/campuskey/campuskey/internal/domain/types"
	adminctrl "github.com/campuskey/campuskey/internal/http/controllers/admin"
	authctrl "github.com/campuskey/campuskey/internal/http/controllers/auth"
	healthctrl "github.com/campuskey/campuskey/internal/http/controllers/health"
	mw "github.com/campuskey/campuskey/internal/http/middlewares"
	"github.com/campuskey/campuskey/internal/metrics"
	"github.com/campuskey/campuskey/internal/rate"
)

// Deps contiene todo lo necesario para registrar las rutas.
type Deps struct {
	Mux *http.ServeMux

	Auth   *authctrl.Controllers
	Admin  *adminctrl.AssignmentsController
	Health *healthctrl.Controller

	// Verifier valida access tokens para las rutas protegidas.
	Verifier mw.TokenVerifier

	// Limiters por endpoint sensible. nil = sin límite.
	LoginLimiter  rate.Limiter
	ForgotLimiter rate.Limiter
	VerifyLimiter rate.Limiter

	// ExposeMetrics publica /metrics en este mux.
	ExposeMetrics bool
}

// Register registra todas las rutas con sus cadenas de middlewares.
func Register(d Deps) {
	mux := d.Mux

	// Cadena base de todo endpoint: request id, recover, headers, logging.
	base := []mw.Middleware{
		mw.WithRequestID(),
		mw.WithRecover(),
		mw.WithSecurityHeaders(),
		mw.WithLogging(),
	}

	// Endpoints de credenciales: además, nunca cachear.
	cred := append(append([]mw.Middleware{}, base...), mw.WithNoStore())

	authn := mw.RequireAuth(d.Verifier)
	adminOnly := mw.RequireRole(types.RoleCollegeAdmin, types.RoleAcademicCoordinator)

	public := func(h http.HandlerFunc, extra ...mw.Middleware) http.Handler {
		return mw.ChainFunc(h, append(append([]mw.Middleware{}, cred...), extra...)...)
	}
	private := func(h http.HandlerFunc, extra ...mw.Middleware) http.Handler {
		mws := append(append([]mw.Middleware{}, cred...), authn)
		return mw.ChainFunc(h, append(mws, extra...)...)
	}

	// ── Autenticación ────────────────────────────────────────────────
	mux.Handle("/auth/login", public(d.Auth.Login.Login,
		mw.WithRateLimit(d.LoginLimiter, mw.KeyByEmail)))
	mux.Handle("/auth/oauth-login", public(d.Auth.Login.OAuthLogin,
		mw.WithRateLimit(d.LoginLimiter, mw.KeyByIP)))
	mux.Handle("/auth/mfa/verify", public(d.Auth.MFA.Verify,
		mw.WithRateLimit(d.VerifyLimiter, mw.KeyByIP)))
	mux.Handle("/auth/refresh", public(d.Auth.Refresh.Refresh))
	mux.Handle("/auth/logout", public(d.Auth.Refresh.Logout))

	// ── Step-up por acción (requiere sesión) ─────────────────────────
	mux.Handle("/auth/action-mfa/initiate", private(d.Auth.StepUp.Initiate))
	mux.Handle("/auth/action-mfa/check", private(d.Auth.StepUp.Check))
	mux.Handle("/auth/action-mfa/verify", private(d.Auth.StepUp.Verify,
		mw.WithRateLimit(d.VerifyLimiter, mw.KeyByIP)))

	// ── Restablecimiento de contraseña ───────────────────────────────
	mux.Handle("/auth/forgot-password", public(d.Auth.Reset.Request,
		mw.WithRateLimit(d.ForgotLimiter, mw.KeyByEmail)))
	mux.Handle("/auth/forgot-password/verify", public(d.Auth.Reset.Verify,
		mw.WithRateLimit(d.VerifyLimiter, mw.KeyByIP)))
	mux.Handle("/auth/forgot-password/reset", public(d.Auth.Reset.Reset))

	mux.Handle("/auth/change-password", private(d.Auth.Password.Change))

	// ── Administración ───────────────────────────────────────────────
	mux.Handle("/admin/assignments/bulk", private(d.Admin.BulkCreate, adminOnly))
	mux.Handle("/admin/assignments", private(d.Admin.List, adminOnly))

	// ── Operación ────────────────────────────────────────────────────
	healthChain := []mw.Middleware{mw.WithRecover()}
	mux.Handle("/healthz", mw.ChainFunc(d.Health.Healthz, healthChain...))
	mux.Handle("/readyz", mw.ChainFunc(d.Health.Readyz, healthChain...))
	if d.ExposeMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}
}
