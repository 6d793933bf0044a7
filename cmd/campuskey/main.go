package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/campuskey/campuskey/internal/config"
	"github.com/campuskey/campuskey/internal/email"
	adminctrl "github.com/campuskey/campuskey/internal/http/controllers/admin"
	authctrl "github.com/campuskey/campuskey/internal/http/controllers/auth"
	healthctrl "github.com/campuskey/campuskey/internal/http/controllers/health"
	"github.com/campuskey/campuskey/internal/http/router"
	"github.com/campuskey/campuskey/internal/http/server"
	adminsvc "github.com/campuskey/campuskey/internal/http/services/admin"
	authsvc "github.com/campuskey/campuskey/internal/http/services/auth"
	jwtx "github.com/campuskey/campuskey/internal/jwt"
	"github.com/campuskey/campuskey/internal/metrics"
	"github.com/campuskey/campuskey/internal/mfa"
	"github.com/campuskey/campuskey/internal/mfa/push"
	"github.com/campuskey/campuskey/internal/oauth/google"
	"github.com/campuskey/campuskey/internal/observability/logger"
	"github.com/campuskey/campuskey/internal/rate"
	"github.com/campuskey/campuskey/internal/store/pg"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file, using system environment: %v", err)
	}

	configPath := flag.String("config", "configs/config.yaml", "ruta al config YAML")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       "info",
		ServiceName: "campuskey",
		Version:     version,
	})
	defer logger.Sync()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ───────── Base de datos ─────────
	db, err := pg.New(ctx, cfg.Storage.DSN, pg.Config{
		MaxConns:        int32(cfg.Storage.Postgres.MaxConns),
		MinConns:        int32(cfg.Storage.Postgres.MinConns),
		ConnMaxLifetime: parseDur(cfg.Storage.Postgres.ConnMaxLifetime, 30*time.Minute),
	})
	if err != nil {
		lg.Fatal("postgres init failed", logger.Err(err))
	}
	defer db.Close()

	// ───────── Sesiones de verificación ─────────
	var sessions mfa.Store
	var redisClient *rdb.Client
	switch cfg.Sessions.Kind {
	case "redis":
		redisClient = rdb.NewClient(&rdb.Options{
			Addr: cfg.Sessions.Redis.Addr,
			DB:   cfg.Sessions.Redis.DB,
		})
		sessions = mfa.NewRedisStore(redisClient)
		lg.Info("session store: redis", logger.String("addr", cfg.Sessions.Redis.Addr))
	default:
		sessions = mfa.NewMemoryStore()
		lg.Info("session store: memory")
	}
	defer sessions.Close()

	// ───────── Proveedor de segundo factor ─────────
	var provider push.Provider
	switch cfg.MFA.Provider {
	case "duo":
		provider = push.NewDuo(push.DuoConfig{
			Host:           cfg.MFA.Duo.Host,
			IntegrationKey: cfg.MFA.Duo.IntegrationKey,
			SecretKey:      cfg.MFA.Duo.SecretKey,
		})
		lg.Info("mfa provider: duo", logger.String("host", cfg.MFA.Duo.Host))
	default:
		provider = &push.Static{Passcode: cfg.MFA.Static.Passcode}
		lg.Warn("mfa provider: static (solo desarrollo)")
	}

	broker := mfa.NewBroker(sessions, provider, mfa.Config{
		LoginTTL:    cfg.MFA.LoginTTL,
		ActionTTL:   cfg.MFA.ActionTTL,
		MaxAttempts: cfg.MFA.MaxAttempts,
	})

	// ───────── Emisión de tokens ─────────
	seed, err := cfg.SigningSeed()
	if err != nil {
		lg.Fatal("signing key", logger.Err(err))
	}
	if seed == nil {
		lg.Warn("jwt: clave efímera generada, los tokens mueren con el proceso")
	}
	issuer, err := jwtx.NewIssuer(cfg.JWT.Issuer, cfg.JWT.Audience, seed, cfg.JWT.AccessTTL)
	if err != nil {
		lg.Fatal("jwt issuer", logger.Err(err))
	}

	// ───────── Email ─────────
	var sender email.Sender
	if cfg.SMTP.Host != "" {
		sender = email.FromConfig(email.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.From,
			TLSMode:   cfg.SMTP.TLS,
		})
	} else {
		sender = email.LogSender{}
		lg.Warn("smtp no configurado: los OTP se escriben al log")
	}

	// ───────── Services y controllers ─────────
	var oauthClient authsvc.OAuthVerifier
	if cfg.OAuth.Google.ClientID != "" {
		oauthClient = google.New(google.Config{
			ClientID:     cfg.OAuth.Google.ClientID,
			ClientSecret: cfg.OAuth.Google.ClientSecret,
			RedirectURL:  cfg.OAuth.Google.RedirectURL,
		})
	}

	services := authsvc.NewServices(authsvc.Deps{
		Users:        db.Users(),
		Tokens:       db.Tokens(),
		Issuer:       issuer,
		RefreshTTL:   cfg.JWT.RefreshTTL,
		Broker:       broker,
		OAuth:        oauthClient,
		Mail:         sender,
		OTPTTL:       cfg.Reset.OTPTTL,
		MaxResends:   cfg.Reset.MaxResends,
		ResendWindow: cfg.Reset.ResendWindow,
	})
	assignments := adminsvc.NewAssignmentsService(adminsvc.AssignmentsDeps{
		Assignments: db.Assignments(),
		StepUp:      services.StepUp,
	})

	if err := metrics.Register(nil); err != nil {
		lg.Fatal("metrics", logger.Err(err))
	}

	mux := http.NewServeMux()
	router.Register(router.Deps{
		Mux:      mux,
		Auth:     authctrl.NewControllers(services),
		Admin:    adminctrl.NewAssignmentsController(assignments),
		Health:   healthctrl.NewController(version, healthPingers(db, sessions)),
		Verifier: issuer,

		LoginLimiter:  buildLimiter(cfg.Rate.Enabled, redisClient, "rate:login", cfg.Rate.Login.Limit, cfg.Rate.Login.Window),
		ForgotLimiter: buildLimiter(cfg.Rate.Enabled, redisClient, "rate:forgot", cfg.Rate.Forgot.Limit, cfg.Rate.Forgot.Window),
		VerifyLimiter: buildLimiter(cfg.Rate.Enabled, redisClient, "rate:verify", cfg.Rate.Verify.Limit, cfg.Rate.Verify.Window),

		ExposeMetrics: true,
	})

	lg.Info("campuskey up",
		logger.String("addr", cfg.Server.Addr),
		logger.String("env", cfg.App.Env),
		logger.String("sessions", cfg.Sessions.Kind),
		logger.String("mfa_provider", cfg.MFA.Provider),
	)

	if err := server.Run(ctx, server.New(cfg.Server.Addr, mux)); err != nil {
		lg.Fatal("http server", logger.Err(err))
	}
	lg.Info("bye")
}

func healthPingers(db *pg.Store, sessions mfa.Store) map[string]healthctrl.Pinger {
	return map[string]healthctrl.Pinger{
		"db":       db,
		"sessions": sessions,
	}
}

// buildLimiter arma el limiter del endpoint. Con redis disponible usa la
// ventana compartida entre réplicas; si no, cae a la ventana en memoria.
func buildLimiter(enabled bool, client *rdb.Client, prefix string, max int, window string) rate.Limiter {
	if !enabled || max <= 0 {
		return nil
	}
	w := parseDur(window, time.Minute)
	if client != nil {
		return rate.NewRedisLimiter(client, prefix, max, w)
	}
	return rate.NewMemoryLimiter(max, w)
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
