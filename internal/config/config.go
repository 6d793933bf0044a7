package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	// Sessions define dónde viven las sesiones de verificación.
	Sessions struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"sessions"`

	MFA struct {
		Provider    string        `yaml:"provider"` // duo | static
		LoginTTL    time.Duration `yaml:"login_ttl"`
		ActionTTL   time.Duration `yaml:"action_ttl"`
		MaxAttempts int           `yaml:"max_attempts"`

		Duo struct {
			Host           string `yaml:"host"`
			IntegrationKey string `yaml:"integration_key"`
			SecretKey      string `yaml:"secret_key"`
		} `yaml:"duo"`

		// Static es el proveedor de desarrollo: passcode fijo, sin push.
		Static struct {
			Passcode string `yaml:"passcode"`
		} `yaml:"static"`
	} `yaml:"mfa"`

	// OAuth configura el login social. Client ID vacío lo deshabilita.
	OAuth struct {
		Google struct {
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
			RedirectURL  string `yaml:"redirect_url"`
		} `yaml:"google"`
	} `yaml:"oauth"`

	JWT struct {
		Issuer     string        `yaml:"issuer"`
		Audience   string        `yaml:"audience"`
		SigningKey string        `yaml:"signing_key"` // base64(32 bytes); vacío = clave efímera dev
		AccessTTL  time.Duration `yaml:"access_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	Reset struct {
		OTPTTL       time.Duration `yaml:"otp_ttl"`
		MaxResends   int           `yaml:"max_resends"`
		ResendWindow time.Duration `yaml:"resend_window"`
	} `yaml:"reset"`

	Rate struct {
		Enabled bool `yaml:"enabled"`

		Login struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"login"`

		Forgot struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"forgot"`

		Verify struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"verify"`
	} `yaml:"rate"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		TLS      string `yaml:"tls"` // auto | starttls | ssl | none
	} `yaml:"smtp"`
}

// Load lee el YAML (si existe), aplica defaults y luego overrides de entorno.
// Un path inexistente no es error: dev puede arrancar solo con env vars.
func Load(path string) (*Config, error) {
	var c Config

	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Sessions.Kind == "" {
		c.Sessions.Kind = "memory"
	}
	if c.Sessions.Redis.Addr == "" {
		c.Sessions.Redis.Addr = "localhost:6379"
	}
	if c.MFA.Provider == "" {
		c.MFA.Provider = "static"
	}
	if c.MFA.LoginTTL == 0 {
		c.MFA.LoginTTL = 5 * time.Minute
	}
	if c.MFA.ActionTTL == 0 {
		c.MFA.ActionTTL = 10 * time.Minute
	}
	if c.MFA.MaxAttempts == 0 {
		c.MFA.MaxAttempts = 5
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "http://localhost:8080"
	}
	if c.JWT.Audience == "" {
		c.JWT.Audience = "campuskey-api"
	}
	if c.JWT.AccessTTL == 0 {
		c.JWT.AccessTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTTL == 0 {
		c.JWT.RefreshTTL = 720 * time.Hour // 30d
	}
	if c.Reset.OTPTTL == 0 {
		c.Reset.OTPTTL = 5 * time.Minute
	}
	if c.Reset.MaxResends == 0 {
		c.Reset.MaxResends = 5
	}
	if c.Reset.ResendWindow == 0 {
		c.Reset.ResendWindow = 5 * time.Minute
	}
	if c.Rate.Login.Limit == 0 {
		c.Rate.Login.Limit = 10
	}
	if c.Rate.Login.Window == "" {
		c.Rate.Login.Window = "1m"
	}
	if c.Rate.Forgot.Limit == 0 {
		c.Rate.Forgot.Limit = 5
	}
	if c.Rate.Forgot.Window == "" {
		c.Rate.Forgot.Window = "10m"
	}
	if c.Rate.Verify.Limit == 0 {
		c.Rate.Verify.Limit = 20
	}
	if c.Rate.Verify.Window == "" {
		c.Rate.Verify.Window = "1m"
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("SESSIONS_KIND"); ok {
		c.Sessions.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Sessions.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Sessions.Redis.DB = v
	}
	if v, ok := getEnvStr("MFA_PROVIDER"); ok {
		c.MFA.Provider = v
	}
	if v, ok := getEnvDur("MFA_LOGIN_TTL"); ok {
		c.MFA.LoginTTL = v
	}
	if v, ok := getEnvDur("MFA_ACTION_TTL"); ok {
		c.MFA.ActionTTL = v
	}
	if v, ok := getEnvInt("MFA_MAX_ATTEMPTS"); ok {
		c.MFA.MaxAttempts = v
	}
	if v, ok := getEnvStr("DUO_HOST"); ok {
		c.MFA.Duo.Host = v
	}
	if v, ok := getEnvStr("DUO_IKEY"); ok {
		c.MFA.Duo.IntegrationKey = v
	}
	if v, ok := getEnvStr("DUO_SKEY"); ok {
		c.MFA.Duo.SecretKey = v
	}
	if v, ok := getEnvStr("MFA_STATIC_PASSCODE"); ok {
		c.MFA.Static.Passcode = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_ID"); ok {
		c.OAuth.Google.ClientID = v
	}
	if v, ok := getEnvStr("GOOGLE_CLIENT_SECRET"); ok {
		c.OAuth.Google.ClientSecret = v
	}
	if v, ok := getEnvStr("GOOGLE_REDIRECT_URL"); ok {
		c.OAuth.Google.RedirectURL = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_AUDIENCE"); ok {
		c.JWT.Audience = v
	}
	if v, ok := getEnvStr("JWT_SIGNING_KEY"); ok {
		c.JWT.SigningKey = v
	}
	if v, ok := getEnvDur("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvDur("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v
	}
	if v, ok := getEnvDur("RESET_OTP_TTL"); ok {
		c.Reset.OTPTTL = v
	}
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = v
	}
}

// SigningSeed decodifica la clave de firma. Retorna nil si no está configurada
// (el emisor genera una clave efímera de desarrollo).
func (c *Config) SigningSeed() ([]byte, error) {
	if c.JWT.SigningKey == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(c.JWT.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("config: jwt.signing_key no es base64 válido: %w", err)
	}
	return b, nil
}

// IsProd indica si corre en producción.
func (c *Config) IsProd() bool { return c.App.Env == "prod" }

// Validate valida los valores críticos.
func (c *Config) Validate() error {
	if c.IsProd() {
		if c.JWT.SigningKey == "" {
			return fmt.Errorf("config: jwt.signing_key es obligatorio en prod")
		}
		if c.MFA.Provider == "static" {
			return fmt.Errorf("config: mfa.provider=static no está permitido en prod")
		}
	}
	switch c.Sessions.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: sessions.kind debe ser memory o redis, no %q", c.Sessions.Kind)
	}
	return nil
}
