package middlewares

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/campuskey/campuskey/internal/http/errors"
	"github.com/campuskey/campuskey/internal/observability/logger"
	"github.com/campuskey/campuskey/internal/rate"
)

// clientIP extrae la IP del cliente, considerando proxies.
func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// extractJSONField lee hasta max bytes del body JSON para extraer un campo
// y repone el body para el handler.
func extractJSONField(r *http.Request, field string, max int64) string {
	if r.Method != http.MethodPost ||
		!strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	var buf bytes.Buffer
	_, _ = io.CopyN(&buf, r.Body, max)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))

	var tmp map[string]any
	if err := json.Unmarshal(buf.Bytes(), &tmp); err == nil {
		if s, ok := tmp[field].(string); ok {
			return s
		}
	}
	return ""
}

// RateKeyFunc define cómo generar la clave de rate limiting.
type RateKeyFunc func(r *http.Request) string

// KeyByIP limita por IP y path.
func KeyByIP(r *http.Request) string {
	return clientIP(r) + ":" + r.URL.Path
}

// KeyByEmail limita por el campo email del body (anti fuerza bruta por
// cuenta) con fallback a IP si no hay email.
func KeyByEmail(r *http.Request) string {
	if email := extractJSONField(r, "email", 4096); email != "" {
		return "email:" + strings.ToLower(strings.TrimSpace(email)) + ":" + r.URL.Path
	}
	return KeyByIP(r)
}

// WithRateLimit aplica el limiter con la clave dada. Un limiter nil
// desactiva el middleware (dev sin redis).
func WithRateLimit(l rate.Limiter, keyFn RateKeyFunc) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				// Backend de rate caído: dejamos pasar y avisamos.
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				errors.WriteError(w, errors.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
