package middlewares

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/campuskey/campuskey/internal/domain/types"
	"github.com/campuskey/campuskey/internal/http/errors"
	"github.com/campuskey/campuskey/internal/jwt"
	"github.com/campuskey/campuskey/internal/observability/logger"
)

// TokenVerifier valida un access token y retorna sus claims.
type TokenVerifier interface {
	VerifyAccess(token string) (*jwt.Claims, error)
}

// bearerToken extrae el token del header Authorization.
func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireAuth valida el access token y deja los claims en el contexto.
// Distingue token vencido (TOKEN_EXPIRED) de token inválido para que el
// cliente sepa cuándo refrescar y cuándo re-autenticar.
func RequireAuth(verifier TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}

			claims, err := verifier.VerifyAccess(raw)
			if err != nil {
				switch {
				case stderrors.Is(err, jwt.ErrTokenExpired):
					errors.WriteError(w, errors.ErrTokenExpired)
				default:
					errors.WriteError(w, errors.ErrTokenInvalid)
				}
				return
			}

			ctx := WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole exige que el token traiga uno de los roles dados.
// Aplicar siempre después de RequireAuth.
func RequireRole(roles ...types.Role) Middleware {
	allowed := make(map[types.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaims(r.Context())
			if claims == nil {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}
			role, ok := types.ParseRole(claims.Role)
			if !ok {
				errors.WriteError(w, errors.ErrForbidden)
				return
			}
			if _, ok := allowed[role]; !ok {
				logger.From(r.Context()).Warn("role denied",
					logger.Role(string(role)), logger.Path(r.URL.Path))
				errors.WriteError(w, errors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
