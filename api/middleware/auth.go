package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/walletcore-backend/api/responses"
	pkgauth "github.com/angelmondragon/walletcore-backend/pkg/auth"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/walletcore-backend/pkg/errors"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
)

// Auth validates the service bearer token and seeds the request context with
// the calling service's name.
func Auth(cfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseServiceToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithCaller(r.Context(), claims.Service)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"caller_service": claims.Service,
				})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
