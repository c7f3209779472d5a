package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/domain/auth"
)

// Verifier resolves a bearer token to an actor.
type Verifier interface {
	Verify(token string) (auth.Actor, error)
}

// Authenticate requires an "Authorization: Bearer <token>" header, verifies
// it and stores the actor with auth.WithActor. Failures get a 401.
func Authenticate(v Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="stockroom"`)
				WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			actor, err := v.Verify(token)
			if err != nil {
				zctx.From(r.Context()).Debug("Rejected token", zap.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="stockroom", error="invalid_token"`)
				WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := zctx.With(auth.WithActor(r.Context(), actor), zap.String("actor", actor.Email))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
