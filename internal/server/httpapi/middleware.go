package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/openchat-im/openchat/internal/server/auth"
)

type contextKey string

const usernameKey contextKey = "username"

// usernameFrom returns the authenticated username stored by authMiddleware.
func usernameFrom(r *http.Request) string {
	if v, ok := r.Context().Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// authMiddleware validates the session token. It accepts the usual Bearer
// header and, for websocket upgrades where browsers cannot set headers, a
// token query parameter.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
			return
		}

		username, err := auth.GetUsernameFromToken(token, s.secretKey)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), usernameKey, username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
