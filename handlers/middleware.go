package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/CrowderSoup/workboard/services"
)

type contextKey string

const identityContextKey contextKey = "identity"

type AuthMiddleware struct {
	authService *services.AuthService
}

func NewAuthMiddleware(authService *services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
	}
}

// bearerToken extracts the token from the Authorization header. Browsers
// cannot set headers on websocket upgrades, so a token query parameter is
// accepted too.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		token := r.URL.Query().Get("token")
		return token, token != ""
	}
	authParts := strings.Split(authHeader, " ")
	if len(authParts) != 2 || authParts[0] != "Bearer" {
		return "", false
	}
	return authParts[1], true
}

func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
			return
		}

		id, err := m.authService.VerifyJWT(tokenString)
		if err != nil {
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identityFrom(r *http.Request) (services.Identity, bool) {
	id, ok := r.Context().Value(identityContextKey).(services.Identity)
	return id, ok
}

// withIdentity adapts a handler that needs the caller's identity.
func withIdentity(h func(http.ResponseWriter, *http.Request, services.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFrom(r)
		if !ok {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}
		h(w, r, id)
	}
}
