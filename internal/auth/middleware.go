// TribeWatch - Conquest and Building Notifications for Game Worlds
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tribewatch

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/tribewatch/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the *Claims of an authenticated request.
const ClaimsContextKey contextKey = "claims"

// Middleware enforces bearer authentication when a manager is configured.
type Middleware struct {
	jwtManager *JWTManager
	onFailure  func(w http.ResponseWriter, r *http.Request, message string)
}

// NewMiddleware creates the middleware. A nil manager disables
// authentication. onFailure writes the 401 response; nil uses http.Error.
func NewMiddleware(jwtManager *JWTManager, onFailure func(w http.ResponseWriter, r *http.Request, message string)) *Middleware {
	if onFailure == nil {
		onFailure = func(w http.ResponseWriter, _ *http.Request, message string) {
			http.Error(w, message, http.StatusUnauthorized)
		}
	}
	return &Middleware{jwtManager: jwtManager, onFailure: onFailure}
}

// Enabled reports whether requests are authenticated.
func (m *Middleware) Enabled() bool {
	return m.jwtManager != nil
}

// Authenticate is chi-compatible middleware requiring a valid bearer token.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.jwtManager == nil {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			m.onFailure(w, r, "missing or malformed bearer token")
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
			m.onFailure(w, r, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for browser WebSocket clients.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if t := r.URL.Query().Get("access_token"); t != "" {
			return t, true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ClaimsFromContext returns the claims of an authenticated request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}
