/**
 * @description
 * This file contains custom middleware for the HTTP router. The entitlements
 * and credit endpoints are called service-to-service by the rendering
 * backend, authenticated with a shared-secret HS256 JWT.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CallerContextKey is a custom type for the context key to avoid collisions.
type CallerContextKey string

const serviceCallerKey CallerContextKey = "serviceCaller"

// ServiceAuthMiddleware creates a middleware that validates shared-secret
// HS256 JWTs issued to internal services.
func ServiceAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			// Extract the token from "Bearer <token>"
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				http.Error(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}

			caller, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), serviceCallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext retrieves the authenticated service caller from the
// request context.
func CallerFromContext(ctx context.Context) (string, bool) {
	caller, ok := ctx.Value(serviceCallerKey).(string)
	return caller, ok
}
