package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Verifier is the HTTP authentication layer. When no JWKS endpoint is
// configured it runs open: every request passes and capability checks are
// skipped, which is the local/development mode.
type Verifier struct {
	validator *JWTValidator
	logger    *zap.Logger
}

// NewVerifier creates the middleware layer over a JWKS validator.
// validator may be nil or unconfigured for open mode.
func NewVerifier(validator *JWTValidator, logger *zap.Logger) *Verifier {
	v := &Verifier{validator: validator, logger: logger}
	if !v.enabled() {
		logger.Warn("JWKS not configured, running with authentication disabled")
	}
	return v
}

func (v *Verifier) enabled() bool {
	return v.validator != nil && v.validator.IsConfigured()
}

// Authenticate validates the bearer token when auth is enabled and stores
// the subject and capabilities in the request context. Requests without a
// token still pass; capability enforcement happens in Require.
func (v *Verifier) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			writeAuthError(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}

		claims, err := v.validator.ValidateToken(token)
		if err != nil {
			v.logger.Debug("Token validation failed", zap.Error(err))
			writeAuthError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := WithSubject(r.Context(), claims.Subject)
		ctx = WithCaps(ctx, claims.Caps)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require gates a route on one capability. With auth disabled it is a
// pass-through.
func (v *Verifier) Require(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !v.enabled() {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := SubjectFromContext(r.Context()); !ok {
				writeAuthError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !HasCap(r.Context(), capability) {
				writeAuthError(w, http.StatusForbidden, "missing capability: "+capability)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allowed reports whether the request context carries the capability.
// Always true in open mode. Used for capabilities that depend on request
// parameters, like relayer:<protocol>.
func (v *Verifier) Allowed(ctx context.Context, capability string) bool {
	if !v.enabled() {
		return true
	}
	return HasCap(ctx, capability)
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
		"kind":  "authorization",
		"code":  status,
	})
}
