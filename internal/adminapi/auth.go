package adminapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "adminapi.principal"

// Principal is the authenticated caller extracted from a verified bearer
// token.
type Principal struct {
	Subject string
	Scopes  []string
}

// PrincipalFromContext returns the Principal attached by AuthMiddleware,
// or nil if the request was unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(*Principal)
	return p
}

// TokenVerifier validates bearer tokens signed with a shared secret and,
// when a scope is configured, requires it on every request it guards.
type TokenVerifier struct {
	secret     []byte
	writeScope string
}

// NewTokenVerifier builds a verifier. secret is the HMAC signing key;
// writeScope is the scope Middleware requires in the token's "scope"
// claim; an empty writeScope disables the check.
func NewTokenVerifier(secret []byte, writeScope string) *TokenVerifier {
	return &TokenVerifier{secret: secret, writeScope: writeScope}
}

func (v *TokenVerifier) verify(tokenStr string) (*Principal, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("adminapi: unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("adminapi: invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("adminapi: invalid claims")
	}

	subject, _ := claims.GetSubject()
	principal := &Principal{Subject: subject}

	switch scopes := claims["scope"].(type) {
	case string:
		principal.Scopes = strings.Fields(scopes)
	case []interface{}:
		for _, s := range scopes {
			if str, ok := s.(string); ok {
				principal.Scopes = append(principal.Scopes, str)
			}
		}
	}

	return principal, nil
}

func (p *Principal) hasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Middleware extracts and verifies a Bearer token, attaching the
// resulting Principal to the request context. Requests without a valid
// token are rejected with 401; a valid token lacking the configured scope
// is rejected with 403.
func (v *TokenVerifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		principal, err := v.verify(strings.TrimPrefix(authz, "Bearer "))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		if v.writeScope != "" && !principal.hasScope(v.writeScope) {
			http.Error(w, "missing required scope", http.StatusForbidden)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
