package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ayo6706/logistics-wallet/internal/api/problem"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	principalContextKey contextKey = "principal"
	traceContextKey     contextKey = "trace_id"
)

// RoleAdmin may read every wallet and the admin listings.
const RoleAdmin = "admin"

var (
	jwtSecret   []byte
	jwtIssuer   string
	jwtAudience string
)

// Principal is the caller a bearer token was issued to. Tokens are minted by the
// logistics platform; BusinessID scopes which wallets a non-admin may touch.
type Principal struct {
	UserID     string
	Role       string
	BusinessID string
}

// IsAdmin reports whether the principal may act on any business.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Scope is the namespace used for per-caller state such as idempotency keys.
func (p Principal) Scope() string {
	if p.BusinessID != "" {
		return "business:" + p.BusinessID
	}
	return "user:" + p.UserID
}

type walletClaims struct {
	UserID     string `json:"user_id"`
	Role       string `json:"role"`
	BusinessID string `json:"business_id"`
	jwt.RegisteredClaims
}

func SetJWTSecret(secret string) {
	if secret == "" {
		return
	}
	jwtSecret = []byte(secret)
}

// SetJWTValidation enables iss and aud checks. Empty values disable the check.
func SetJWTValidation(issuer, audience string) {
	jwtIssuer = strings.TrimSpace(issuer)
	jwtAudience = strings.TrimSpace(audience)
}

func JWTSecret() []byte {
	clone := make([]byte, len(jwtSecret))
	copy(clone, jwtSecret)
	return clone
}

var (
	errMissingHeader = errors.New("Authorization header required")
	errTokenFormat   = errors.New("Invalid token format")
	errInvalidToken  = errors.New("Invalid token")
	errTokenClaims   = errors.New("Invalid token claims")
)

// AuthMiddleware validates the HS256 bearer token and stores the Principal in the context.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(jwtSecret) == 0 {
			problem.Write(w, r, http.StatusInternalServerError, problem.Type("auth/misconfigured"), "", "auth is not configured")
			return
		}
		principal, err := authenticate(r.Header.Get("Authorization"))
		if err != nil {
			problem.Write(w, r, http.StatusUnauthorized, problem.Type(authProblemSlug(err)), "", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, principal)))
	})
}

func authenticate(header string) (Principal, error) {
	if header == "" {
		return Principal{}, errMissingHeader
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return Principal{}, errTokenFormat
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if jwtIssuer != "" {
		opts = append(opts, jwt.WithIssuer(jwtIssuer))
	}
	if jwtAudience != "" {
		opts = append(opts, jwt.WithAudience(jwtAudience))
	}
	claims := &walletClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return jwtSecret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, errInvalidToken
	}
	if claims.UserID == "" || (claims.Subject != "" && claims.Subject != claims.UserID) {
		return Principal{}, errTokenClaims
	}
	return Principal{
		UserID:     claims.UserID,
		Role:       claims.Role,
		BusinessID: strings.TrimSpace(claims.BusinessID),
	}, nil
}

func authProblemSlug(err error) string {
	switch {
	case errors.Is(err, errMissingHeader):
		return "auth/authorization-header-required"
	case errors.Is(err, errTokenFormat):
		return "auth/invalid-token-format"
	case errors.Is(err, errTokenClaims):
		return "auth/invalid-token-claims"
	default:
		return "auth/invalid-token"
	}
}

// RequireRole rejects principals without the given role.
func RequireRole(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, _ := PrincipalFromContext(r.Context()); p.Role != requiredRole {
				problem.Write(w, r, http.StatusForbidden, problem.Type("auth/insufficient-permissions"), "", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func BusinessIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.BusinessID
}

// TraceIDFromContext returns the trace id for the request.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(traceContextKey).(string); ok {
		return v
	}
	return ""
}
