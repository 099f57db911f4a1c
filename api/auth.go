package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/hr-engine/employee"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID    string
	CompanyID string
	Role      employee.Role
}

func (p Principal) IsReviewer() bool { return p.Role.IsReviewer() }

func (p Principal) IsAdmin() bool {
	return p.Role == employee.RoleCompanyAdmin || p.Role == employee.RoleGlobalAdmin
}

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFrom returns the caller stored by Authenticate.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

// GenerateToken signs an HS256 token carrying the principal.
func GenerateToken(secret string, p Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":     p.UserID,
		"company": p.CompanyID,
		"role":    string(p.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Authenticate rejects requests without a valid bearer token.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			p, err := validateToken(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalContextKey, p)))
		})
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("authorization header missing")
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("invalid authorization format: missing Bearer prefix")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("invalid authorization format: empty token")
	}
	return token, nil
}

func validateToken(tokenString, secret string) (Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Principal{}, fmt.Errorf("invalid token claims")
	}

	sub, _ := claims["sub"].(string)
	company, _ := claims["company"].(string)
	role, _ := claims["role"].(string)
	p := Principal{UserID: sub, CompanyID: company, Role: employee.Role(role)}
	if p.UserID == "" || p.CompanyID == "" || !p.Role.Valid() {
		return Principal{}, fmt.Errorf("incomplete token claims")
	}
	return p, nil
}
