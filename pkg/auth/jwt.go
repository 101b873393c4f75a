package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dmehra2102/order-invoicing/pkg/apperr"
)

var (
	ErrTokenExpired = apperr.Unauthorized("token expired")
	ErrInvalidToken = apperr.Unauthorized("invalid token")
	ErrMissingToken = apperr.Unauthorized("missing bearer token")
)

type claimsKey struct{}

// Verifier checks bearer tokens presented to mutating endpoints.
type Verifier struct {
	secret    []byte
	algorithm string
}

func NewVerifier(secret, algorithm string) *Verifier {
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	return &Verifier{secret: []byte(secret), algorithm: algorithm}
}

// Verify validates the signature and expiry of token and returns its claims.
func (v *Verifier) Verify(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.algorithm}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// decoded claims on the request context.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			apperr.Write(w, ErrMissingToken)
			return
		}
		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			apperr.Write(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func ClaimsFrom(ctx context.Context) (jwt.MapClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(jwt.MapClaims)
	return c, ok
}
