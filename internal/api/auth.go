package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

const tokenIssuer = "agent-arena"

// AgentTokenTTL is the lifetime of tokens handed out on registration.
const AgentTokenTTL = 24 * time.Hour

// AgentClaims are the claims carried by an agent API token. An empty
// AgentID grants access to every agent (an orchestrator token).
type AgentClaims struct {
	AgentID string `json:"agent_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuth verifies HS256 bearer tokens for the agent API.
type TokenAuth struct {
	secret []byte
	now    func() time.Time
}

// NewTokenAuth returns a verifier for secret, or nil when secret is empty
// (auth disabled).
func NewTokenAuth(secret string) *TokenAuth {
	if secret == "" {
		return nil
	}
	return &TokenAuth{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for agentID valid for ttl.
func (a *TokenAuth) Issue(agentID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := AgentClaims{
		AgentID: agentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a token string.
func (a *TokenAuth) Verify(token string) (*AgentClaims, error) {
	claims := &AgentClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type claimsKey struct{}

// Middleware rejects requests without a valid bearer token and stores the
// claims in the request context.
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			RecordConnectionRejected("auth")
			writeError(w, ErrMissingToken.Error(), http.StatusUnauthorized)
			return
		}
		claims, err := a.Verify(raw)
		if err != nil {
			log.Printf("⚠️ Rejected agent token from %s: %v", GetClientIP(r), err)
			RecordConnectionRejected("auth")
			writeError(w, ErrInvalidToken.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// ClaimsFrom returns the verified claims, if auth is enabled.
func ClaimsFrom(ctx context.Context) (*AgentClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*AgentClaims)
	return c, ok
}

// mayActAs reports whether the request may act for agentID.
func mayActAs(r *http.Request, agentID string) bool {
	claims, ok := ClaimsFrom(r.Context())
	if !ok {
		return true
	}
	return claims.AgentID == "" || claims.AgentID == agentID
}
