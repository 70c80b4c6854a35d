package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/remap-keys/remap-backend/internal/config"
	"github.com/remap-keys/remap-backend/internal/rpc"
)

// CallerKey is the gin context key under which the authenticated caller is
// stored.
const CallerKey = "caller"

// TokenVerifier validates a raw Bearer token and returns the caller's uid.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// Auth resolves the caller from the Authorization header. Authentication is
// optional at the transport layer: requests without a token, or with a token
// that fails verification, proceed anonymously and the per-command
// authentication guard decides whether that is acceptable. A verified token
// stores the caller in the gin context under CallerKey.
func Auth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		rawToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || rawToken == "" {
			c.Next()
			return
		}

		uid, err := verifier.Verify(c.Request.Context(), rawToken)
		if err != nil {
			slog.Debug("Bearer token rejected", "request_id", GetRequestID(c), "error", err)
			c.Next()
			return
		}

		c.Set(CallerKey, &rpc.Caller{UID: uid})
		c.Next()
	}
}

// CallerFrom returns the caller the Auth middleware stored, or nil for an
// anonymous request.
func CallerFrom(c *gin.Context) *rpc.Caller {
	if v, exists := c.Get(CallerKey); exists {
		if caller, ok := v.(*rpc.Caller); ok {
			return caller
		}
	}
	return nil
}

// HS256Verifier verifies HS256-signed JWTs against a shared secret. The uid
// is taken from the token's subject claim.
type HS256Verifier struct {
	secret []byte
}

// NewHS256Verifier creates a verifier for the given shared secret.
func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

// Verify implements TokenVerifier.
func (v *HS256Verifier) Verify(_ context.Context, rawToken string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("token is not valid")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// OIDCVerifier verifies ID tokens against an OIDC issuer. The issuer's
// discovery document and signing keys are fetched lazily by the underlying
// verifier and cached.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier queries the issuer's discovery endpoint and builds an ID
// token verifier for the configured client ID.
func NewOIDCVerifier(ctx context.Context, cfg config.OIDCConfig) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query OIDC issuer %s: %w", cfg.IssuerURL, err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Verify implements TokenVerifier.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("failed to verify ID token: %w", err)
	}
	if idToken.Subject == "" {
		return "", errors.New("ID token has no subject")
	}
	return idToken.Subject, nil
}
