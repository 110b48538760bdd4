package middleware

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "halcyon.studio/cinema/internal/pkg/errors"
)

// ErrJWTSigningKeyMissing is returned when no verification key is configured.
var ErrJWTSigningKeyMissing = errors.New("jwt signing key is not configured")

// RoleAdmin grants the administrative credit routes.
const RoleAdmin = "admin"

// JWTClaims are the session claims. The subject is the user ID.
type JWTClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c JWTClaims) UserID() string {
	return c.Subject
}

// JWTConfig holds JWT signing configuration.
type JWTConfig struct {
	SigningKey []byte
	// VerificationKeys are previous signing keys still accepted.
	VerificationKeys [][]byte
	Issuer           string
	ExpiresIn        time.Duration
}

// GenerateToken creates a signed session token for userID.
func GenerateToken(cfg JWTConfig, userID string, roles []string) (string, time.Time, error) {
	if len(cfg.SigningKey) == 0 {
		return "", time.Time{}, ErrJWTSigningKeyMissing
	}
	now := time.Now()
	expiresAt := now.Add(cfg.ExpiresIn)

	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token id: %w", err)
	}
	claims := JWTClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			Issuer:    cfg.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(cfg.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return tokenString, expiresAt, nil
}

// ValidateToken parses tokenString with the signing key, falling back to
// each verification key in order.
func (cfg JWTConfig) ValidateToken(_ context.Context, tokenString string) (*JWTClaims, error) {
	keys := make([][]byte, 0, 1+len(cfg.VerificationKeys))
	if len(cfg.SigningKey) > 0 {
		keys = append(keys, cfg.SigningKey)
	}
	for _, k := range cfg.VerificationKeys {
		if len(k) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %w", jwt.ErrTokenUnverifiable, ErrJWTSigningKeyMissing)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var lastErr error
	for _, key := range keys {
		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, opts...)
		if err == nil && token.Valid {
			if claims.Subject == "" {
				return nil, fmt.Errorf("%w: missing subject", jwt.ErrTokenInvalidClaims)
			}
			return claims, nil
		}
		lastErr = err
		// Only a signature mismatch is worth retrying with an older key.
		if !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			break
		}
	}
	if lastErr == nil {
		lastErr = jwt.ErrTokenInvalidClaims
	}
	return nil, lastErr
}

// JWTAuth validates Bearer tokens and populates the request context.
func JWTAuth(cfg JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperrors.Unauthorized(apperrors.CodeUnauthorized, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperrors.Unauthorized(apperrors.CodeUnauthorized, "invalid authorization header format"))
			return
		}

		claims, err := cfg.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				abort(c, apperrors.Unauthorized(apperrors.CodeTokenExpired, "token expired"))
				return
			}
			abort(c, apperrors.Unauthorized(apperrors.CodeTokenInvalid, "invalid token"))
			return
		}

		c.Set(string(ctxKeyUserID), claims.UserID())
		c.Set(string(ctxKeyRoles), claims.Roles)
		c.Request = c.Request.WithContext(
			SetUserContext(c.Request.Context(), claims.UserID(), claims.Roles),
		)

		c.Next()
	}
}

// RequireRole rejects users without role. Must run after JWTAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !slices.Contains(GetRoles(c.Request.Context()), role) {
			abort(c, apperrors.Forbidden(apperrors.CodeAdminOnly, "administrator role required"))
			return
		}
		c.Next()
	}
}

// abort records err for ErrorHandler and stops the chain.
func abort(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.Abort()
}
