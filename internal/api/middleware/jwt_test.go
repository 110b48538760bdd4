package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTConfigValidateToken_Success(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: []byte("test-signing-key-1234567890123456"),
		Issuer:     "halcyon",
		ExpiresIn:  time.Hour,
	}

	token, _, err := GenerateToken(cfg, "u-1", []string{RoleAdmin})
	require.NoError(t, err)

	claims, err := cfg.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID())
	assert.Equal(t, []string{RoleAdmin}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.NotBefore)
}

func TestJWTConfigValidateToken_RejectsInvalidIssuer(t *testing.T) {
	issuerCfg := JWTConfig{
		SigningKey: []byte("issuer-key-123456789012345678901234"),
		Issuer:     "halcyon",
		ExpiresIn:  time.Hour,
	}
	token, _, err := GenerateToken(issuerCfg, "u-1", nil)
	require.NoError(t, err)

	validatorCfg := JWTConfig{
		SigningKey: issuerCfg.SigningKey,
		Issuer:     "other-issuer",
	}
	_, err = validatorCfg.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
}

func TestJWTConfigValidateToken_SupportsVerificationKeyRotation(t *testing.T) {
	oldKey := []byte("old-key-123456789012345678901234567890")
	newKey := []byte("new-key-123456789012345678901234567890")

	token, _, err := GenerateToken(JWTConfig{
		SigningKey: oldKey,
		Issuer:     "halcyon",
		ExpiresIn:  time.Hour,
	}, "u-1", nil)
	require.NoError(t, err)

	claims, err := JWTConfig{
		SigningKey:       newKey,
		VerificationKeys: [][]byte{oldKey},
		Issuer:           "halcyon",
	}.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID())
}

func TestJWTConfigValidateToken_RejectsNoneSigningMethod(t *testing.T) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodNone, JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "halcyon",
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = JWTConfig{
		SigningKey: []byte("signing-key-123456789012345678901234"),
		Issuer:     "halcyon",
	}.ValidateToken(context.Background(), tokenString)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestJWTConfigValidateToken_RequiresSigningKey(t *testing.T) {
	token, _, err := GenerateToken(JWTConfig{
		SigningKey: []byte("key-to-sign-valid-token-1234567890123456"),
		Issuer:     "halcyon",
		ExpiresIn:  time.Hour,
	}, "u-1", nil)
	require.NoError(t, err)

	_, err = JWTConfig{Issuer: "halcyon"}.ValidateToken(context.Background(), token)
	require.Error(t, err)
	assert.ErrorIs(t, err, jwt.ErrTokenUnverifiable)
	assert.ErrorIs(t, err, ErrJWTSigningKeyMissing)
}

func TestJWTConfigValidateToken_Expired(t *testing.T) {
	cfg := JWTConfig{
		SigningKey: []byte("expired-key-1234567890123456789012345"),
		Issuer:     "halcyon",
		ExpiresIn:  -time.Minute,
	}
	token, _, err := GenerateToken(cfg, "u-1", nil)
	require.NoError(t, err)

	_, err = cfg.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func authRouter(cfg JWTConfig, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(ErrorHandler())
	chain := append([]gin.HandlerFunc{JWTAuth(cfg)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetUserID(c.Request.Context())})
	})
	router.GET("/me", chain...)
	return router
}

func TestJWTAuth(t *testing.T) {
	cfg := JWTConfig{SigningKey: []byte("auth-key-12345678901234567890123456"), Issuer: "halcyon", ExpiresIn: time.Hour}
	user, _, err := GenerateToken(cfg, "u-7", nil)
	require.NoError(t, err)
	admin, _, err := GenerateToken(cfg, "u-admin", []string{RoleAdmin})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		admin  bool
		status int
		code   string
	}{
		{name: "missing header", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "garbage token", header: "Bearer nope", status: http.StatusUnauthorized, code: "TOKEN_INVALID"},
		{name: "valid user", header: "Bearer " + user, status: http.StatusOK},
		{name: "user on admin route", header: "Bearer " + user, admin: true, status: http.StatusForbidden, code: "ADMIN_REQUIRED"},
		{name: "admin on admin route", header: "Bearer " + admin, admin: true, status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var router *gin.Engine
			if tt.admin {
				router = authRouter(cfg, RequireRole(RoleAdmin))
			} else {
				router = authRouter(cfg)
			}
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.code != "" {
				assert.Contains(t, w.Body.String(), `"code":"`+tt.code+`"`)
			}
		})
	}
}
