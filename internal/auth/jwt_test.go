package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSPiira/timeline-sub000/internal/auth"
)

// TestIssueAndValidateToken 签发与验证往返
func TestIssueAndValidateToken(t *testing.T) {
	validator := auth.NewTokenValidator("timeline", "test-secret")

	token, err := validator.IssueToken("user-1", "tenant-a", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := validator.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, "timeline", claims.Issuer)
}

// TestValidateToken_WrongSecret 签名密钥不匹配
func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := auth.NewTokenValidator("timeline", "secret-a")
	token, err := issuer.IssueToken("user-1", "tenant-a", time.Hour)
	require.NoError(t, err)

	validator := auth.NewTokenValidator("timeline", "secret-b")
	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

// TestValidateToken_WrongIssuer 签发者不匹配
func TestValidateToken_WrongIssuer(t *testing.T) {
	other := auth.NewTokenValidator("someone-else", "test-secret")
	token, err := other.IssueToken("user-1", "tenant-a", time.Hour)
	require.NoError(t, err)

	validator := auth.NewTokenValidator("timeline", "test-secret")
	_, err = validator.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issuer")
}

// TestValidateToken_Expired 过期 Token 被拒绝
func TestValidateToken_Expired(t *testing.T) {
	validator := auth.NewTokenValidator("timeline", "test-secret")
	token, err := validator.IssueToken("user-1", "tenant-a", -time.Minute)
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.Error(t, err)
}

// TestValidateToken_MissingTenant 缺少 tenant_id 声明
func TestValidateToken_MissingTenant(t *testing.T) {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "timeline",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	validator := auth.NewTokenValidator("timeline", "test-secret")
	_, err = validator.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id")
}

// TestContextHelpers 请求上下文读写
func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, auth.ActorFromContext(ctx))
	assert.Empty(t, auth.TenantFromContext(ctx))

	ctx = auth.WithActor(ctx, "user-1")
	ctx = auth.WithTenant(ctx, "tenant-a")
	ctx = auth.WithRequestID(ctx, "req-1")
	assert.Equal(t, "user-1", auth.ActorFromContext(ctx))
	assert.Equal(t, "tenant-a", auth.TenantFromContext(ctx))
	assert.Equal(t, "req-1", auth.RequestIDFromContext(ctx))
}
