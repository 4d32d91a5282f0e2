package auth

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/cache"
	"github.com/framevault/internal/config"
	"github.com/framevault/internal/dbtest"
	"github.com/framevault/internal/models"
	"github.com/framevault/internal/users"
)

func newTestService(t *testing.T) (*Service, *users.Repository) {
	db := dbtest.Open(t)
	repo := users.NewRepository(db)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenExpiry = time.Hour

	userCache := cache.New[*models.User](15*time.Minute, 100)
	return NewService(repo, userCache, nil, cfg, logger), repo
}

func register(t *testing.T, s *Service) *models.LoginResponse {
	t.Helper()
	resp, err := s.Register(context.Background(), &models.RegisterRequest{
		Name:     "测试用户",
		Email:    "user@example.com",
		Password: "secret123",
	})
	require.NoError(t, err)
	return resp
}

func TestService_RegisterAndLogin(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	resp := register(t, s)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "user@example.com", resp.User.Email)
	assert.Equal(t, models.ProviderCustom, resp.User.Provider)

	// 重复注册同一邮箱被拒
	_, err := s.Register(ctx, &models.RegisterRequest{Name: "x", Email: "user@example.com", Password: "other123"})
	assert.True(t, apperrors.ErrValidation.Has(err))

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  bool
	}{
		{"正确凭据", "user@example.com", "secret123", false},
		{"密码错误", "user@example.com", "wrong", true},
		{"邮箱未注册", "ghost@example.com", "secret123", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Login(ctx, &models.LoginRequest{Email: tt.email, Password: tt.password})
			if tt.wantErr {
				assert.True(t, apperrors.ErrUnauthorized.Has(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, got.AccessToken)
		})
	}
}

func TestService_ValidateToken(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	resp := register(t, s)

	claims, err := s.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
	assert.Equal(t, resp.User.Email, claims.Email)
	assert.Equal(t, resp.User.LoopDelay, claims.LoopDelay)

	_, err = s.ValidateToken(ctx, "not.a.token")
	assert.True(t, apperrors.ErrUnauthorized.Has(err))

	// 换一个密钥签出来的令牌不被接受
	other, _ := newTestService(t)
	other.secret = []byte("different-secret")
	forged, err := other.GenerateToken(resp.User)
	require.NoError(t, err)
	_, err = s.ValidateToken(ctx, forged)
	assert.True(t, apperrors.ErrUnauthorized.Has(err))
}

func TestService_LogoutInvalidatesOldTokens(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	resp := register(t, s)
	claims, err := s.ValidateToken(ctx, resp.AccessToken)
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx, claims))

	// 版本号已自增，旧令牌全部失效
	_, err = s.ValidateToken(ctx, resp.AccessToken)
	assert.True(t, apperrors.ErrUnauthorized.Has(err))

	// 重新登录拿到的新令牌正常
	again, err := s.Login(ctx, &models.LoginRequest{Email: "user@example.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = s.ValidateToken(ctx, again.AccessToken)
	assert.NoError(t, err)
}

func TestService_GetUserByID_CachesResult(t *testing.T) {
	s, repo := newTestService(t)
	ctx := context.Background()

	resp := register(t, s)

	first, err := s.GetUserByID(ctx, resp.User.ID)
	require.NoError(t, err)

	// 直接改库绕过缓存失效，命中缓存时应拿到旧快照
	require.NoError(t, repo.UpdateLoopDelay(ctx, resp.User.ID, 99))
	cached, err := s.GetUserByID(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, first.LoopDelay, cached.LoopDelay)

	// 走服务更新会使缓存失效，下一次读取拿到新值
	require.NoError(t, s.UpdateLoopDelay(ctx, resp.User.ID, 7))
	fresh, err := s.GetUserByID(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, fresh.LoopDelay)
}

func TestService_UpdateLoopDelay_RejectsNegative(t *testing.T) {
	s, _ := newTestService(t)
	resp := register(t, s)

	err := s.UpdateLoopDelay(context.Background(), resp.User.ID, -1)
	assert.True(t, apperrors.ErrValidation.Has(err))
}
