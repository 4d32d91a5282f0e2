package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/framevault/internal/apperrors"
	"github.com/framevault/internal/cache"
	"github.com/framevault/internal/config"
	"github.com/framevault/internal/models"
	"github.com/framevault/internal/users"
)

// Claims JWT令牌声明。TokenVersion 与数据库比对实现全端登出
type Claims struct {
	UserID       uuid.UUID `json:"userId"`
	Email        string    `json:"email"`
	TokenVersion int       `json:"tokenVersion"`
	LoopDelay    int       `json:"loopDelay"`
	jwt.RegisteredClaims
}

// Service 认证服务。身份读取先走进程内缓存，未命中再查库；
// 登出时令牌版本号自增并写入 Redis 吊销名单，令牌立即失效
type Service struct {
	repo   *users.Repository
	cache  *cache.Cache[*models.User]
	rdb    *redis.Client
	secret []byte
	expiry time.Duration
	logger *logrus.Logger
}

func NewService(repo *users.Repository, userCache *cache.Cache[*models.User], rdb *redis.Client, cfg *config.Config, logger *logrus.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  userCache,
		rdb:    rdb,
		secret: []byte(cfg.Auth.JWTSecret),
		expiry: cfg.Auth.TokenExpiry,
		logger: logger,
	}
}

// Register 注册新用户并直接签发令牌
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, apperrors.ErrValidation.New("邮箱已被注册")
	} else if !apperrors.ErrNotFound.Has(err) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.Create(ctx, req.Name, req.Email, string(hash), models.ProviderCustom)
	if err != nil {
		return nil, err
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{AccessToken: token, User: user}, nil
}

// Login 验证凭据并签发令牌。用户不存在与密码错误返回同一个错误，
// 不向调用方泄露邮箱是否注册
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if apperrors.ErrNotFound.Has(err) {
			return nil, apperrors.ErrUnauthorized.New("邮箱或密码错误")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperrors.ErrUnauthorized.New("邮箱或密码错误")
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	return &models.LoginResponse{AccessToken: token, User: user}, nil
}

// GenerateToken 签发JWT令牌
func (s *Service) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       user.ID,
		Email:        user.Email,
		TokenVersion: user.TokenVersion,
		LoopDelay:    user.LoopDelay,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken 解析并校验令牌：签名、有效期、吊销名单、版本号
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrUnauthorized.New("意外的签名算法: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.ErrUnauthorized.New("无效的令牌")
	}

	if s.revoked(ctx, claims.ID) {
		return nil, apperrors.ErrUnauthorized.New("令牌已被吊销")
	}

	user, err := s.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if apperrors.ErrNotFound.Has(err) {
			return nil, apperrors.ErrUnauthorized.New("无效的令牌")
		}
		return nil, err
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, apperrors.ErrUnauthorized.New("令牌已失效，请重新登录")
	}

	return claims, nil
}

// GetUserByID 读取用户，命中缓存时不触发数据库查询
func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	key := models.UserCacheKey(id)
	if user, ok := s.cache.Get(key); ok {
		return user, nil
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, user)
	return user, nil
}

// Logout 全端登出：令牌版本自增使所有已签发令牌失效，
// 当前令牌另记入 Redis 吊销名单，避免缓存窗口内继续可用
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if _, err := s.repo.IncrementTokenVersion(ctx, claims.UserID); err != nil {
		return err
	}
	s.cache.Del(models.UserCacheKey(claims.UserID))

	if s.rdb != nil && claims.ExpiresAt != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl > 0 {
			if err := s.rdb.Set(ctx, revocationKey(claims.ID), "1", ttl).Err(); err != nil {
				s.logger.WithError(err).Warn("写入令牌吊销名单失败")
			}
		}
	}

	return nil
}

// UpdateLoopDelay 更新客户端轮播间隔，纯透传字段
func (s *Service) UpdateLoopDelay(ctx context.Context, userID uuid.UUID, loopDelay int) error {
	if loopDelay < 0 {
		return apperrors.ErrValidation.New("loopDelay 不能为负数")
	}
	if err := s.repo.UpdateLoopDelay(ctx, userID, loopDelay); err != nil {
		return err
	}
	s.cache.Del(models.UserCacheKey(userID))
	return nil
}

func (s *Service) revoked(ctx context.Context, jti string) bool {
	if s.rdb == nil || jti == "" {
		return false
	}
	n, err := s.rdb.Exists(ctx, revocationKey(jti)).Result()
	if err != nil {
		s.logger.WithError(err).Warn("查询令牌吊销名单失败")
		return false
	}
	return n > 0
}

func revocationKey(jti string) string {
	return "revoked:" + jti
}
