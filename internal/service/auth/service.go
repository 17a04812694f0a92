// Package auth 提供认证相关的业务逻辑
// 校验 websocket 与 HTTP 请求携带的 Access Token，并支持注销（吊销）token
package auth

import (
	"context"
	"time"

	myredis "presence_chat_server/internal/dao/redis"
	"presence_chat_server/internal/service/chat"
	"presence_chat_server/pkg/errorx"
	"presence_chat_server/pkg/util/jwt"

	"go.uber.org/zap"
)

const revokedKeyPrefix = "token_revoked:"

// Service 认证服务实现
type Service struct {
	tokens *jwt.Manager
	cache  myredis.CacheService // 缓存服务（可选，为 nil 时不支持吊销）
	now    func() time.Time
}

// NewAuthService 创建认证服务实例
// cache 为 nil 时 Revoke 直接返回错误，Verify 不检查吊销列表
func NewAuthService(tokens *jwt.Manager, cache myredis.CacheService) *Service {
	return &Service{
		tokens: tokens,
		cache:  cache,
		now:    time.Now,
	}
}

// Verify 实现 chat.TokenVerifier
func (s *Service) Verify(ctx context.Context, token string) (chat.Identity, error) {
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return chat.Identity{}, errorx.Wrap(err, errorx.CodeInvalidToken, "token 校验失败")
	}
	if claims.UserID == "" {
		return chat.Identity{}, errorx.New(errorx.CodeInvalidToken, "token 缺少用户")
	}
	if s.cache != nil && claims.ID != "" {
		revoked, err := s.cache.Get(ctx, revokedKeyPrefix+claims.ID)
		if err != nil {
			// 缓存故障时放行，只记录日志
			zap.L().Warn("查询 token 吊销状态失败", zap.String("jti", claims.ID), zap.Error(err))
		} else if revoked != "" {
			return chat.Identity{}, errorx.New(errorx.CodeInvalidToken, "token 已注销")
		}
	}
	return chat.Identity{
		PrincipalID: claims.UserID,
		DisplayName: claims.DisplayName,
		Email:       claims.Email,
	}, nil
}

// Revoke 吊销 token，直到它自然过期
func (s *Service) Revoke(ctx context.Context, token string) error {
	if s.cache == nil {
		return errorx.New(errorx.CodeServerBusy, "未启用 token 吊销")
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidToken, "token 校验失败")
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Time.Sub(s.now()); left > 0 {
			ttl = left
		}
	}
	return s.cache.Set(ctx, revokedKeyPrefix+claims.ID, claims.UserID, ttl)
}

var _ chat.TokenVerifier = (*Service)(nil)
