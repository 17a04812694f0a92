package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer             = "presence_chat"
	subjectAccessToken = "access_token"
)

// ErrWrongSubject token 不是 access token
var ErrWrongSubject = errors.New("token subject is not access_token")

// Claims 自定义 JWT 声明
// 除用户 ID 外还携带昵称与邮箱，聊天连接认证时直接取用
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Manager 负责签发与解析 token
// 签发只用于测试和运维脚本，聊天服务本身只做校验
type Manager struct {
	secret            []byte
	accessTokenExpiry time.Duration
	now               func() time.Time
}

// NewManager 创建 Manager
// accessExpiryMinutes <= 0 时使用 7 天
func NewManager(secret string, accessExpiryMinutes int) *Manager {
	expiry := time.Duration(accessExpiryMinutes) * time.Minute
	if expiry <= 0 {
		expiry = 7 * 24 * time.Hour
	}
	return &Manager{
		secret:            []byte(secret),
		accessTokenExpiry: expiry,
		now:               time.Now,
	}
}

// GenerateAccessToken 生成 Access Token
func (m *Manager) GenerateAccessToken(userID, displayName, email string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID:      userID,
		DisplayName: displayName,
		Email:       email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subjectAccessToken,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析并验证 Access Token
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Subject != subjectAccessToken {
		return nil, ErrWrongSubject
	}
	return claims, nil
}
