package middleware

import (
	"net/http"
	"strings"

	"presence_chat_server/internal/service/chat"
	"presence_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// 上下文中保存调用方信息的 key
const (
	ContextUserID = "user_id"
	ContextToken  = "token"
)

// JWTAuth JWT 认证中间件
// 验证 Access Token 并将用户信息存入上下文
func JWTAuth(verifier chat.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从 Header 获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "请先登录",
			})
			return
		}

		// 2. 解析 Bearer Token
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "Token 格式错误，请使用 Bearer Token",
			})
			return
		}

		// 3. 验证 Token（含注销检查）
		identity, err := verifier.Verify(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "Token 已过期或无效，请重新登录",
			})
			return
		}

		// 4. 将用户信息存入上下文，供后续 Handler 使用
		c.Set(ContextUserID, identity.PrincipalID)
		c.Set(ContextToken, parts[1])
		c.Next()
	}
}
