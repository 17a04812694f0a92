package handler

import (
	"presence_chat_server/internal/infrastructure/middleware"
	"presence_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证请求处理器
// token 的签发在外部认证服务，这里只负责注销
type AuthHandler struct {
	revoker TokenRevoker
}

// NewAuthHandler 创建认证处理器实例
func NewAuthHandler(revoker TokenRevoker) *AuthHandler {
	return &AuthHandler{revoker: revoker}
}

// Logout 注销当前 token
// POST /auth/logout
// 注销后该 token 不能再用于 HTTP 接口和 websocket 认证，已建立的会话不受影响
func (h *AuthHandler) Logout(c *gin.Context) {
	if h.revoker == nil {
		HandleError(c, errorx.ErrServerBusy)
		return
	}
	if err := h.revoker.Revoke(c.Request.Context(), c.GetString(middleware.ContextToken)); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
