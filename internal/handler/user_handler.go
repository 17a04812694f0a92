package handler

import (
	"presence_chat_server/internal/service/chat"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户请求处理器
type UserHandler struct {
	svc ChatService
}

// NewUserHandler 创建用户处理器实例
func NewUserHandler(svc ChatService) *UserHandler {
	return &UserHandler{svc: svc}
}

// List 全部用户
// GET /users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.svc.Principals(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	if users == nil {
		users = []chat.Principal{}
	}
	HandleSuccess(c, users)
}

// Online 当前在线（含 away）的用户
// GET /users/online
func (h *UserHandler) Online(c *gin.Context) {
	users := h.svc.OnlinePrincipals(c.Request.Context())
	if users == nil {
		users = []chat.Principal{}
	}
	HandleSuccess(c, users)
}

// Profile 当前用户资料
// GET /profile
func (h *UserHandler) Profile(c *gin.Context) {
	p, err := h.svc.Principal(c.Request.Context(), principalID(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, p)
}
