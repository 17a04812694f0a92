package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// WsHandler websocket 接入
type WsHandler struct {
	gateway http.Handler
}

// NewWsHandler 创建 websocket 处理器实例
func NewWsHandler(gateway http.Handler) *WsHandler {
	return &WsHandler{gateway: gateway}
}

// Upgrade 升级为 websocket 连接
// GET /wss
// 升级本身不需要 token，连接建立后客户端通过 authenticate 事件认证
func (h *WsHandler) Upgrade(c *gin.Context) {
	h.gateway.ServeHTTP(c.Writer, c.Request)
}
