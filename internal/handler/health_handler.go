package handler

import (
	"github.com/gin-gonic/gin"
)

// ConnCounter 当前 websocket 连接数
type ConnCounter interface {
	Count() int
}

// HealthHandler 健康检查
type HealthHandler struct {
	counter ConnCounter
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(counter ConnCounter) *HealthHandler {
	return &HealthHandler{counter: counter}
}

// Check GET /health
func (h *HealthHandler) Check(c *gin.Context) {
	data := gin.H{"status": "ok"}
	if h.counter != nil {
		data["connections"] = h.counter.Count()
	}
	HandleSuccess(c, data)
}
