// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"presence_chat_server/internal/handler"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
// auth 为 JWT 认证中间件，受保护的路由组统一挂载
type Router struct {
	handlers *handler.Handlers
	auth     gin.HandlerFunc
}

// NewRouter 创建路由管理器
func NewRouter(handlers *handler.Handlers, auth gin.HandlerFunc) *Router {
	return &Router{handlers: handlers, auth: auth}
}

// RegisterRoutes 注册所有路由
// 在 https_server.Init() 中调用
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	// 公开接口 (无需认证)
	r.GET("/health", rt.handlers.Health.Check)
	rt.RegisterWebSocketRoutes(&r.RouterGroup)

	// 需要认证的接口
	protected := r.Group("/")
	protected.Use(rt.auth)
	rt.RegisterAuthRoutes(protected)
	rt.RegisterUserRoutes(protected)
	rt.RegisterRoomRoutes(protected)
}
