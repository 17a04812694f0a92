package router

import "github.com/gin-gonic/gin"

// RegisterAuthRoutes 注册认证相关路由（需要认证）
func (rt *Router) RegisterAuthRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/logout", rt.handlers.Auth.Logout)
}
