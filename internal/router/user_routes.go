package router

import "github.com/gin-gonic/gin"

// RegisterUserRoutes 注册用户相关路由（需要认证）
func (rt *Router) RegisterUserRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile", rt.handlers.User.Profile)
	rg.GET("/users", rt.handlers.User.List)
	rg.GET("/users/online", rt.handlers.User.Online)
}
