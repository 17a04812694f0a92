package router

import "github.com/gin-gonic/gin"

// RegisterRoomRoutes 注册房间相关路由（需要认证）
func (rt *Router) RegisterRoomRoutes(rg *gin.RouterGroup) {
	roomGroup := rg.Group("/rooms")
	{
		roomGroup.GET("", rt.handlers.Room.List)                        // 我参与的房间
		roomGroup.POST("", rt.handlers.Room.Create)                     // 创建房间
		roomGroup.POST("/:roomId/join", rt.handlers.Room.Join)          // 加入房间
		roomGroup.GET("/:roomId/messages", rt.handlers.Room.Messages)   // 历史消息
		roomGroup.DELETE("/:roomId/membership", rt.handlers.Room.Leave) // 退出房间
	}
}
