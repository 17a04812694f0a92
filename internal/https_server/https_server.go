// Package https_server 提供 HTTP/HTTPS 服务器的初始化和配置
// 负责创建 Gin 引擎实例并配置中间件与路由
package https_server

import (
	"presence_chat_server/internal/config"
	"presence_chat_server/internal/handler"
	"presence_chat_server/internal/infrastructure/logger"
	"presence_chat_server/internal/infrastructure/middleware"
	"presence_chat_server/internal/router"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Init 初始化 HTTP 服务器并返回 Gin 引擎实例
// 配置顺序：
//  1. 创建 Gin 引擎（空白，不含默认中间件）
//  2. 注册日志和恢复中间件
//  3. 配置 CORS 跨域规则
//  4. forceTLS 时挂载 HTTPS 重定向
//  5. 注册业务路由
func Init(conf *config.MainConfig, handlers *handler.Handlers, auth gin.HandlerFunc) *gin.Engine {
	if conf.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	// Zap 日志中间件替代 Gin 默认日志，panic 时记录堆栈
	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // 生产环境应指定具体域名
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	// 由 Nginx 终止 TLS 时保持 forceTLS = false
	if conf.ForceTLS {
		engine.Use(middleware.TlsHandler(conf.Host, conf.Port, conf.Mode == "dev"))
	}

	rt := router.NewRouter(handlers, auth)
	rt.RegisterRoutes(engine)

	return engine
}
