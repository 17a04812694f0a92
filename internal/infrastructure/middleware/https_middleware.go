package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// TlsHandler 把 HTTP 请求重定向到 HTTPS，mainConfig.forceTLS 为 true 时挂载
// dev 模式下 secure 不做任何处理，方便本地调试
func TlsHandler(host string, port int, isDev bool) gin.HandlerFunc {
	// 在返回函数之前初始化，避免每次请求都重复创建对象
	secureMiddleware := secure.New(secure.Options{
		SSLRedirect:   true,
		SSLHost:       host + ":" + strconv.Itoa(port),
		IsDevelopment: isDev,
	})

	return func(c *gin.Context) {
		// 需要重定向时 secure 已写出 301 响应并返回错误
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			zap.L().Debug("TLS redirection", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Abort()
			return
		}
		c.Next()
	}
}
