package websocket

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Gateway 负责升级 HTTP 连接并管理所有在线 Client
type Gateway struct {
	dispatcher Dispatcher
	opts       Options
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// NewGateway 创建网关
func NewGateway(d Dispatcher, opts Options) *Gateway {
	return &Gateway{
		dispatcher: d,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  2048,
			WriteBufferSize: 2048,
			// 跨域由 HTTP 层的 CORS 配置负责
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[string]*Client),
	}
}

// ServeHTTP 升级连接并启动读写协程
// 会话在升级后处于未认证状态，需要客户端发送 authenticate 事件
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("ws 升级失败", zap.Error(err))
		return
	}
	client := newClient(uuid.NewString(), conn, g.opts)

	g.mu.Lock()
	g.clients[client.ID] = client
	g.mu.Unlock()

	g.dispatcher.Connect(client.ID, client)
	zap.L().Info("ws连接成功", zap.String("session", client.ID), zap.String("remote", r.RemoteAddr))

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		client.writePump()
	}()
	go func() {
		defer g.wg.Done()
		client.readPump(g.dispatcher)
		g.mu.Lock()
		delete(g.clients, client.ID)
		g.mu.Unlock()
	}()
}

// Count 当前连接数
func (g *Gateway) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Shutdown 关闭所有连接并等待读写协程退出
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	clients := make([]*Client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
	g.wg.Wait()
}
