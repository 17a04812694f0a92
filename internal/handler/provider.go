// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
// 通过构造函数注入业务依赖，Router 层只依赖 Handlers
package handler

import (
	"context"
	"net/http"

	"presence_chat_server/internal/service/chat"
)

// ChatService 聊天核心面向 HTTP 的查询与管理能力，由 chat.Coordinator 实现
type ChatService interface {
	History(ctx context.Context, principalID, roomID string, limit, offset int) ([]chat.Message, error)
	RoomsOf(principalID string) []chat.Room
	CreateRoom(ctx context.Context, principalID string, spec chat.RoomSpec) (chat.Room, error)
	JoinMembership(ctx context.Context, principalID, roomID string) (chat.Room, error)
	ForgetRoom(ctx context.Context, principalID, roomID string) error
	OnlinePrincipals(ctx context.Context) []chat.Principal
	Principals(ctx context.Context) ([]chat.Principal, error)
	Principal(ctx context.Context, principalID string) (chat.Principal, error)
}

// TokenRevoker 注销 token
type TokenRevoker interface {
	Revoke(ctx context.Context, token string) error
}

// Handlers 聚合所有 Handler 实例
type Handlers struct {
	Room   *RoomHandler
	User   *UserHandler
	Auth   *AuthHandler
	Ws     *WsHandler
	Health *HealthHandler
}

// NewHandlers 创建并注入所有 Handler 实例
// gateway 负责 websocket 升级，revoker 为 nil 时注销接口返回服务繁忙
func NewHandlers(svc ChatService, gateway http.Handler, revoker TokenRevoker, counter ConnCounter) *Handlers {
	return &Handlers{
		Room:   NewRoomHandler(svc),
		User:   NewUserHandler(svc),
		Auth:   NewAuthHandler(revoker),
		Ws:     NewWsHandler(gateway),
		Health: NewHealthHandler(counter),
	}
}
