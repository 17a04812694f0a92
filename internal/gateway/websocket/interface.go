// Package websocket 基于 gorilla/websocket 的传输层
// 每个连接一个 Client：读协程把帧交给 Dispatcher，写协程从发送缓冲取出事件写回客户端
package websocket

import (
	"context"
	"errors"
	"time"

	"presence_chat_server/internal/config"
	"presence_chat_server/internal/service/chat"
)

// Dispatcher 连接事件的处理方，由 chat.Coordinator 实现
// 用于解耦 websocket 包对聊天核心具体实现的依赖
type Dispatcher interface {
	Connect(sessionID string, conn chat.Conn) chat.Session
	Dispatch(ctx context.Context, sessionID string, raw []byte)
	Disconnect(ctx context.Context, sessionID string)
}

var (
	// ErrClosed 连接已关闭
	ErrClosed = errors.New("websocket client closed")
	// ErrBufferFull 发送缓冲已满
	ErrBufferFull = errors.New("websocket send buffer full")
)

// Options 连接参数
type Options struct {
	SendBufferSize int
	MaxFrameBytes  int64
	PongWait       time.Duration
	PingPeriod     time.Duration
	WriteWait      time.Duration
}

// OptionsFrom 从聊天配置读取连接参数
func OptionsFrom(conf *config.ChatConfig) Options {
	return Options{
		SendBufferSize: conf.SendBufferSize,
		MaxFrameBytes:  conf.MaxFrameBytes,
		PongWait:       conf.PongWait.Duration,
		PingPeriod:     conf.PingPeriod.Duration,
		WriteWait:      conf.WriteWait.Duration,
	}
}
