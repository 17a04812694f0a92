package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"presence_chat_server/internal/service/chat"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client 一个 websocket 连接
// 实现 chat.Conn：Send 只入队不阻塞，真正的写出由 writePump 完成
type Client struct {
	ID   string
	conn *websocket.Conn
	opts Options

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, opts Options) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		opts: opts,
		send: make(chan []byte, opts.SendBufferSize),
		done: make(chan struct{}),
	}
}

// Send 序列化事件并放入发送缓冲
// 连接已关闭返回 ErrClosed，缓冲满返回 ErrBufferFull
func (c *Client) Send(ev chat.OutboundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Close 通知写协程发送关闭帧并断开底层连接，可重复调用
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// readPump 读取客户端帧并交给 Dispatcher
// 退出（对端关闭、读超时、帧过大）时触发 Disconnect
func (c *Client) readPump(d Dispatcher) {
	defer func() {
		d.Disconnect(context.Background(), c.ID)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Info("ws 连接异常断开", zap.String("session", c.ID), zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		d.Dispatch(context.Background(), c.ID, raw)
	}
}

// writePump 把发送缓冲中的事件写回客户端，并定时发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				zap.L().Debug("ws 写失败", zap.String("session", c.ID), zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}

// flush 关闭前尽量写出已入队的事件
func (c *Client) flush() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

var _ chat.Conn = (*Client)(nil)
