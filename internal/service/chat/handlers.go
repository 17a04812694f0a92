package chat

import (
	"context"
	"encoding/json"
	"errors"

	"presence_chat_server/pkg/errorx"

	"go.uber.org/zap"
)

// handlerFunc 单个入站事件的状态迁移处理函数
type handlerFunc func(ctx context.Context, sessionID string, data json.RawMessage) error

func (c *Coordinator) registerHandlers() {
	c.handlers = map[string]handlerFunc{
		EventAuthenticate:  c.handleAuthenticate,
		EventJoinRoom:      c.handleJoinRoom,
		EventLeaveRoom:     c.handleLeaveRoom,
		EventSendMessage:   c.handleSendMessage,
		EventEditMessage:   c.handleEditMessage,
		EventDeleteMessage: c.handleDeleteMessage,
		EventStartTyping:   c.handleStartTyping,
		EventStopTyping:    c.handleStopTyping,
		EventSetStatus:     c.handleSetStatus,
		EventDisconnect:    c.handleDisconnect,
	}
}

// Dispatch 处理一帧入站数据
// 领域错误以 error 事件回给发起会话，不影响连接；内部不一致时强制关闭该会话
func (c *Coordinator) Dispatch(ctx context.Context, sessionID string, raw []byte) {
	var in InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reject(sessionID, "", errorx.Wrap(err, errorx.CodeInvalidPayload, "InvalidPayload"))
		return
	}
	handler, ok := c.handlers[in.Event]
	if !ok {
		c.reject(sessionID, in.Event, errorx.ErrUnknownEvent)
		return
	}
	if err := handler(ctx, sessionID, in.Data); err != nil {
		c.reject(sessionID, in.Event, err)
	}
}

func (c *Coordinator) reject(sessionID, event string, err error) {
	switch {
	case errors.Is(err, errUnknownSession):
		zap.L().Debug("会话已关闭，丢弃事件", zap.String("session", sessionID), zap.String("event", event))
		return
	case errors.Is(err, errInvariant):
		zap.L().Error("会话状态不一致，强制关闭",
			zap.String("session", sessionID), zap.String("event", event), zap.Error(err))
		c.Disconnect(context.Background(), sessionID)
		return
	}

	// 11xx 为聊天领域错误，原样回给客户端；其余错误对客户端只暴露"服务繁忙"
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) && codeErr.Code >= errorx.CodeInvalidToken {
		zap.L().Warn("拒绝事件",
			zap.String("session", sessionID), zap.String("event", event), zap.Error(err))
	} else {
		zap.L().Error("事件处理失败",
			zap.String("session", sessionID), zap.String("event", event), zap.Error(err))
		codeErr = errorx.ErrServerBusy
	}
	c.broker.SendTo(sessionID, OutboundEvent{
		Event: EventError,
		Data:  ErrorPayload{Code: codeErr.Code, Message: codeErr.Msg},
	})
}

// decode 解析并校验事件负载
func (c *Coordinator) decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidPayload, "InvalidPayload")
	}
	if err := c.validate.Struct(v); err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidPayload, "InvalidPayload")
	}
	return nil
}

func (c *Coordinator) handleAuthenticate(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p authenticatePayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	_, err := c.Authenticate(ctx, sessionID, p.Token)
	return err
}

func (c *Coordinator) handleJoinRoom(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p roomPayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	_, err := c.JoinRoom(ctx, sessionID, p.RoomID)
	return err
}

func (c *Coordinator) handleLeaveRoom(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p roomPayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	return c.LeaveRoom(ctx, sessionID, p.RoomID)
}

func (c *Coordinator) handleSendMessage(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p sendMessagePayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	_, err := c.SendMessage(ctx, sessionID, p.RoomID, p.Body, p.Kind)
	return err
}

func (c *Coordinator) handleEditMessage(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p editMessagePayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	_, err := c.EditMessage(ctx, sessionID, p.MessageID, p.Body)
	return err
}

func (c *Coordinator) handleDeleteMessage(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p messageRefPayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	return c.DeleteMessage(ctx, sessionID, p.MessageID)
}

func (c *Coordinator) handleStartTyping(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p roomPayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	c.StartTyping(ctx, sessionID, p.RoomID)
	return nil
}

func (c *Coordinator) handleStopTyping(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p roomPayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	c.StopTyping(ctx, sessionID, p.RoomID)
	return nil
}

func (c *Coordinator) handleSetStatus(ctx context.Context, sessionID string, data json.RawMessage) error {
	var p setStatusPayload
	if err := c.decode(data, &p); err != nil {
		return err
	}
	return c.SetStatus(ctx, sessionID, p.Status)
}

func (c *Coordinator) handleDisconnect(ctx context.Context, sessionID string, _ json.RawMessage) error {
	c.Disconnect(ctx, sessionID)
	return nil
}
