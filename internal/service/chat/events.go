package chat

import "encoding/json"

// 入站事件名
const (
	EventAuthenticate  = "authenticate"
	EventJoinRoom      = "joinRoom"
	EventLeaveRoom     = "leaveRoom"
	EventSendMessage   = "sendMessage"
	EventEditMessage   = "editMessage"
	EventDeleteMessage = "deleteMessage"
	EventStartTyping   = "startTyping"
	EventStopTyping    = "stopTyping"
	EventSetStatus     = "setStatus"
	EventDisconnect    = "disconnect"
)

// 出站事件名
const (
	EventAuthenticated     = "authenticated"
	EventError             = "error"
	EventRoomJoined        = "roomJoined"
	EventRoomLeft          = "roomLeft"
	EventUserJoined        = "userJoined"
	EventUserLeft          = "userLeft"
	EventMessageReceived   = "messageReceived"
	EventMessageEdited     = "messageEdited"
	EventMessageDeleted    = "messageDeleted"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventUserStatusChanged = "userStatusChanged"
)

// InboundEvent 客户端发来的一帧
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEvent 发往客户端的一帧
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ==================== 入站负载 ====================

type authenticatePayload struct {
	Token string `json:"token" validate:"required"`
}

func (p *authenticatePayload) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &p.Token)
	}
	type plain authenticatePayload
	return json.Unmarshal(b, (*plain)(p))
}

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

// 兼容直接传字符串的写法：joinRoom("general")
func (p *roomPayload) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &p.RoomID)
	}
	type plain roomPayload
	return json.Unmarshal(b, (*plain)(p))
}

type sendMessagePayload struct {
	RoomID string      `json:"roomId" validate:"required"`
	Body   string      `json:"body" validate:"required"`
	Kind   MessageKind `json:"kind" validate:"omitempty,oneof=text image file"`
}

type editMessagePayload struct {
	MessageID string `json:"messageId" validate:"required"`
	Body      string `json:"body" validate:"required"`
}

type messageRefPayload struct {
	MessageID string `json:"messageId" validate:"required"`
}

type setStatusPayload struct {
	Status PresenceStatus `json:"status" validate:"required,oneof=online away"`
}

// ==================== 出站负载 ====================

// ErrorPayload error 事件负载
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RoomLeftPayload roomLeft 事件负载
type RoomLeftPayload struct {
	RoomID string `json:"roomId"`
}

// UserJoinedPayload userJoined 事件负载
type UserJoinedPayload struct {
	RoomID    string    `json:"roomId"`
	Principal Principal `json:"principal"`
}

// UserLeftPayload userLeft 事件负载
type UserLeftPayload struct {
	RoomID      string `json:"roomId"`
	PrincipalID string `json:"principalId"`
}

// MessageDeletedPayload messageDeleted 事件负载
type MessageDeletedPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// TypingPayload userTyping / userStoppedTyping 事件负载
type TypingPayload struct {
	PrincipalID string `json:"principalId"`
	DisplayName string `json:"displayName,omitempty"`
	RoomID      string `json:"roomId"`
}

// StatusChangedPayload userStatusChanged 事件负载
type StatusChangedPayload struct {
	PrincipalID string         `json:"principalId"`
	Status      PresenceStatus `json:"status"`
}
