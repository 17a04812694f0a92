// Package chat 实现了在线状态与房间消息协调的核心
// 包含五个组件：Directory（会话与订阅登记）、RoomStore（房间与消息历史）、
// TypingTracker（正在输入状态）、Broker（广播路由）、Coordinator（每个连接的状态机）
package chat

import (
	"context"
	"time"
)

// PresenceStatus 用户在线状态
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusAway    PresenceStatus = "away"
	StatusOffline PresenceStatus = "offline"
)

// RoomKind 房间类型
type RoomKind string

const (
	RoomChannel RoomKind = "channel"
	RoomDirect  RoomKind = "direct"
	RoomGroup   RoomKind = "group"
)

// MessageKind 消息类型
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageFile  MessageKind = "file"
)

// Principal 已认证的用户身份，与具体连接无关
// 核心只会修改 Status 与 LastSeen
type Principal struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Email       string         `json:"email,omitempty"`
	Avatar      string         `json:"avatar,omitempty"`
	Status      PresenceStatus `json:"status"`
	LastSeen    time.Time      `json:"lastSeen"`
}

// Room 房间元数据
// Participants 是持久成员关系，与会话的实时订阅是两回事
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         RoomKind  `json:"kind"`
	Participants []string  `json:"participants"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	IsPrivate    bool      `json:"isPrivate"`
	Description  string    `json:"description,omitempty"`
	LastMessage  *Message  `json:"lastMessage,omitempty"`
}

// HasParticipant 判断用户是否为房间成员
func (r Room) HasParticipant(principalID string) bool {
	for _, id := range r.Participants {
		if id == principalID {
			return true
		}
	}
	return false
}

// Message 聊天消息
// 发送者昵称和头像在发送时冗余保存，不随用户资料变化
type Message struct {
	ID           string      `json:"id"`
	RoomID       string      `json:"roomId"`
	SenderID     string      `json:"senderId"`
	SenderName   string      `json:"senderName"`
	SenderAvatar string      `json:"senderAvatar,omitempty"`
	Body         string      `json:"body"`
	Kind         MessageKind `json:"kind"`
	CreatedAt    time.Time   `json:"createdAt"`
	Edited       bool        `json:"edited,omitempty"`
	EditedAt     *time.Time  `json:"editedAt,omitempty"`
}

// RoomSpec 创建房间的参数
// ID 为空时由 RoomStore 生成
type RoomSpec struct {
	ID           string
	Name         string
	Kind         RoomKind
	CreatedBy    string
	Participants []string
	IsPrivate    bool
	Description  string
}

// MessageDraft 待写入的消息
type MessageDraft struct {
	SenderID     string
	SenderName   string
	SenderAvatar string
	Body         string
	Kind         MessageKind
}

// Identity token 校验通过后得到的身份信息
type Identity struct {
	PrincipalID string
	DisplayName string
	Email       string
}

// TokenVerifier 外部认证组件
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// PrincipalStore 外部用户存储
// GetByID 在用户不存在时返回 (nil, nil)
type PrincipalStore interface {
	GetByID(ctx context.Context, id string) (*Principal, error)
	List(ctx context.Context) ([]Principal, error)
	UpdatePresence(ctx context.Context, id string, status PresenceStatus, lastSeen time.Time) error
}

// Conn 传输层为每个连接提供的发送能力
// Send 必须是非阻塞的入队操作，缓冲满时返回错误
type Conn interface {
	Send(ev OutboundEvent) error
	Close() error
}

// PresenceSink 在线状态变化的旁路观察者（如 redis 镜像）
type PresenceSink interface {
	PresenceChanged(principalID string, status PresenceStatus, at time.Time)
}

// Journal 消息变更日志（如 kafka），不参与投递
// Record 在房间锁内被调用，必须只入队、不阻塞在网络 I/O 上
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// 消息变更类型
const (
	JournalCreated = "created"
	JournalEdited  = "edited"
	JournalDeleted = "deleted"
)

// JournalEntry 一条消息变更记录
type JournalEntry struct {
	Op      string    `json:"op"`
	Message Message   `json:"message"`
	At      time.Time `json:"at"`
}
