package chat

import (
	"slices"

	"go.uber.org/zap"
)

// Broker 广播路由
// 投递目标一律在 Directory 的锁内算好，锁释放后再逐个 Send
type Broker struct {
	dir *Directory
}

// NewBroker 创建基于 Directory 的 Broker
func NewBroker(dir *Directory) *Broker {
	return &Broker{dir: dir}
}

// Publish 投递给房间的实时订阅者，跳过 excludeSessions 中的会话
func (b *Broker) Publish(roomID string, ev OutboundEvent, excludeSessions ...string) int {
	recipients := b.dir.Subscribers(roomID)
	if len(excludeSessions) > 0 {
		recipients = filterRecipients(recipients, func(r Recipient) bool {
			return !slices.Contains(excludeSessions, r.SessionID)
		})
	}
	return b.deliver(recipients, ev)
}

// PublishExceptPrincipal 投递给房间订阅者，但跳过某个用户的全部会话
// 输入状态不回显给本人的任何设备
func (b *Broker) PublishExceptPrincipal(roomID, principalID string, ev OutboundEvent) int {
	recipients := filterRecipients(b.dir.Subscribers(roomID), func(r Recipient) bool {
		return r.PrincipalID != principalID
	})
	return b.deliver(recipients, ev)
}

// PublishToPrincipal 投递给该用户的全部会话
func (b *Broker) PublishToPrincipal(principalID string, ev OutboundEvent) int {
	return b.deliver(b.dir.RecipientsOfPrincipal(principalID), ev)
}

// PublishAll 投递给所有已认证会话，用于全局在线状态
// 未认证会话没有身份，不接收在线状态；exceptSession 为触发变化的会话，它已从 authenticated 等响应中得知结果
func (b *Broker) PublishAll(ev OutboundEvent, exceptSession string) int {
	recipients := filterRecipients(b.dir.AuthenticatedRecipients(), func(r Recipient) bool {
		return r.SessionID != exceptSession
	})
	return b.deliver(recipients, ev)
}

// SendTo 投递给单个会话，会话不存在时返回 false
func (b *Broker) SendTo(sessionID string, ev OutboundEvent) bool {
	recipients := b.dir.Recipients(sessionID)
	if len(recipients) == 0 {
		return false
	}
	return b.deliver(recipients, ev) == 1
}

// deliver 返回成功入队的数量
// Send 失败说明对端过慢或已关闭，直接关闭连接，清理交给传输层的关闭回调
func (b *Broker) deliver(recipients []Recipient, ev OutboundEvent) int {
	delivered := 0
	for _, r := range recipients {
		if r.Conn == nil {
			continue
		}
		if err := r.Conn.Send(ev); err != nil {
			zap.L().Warn("投递失败，关闭会话",
				zap.String("session", r.SessionID),
				zap.String("event", ev.Event),
				zap.Error(err))
			_ = r.Conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

func filterRecipients(in []Recipient, keep func(Recipient) bool) []Recipient {
	out := in[:0]
	for _, r := range in {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
