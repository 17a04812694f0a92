package chat

import (
	"context"

	"presence_chat_server/pkg/errorx"

	"go.uber.org/zap"
)

// 以下方法服务于 HTTP 接口，调用方身份已由 JWT 中间件确定

// History 房间历史消息，最新在前
// limit <= 0 时取默认条数，超过上限时截断；私有房间只对成员可见
func (c *Coordinator) History(ctx context.Context, principalID, roomID string, limit, offset int) ([]Message, error) {
	room, err := c.rooms.GetRoom(roomID)
	if err != nil {
		return nil, err
	}
	if room.IsPrivate && !room.HasParticipant(principalID) {
		return nil, errorx.ErrNotAMember
	}
	if limit <= 0 {
		limit = c.settings.HistoryLimit
	}
	if limit > c.settings.MaxHistoryLimit {
		limit = c.settings.MaxHistoryLimit
	}
	return c.rooms.GetMessages(roomID, limit, offset)
}

// RoomsOf 用户参与的房间
func (c *Coordinator) RoomsOf(principalID string) []Room {
	return c.rooms.RoomsOf(principalID)
}

// CreateRoom 以调用方为创建者新建房间
func (c *Coordinator) CreateRoom(ctx context.Context, principalID string, spec RoomSpec) (Room, error) {
	spec.ID = ""
	spec.CreatedBy = principalID
	room, err := c.rooms.CreateRoom(spec)
	if err != nil {
		return Room{}, err
	}
	zap.L().Info("房间已创建", zap.String("room", room.ID), zap.String("creator", principalID))
	return room, nil
}

// JoinMembership 加入房间成员关系，不订阅任何会话
// 已是成员时直接返回房间；私有房间只能由创建时指定的成员进入
func (c *Coordinator) JoinMembership(ctx context.Context, principalID, roomID string) (Room, error) {
	unlock := c.roomGates.Lock(roomID)
	defer unlock()

	room, err := c.rooms.GetRoom(roomID)
	if err != nil {
		return Room{}, err
	}
	if room.HasParticipant(principalID) {
		return room, nil
	}
	if room.IsPrivate {
		return Room{}, errorx.ErrNotAMember
	}
	room, err = c.rooms.AddParticipant(roomID, principalID)
	if err != nil {
		return Room{}, err
	}
	zap.L().Info("加入房间成员", zap.String("room", roomID), zap.String("principal", principalID))
	return room, nil
}

// ForgetRoom 退出房间的成员关系
// 该用户所有订阅了房间的会话同时取消订阅并收到 roomLeft，房间其余订阅者收到 userLeft
func (c *Coordinator) ForgetRoom(ctx context.Context, principalID, roomID string) error {
	unlock := c.roomGates.Lock(roomID)
	defer unlock()

	if _, err := c.rooms.GetRoom(roomID); err != nil {
		return err
	}
	if !c.rooms.RemoveParticipant(roomID, principalID) {
		return errorx.ErrNotAMember
	}
	for _, sessionID := range c.dir.SubscribedSessionsOf(principalID, roomID) {
		if !c.dir.Unsubscribe(sessionID, roomID) {
			continue
		}
		c.broker.SendTo(sessionID, OutboundEvent{Event: EventRoomLeft, Data: RoomLeftPayload{RoomID: roomID}})
		if k, ok := c.typing.ClearSessionInRoom(sessionID, roomID); ok {
			c.publishStoppedTypingLocked(k)
		}
	}
	if c.typing.ClearTyping(roomID, principalID) {
		c.publishStoppedTypingLocked(TypingKey{RoomID: roomID, PrincipalID: principalID})
	}
	c.broker.Publish(roomID, OutboundEvent{
		Event: EventUserLeft,
		Data:  UserLeftPayload{RoomID: roomID, PrincipalID: principalID},
	})
	zap.L().Info("退出房间成员", zap.String("room", roomID), zap.String("principal", principalID))
	return nil
}

// OnlinePrincipals 当前至少有一个会话的用户
func (c *Coordinator) OnlinePrincipals(ctx context.Context) []Principal {
	ids := c.dir.OnlinePrincipals()
	out := make([]Principal, 0, len(ids))
	for _, id := range ids {
		p, err := c.profileOf(ctx, id)
		if err != nil {
			zap.L().Warn("读取在线用户资料失败", zap.String("principal", id), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// Principals 全部已知用户，在线用户的状态以内存中的为准
func (c *Coordinator) Principals(ctx context.Context) ([]Principal, error) {
	all, err := c.principals.List(ctx)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "查询用户列表失败")
	}
	for i, p := range all {
		if cached, ok := c.cached(p.ID); ok {
			all[i] = cached
		}
	}
	return all, nil
}

// Principal 查询用户资料，在线用户取缓存中的最新状态
func (c *Coordinator) Principal(ctx context.Context, principalID string) (Principal, error) {
	return c.profileOf(ctx, principalID)
}

// SeedRooms 启动时写入预置房间，已存在的房间跳过
func (c *Coordinator) SeedRooms(specs []RoomSpec) error {
	for _, spec := range specs {
		if spec.ID != "" {
			if _, err := c.rooms.GetRoom(spec.ID); err == nil {
				continue
			}
		}
		room, err := c.rooms.CreateRoom(spec)
		if err != nil {
			return errorx.Wrapf(err, errorx.CodeInvalidParam, "预置房间 %s 失败", spec.Name)
		}
		zap.L().Debug("预置房间", zap.String("room", room.ID), zap.Int("participants", len(room.Participants)))
	}
	return nil
}
