package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"presence_chat_server/pkg/constants"
	"presence_chat_server/pkg/errorx"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errInvariant 内部状态不一致，只影响出错的那个会话：强制关闭并记录日志
var errInvariant = errors.New("invariant violation")

// Settings 协调器运行参数，零值字段使用默认值
type Settings struct {
	TypingTimeout   time.Duration
	SweepInterval   time.Duration
	MaxBodyLength   int
	HistoryLimit    int
	MaxHistoryLimit int
}

func (s *Settings) applyDefaults() {
	if s.TypingTimeout <= 0 {
		s.TypingTimeout = constants.TYPING_TIMEOUT
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = constants.TYPING_SWEEP
	}
	if s.MaxBodyLength <= 0 {
		s.MaxBodyLength = constants.MAX_BODY_LENGTH
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = constants.DEFAULT_HISTORY_SIZE
	}
	if s.MaxHistoryLimit <= 0 {
		s.MaxHistoryLimit = constants.MAX_HISTORY_SIZE
	}
	if s.HistoryLimit > s.MaxHistoryLimit {
		s.HistoryLimit = s.MaxHistoryLimit
	}
}

// Deps 协调器的外部依赖
// Presence 与 Journal 可为空
type Deps struct {
	Verifier   TokenVerifier
	Principals PrincipalStore
	IDs        IDGenerator
	Presence   PresenceSink
	Journal    Journal
	Settings   Settings
}

type uuidIDs struct{}

func (uuidIDs) NextID() string { return uuid.NewString() }

// Coordinator 会话协调器
// 每个连接一条状态机：Connected -> Authenticated -> Closed
// 同一房间上的 加入/离开/发消息/编辑/删除 经由房间锁串行，保证成员关系与订阅一致、房间内投递顺序与追加顺序一致；
// 同一用户的 上线/下线/改状态 经由用户锁串行，保证在线状态按会话数聚合
type Coordinator struct {
	dir    *Directory
	rooms  *RoomStore
	typing *TypingTracker
	broker *Broker

	verifier   TokenVerifier
	principals PrincipalStore
	presence   PresenceSink
	journal    Journal
	writer     *presenceWriter
	validate   *validator.Validate
	settings   Settings

	roomGates      *keyedMutex
	principalGates *keyedMutex

	// 在线用户资料缓存，用户最后一个会话断开时删除
	profileMu sync.RWMutex
	profiles  map[string]Principal

	handlers map[string]handlerFunc
	now      func() time.Time
}

// NewCoordinator 创建协调器（依赖注入）
func NewCoordinator(deps Deps) *Coordinator {
	deps.Settings.applyDefaults()
	ids := deps.IDs
	if ids == nil {
		ids = uuidIDs{}
	}
	dir := NewDirectory()
	c := &Coordinator{
		dir:            dir,
		rooms:          NewRoomStore(ids),
		typing:         NewTypingTracker(deps.Settings.TypingTimeout),
		broker:         NewBroker(dir),
		verifier:       deps.Verifier,
		principals:     deps.Principals,
		presence:       deps.Presence,
		journal:        deps.Journal,
		writer:         newPresenceWriter(deps.Principals),
		validate:       validator.New(),
		settings:       deps.Settings,
		roomGates:      newKeyedMutex(),
		principalGates: newKeyedMutex(),
		profiles:       make(map[string]Principal),
		now:            time.Now,
	}
	c.registerHandlers()
	return c
}

// Directory 会话登记表
func (c *Coordinator) Directory() *Directory { return c.dir }

// Rooms 房间存储
func (c *Coordinator) Rooms() *RoomStore { return c.rooms }

// Typing 输入状态
func (c *Coordinator) Typing() *TypingTracker { return c.typing }

// Settings 生效中的运行参数
func (c *Coordinator) Settings() Settings { return c.settings }

// Connect 登记新连接，此时会话处于未认证状态
func (c *Coordinator) Connect(sessionID string, conn Conn) Session {
	sess := c.dir.RegisterSession(sessionID, conn)
	zap.L().Debug("会话已连接", zap.String("session", sessionID))
	return sess
}

// Authenticate 校验 token 并绑定用户
// 用户的第一个会话会把其状态置为 online 并广播给所有其他会话
func (c *Coordinator) Authenticate(ctx context.Context, sessionID, token string) (Principal, error) {
	sess, ok := c.dir.Session(sessionID)
	if !ok {
		return Principal{}, errUnknownSession
	}
	if sess.Authenticated() {
		return Principal{}, errorx.ErrAlreadyAuthenticated
	}

	identity, err := c.verifier.Verify(ctx, token)
	if err != nil {
		// 校验器的具体原因只进日志，客户端统一看到 InvalidToken
		return Principal{}, errorx.Wrap(err, errorx.CodeInvalidToken, "InvalidToken")
	}
	stored, err := c.principals.GetByID(ctx, identity.PrincipalID)
	if err != nil {
		return Principal{}, errorx.Wrap(err, errorx.CodeDBError, "查询用户失败")
	}
	if stored == nil {
		return Principal{}, errorx.ErrInvalidToken
	}
	profile := *stored
	if profile.DisplayName == "" {
		profile.DisplayName = identity.DisplayName
	}
	if profile.Email == "" {
		profile.Email = identity.Email
	}

	unlock := c.principalGates.Lock(profile.ID)
	defer unlock()

	_, count, err := c.dir.Authenticate(sessionID, profile.ID)
	if err != nil {
		return Principal{}, err
	}
	if count == 1 {
		now := c.now()
		profile.Status = StatusOnline
		profile.LastSeen = now
		c.writer.submit(profile.ID, StatusOnline, now)
		c.remember(profile)
	} else if cached, ok := c.cached(profile.ID); ok {
		profile = cached
	}

	c.broker.SendTo(sessionID, OutboundEvent{Event: EventAuthenticated, Data: profile})
	if count == 1 {
		c.announceStatus(profile.ID, StatusOnline, profile.LastSeen, sessionID)
	}
	zap.L().Info("会话已认证",
		zap.String("session", sessionID),
		zap.String("principal", profile.ID),
		zap.Int("sessions", count))
	return profile, nil
}

// JoinRoom 订阅房间，必要时先加入成员
// 用户的第一个订阅该房间的会话才会向房间其他订阅者广播 userJoined
func (c *Coordinator) JoinRoom(ctx context.Context, sessionID, roomID string) (Room, error) {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return Room{}, err
	}
	profile, err := c.profileOf(ctx, principalID)
	if err != nil {
		return Room{}, err
	}

	unlock := c.roomGates.Lock(roomID)
	defer unlock()

	room, err := c.rooms.GetRoom(roomID)
	if err != nil {
		return Room{}, err
	}
	if !room.HasParticipant(principalID) {
		if room.IsPrivate {
			return Room{}, errorx.ErrNotAMember
		}
		if room, err = c.rooms.AddParticipant(roomID, principalID); err != nil {
			return Room{}, err
		}
	}
	changed, err := c.dir.Subscribe(sessionID, roomID)
	if err != nil {
		return Room{}, err
	}

	c.broker.SendTo(sessionID, OutboundEvent{Event: EventRoomJoined, Data: room})
	if changed && len(c.dir.SubscribedSessionsOf(principalID, roomID)) == 1 {
		c.broker.Publish(roomID, OutboundEvent{
			Event: EventUserJoined,
			Data:  UserJoinedPayload{RoomID: roomID, Principal: profile},
		}, sessionID)
	}
	zap.L().Debug("加入房间", zap.String("session", sessionID), zap.String("room", roomID))
	return room, nil
}

// LeaveRoom 取消订阅，未订阅时什么也不做
// 成员关系不变，离开成员关系走 ForgetRoom
func (c *Coordinator) LeaveRoom(ctx context.Context, sessionID, roomID string) error {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return err
	}

	unlock := c.roomGates.Lock(roomID)
	defer unlock()

	if !c.dir.IsSubscribed(sessionID, roomID) {
		return nil
	}
	if _, err := c.rooms.GetRoom(roomID); err != nil {
		return fmt.Errorf("%w: session %s subscribed to unknown room %s", errInvariant, sessionID, roomID)
	}
	if !c.dir.Unsubscribe(sessionID, roomID) {
		return nil
	}

	c.broker.SendTo(sessionID, OutboundEvent{Event: EventRoomLeft, Data: RoomLeftPayload{RoomID: roomID}})
	if k, ok := c.typing.ClearSessionInRoom(sessionID, roomID); ok {
		c.publishStoppedTypingLocked(k)
	}
	if len(c.dir.SubscribedSessionsOf(principalID, roomID)) == 0 {
		c.broker.Publish(roomID, OutboundEvent{
			Event: EventUserLeft,
			Data:  UserLeftPayload{RoomID: roomID, PrincipalID: principalID},
		})
	}
	zap.L().Debug("离开房间", zap.String("session", sessionID), zap.String("room", roomID))
	return nil
}

// SendMessage 追加消息并投递给房间全部实时订阅者（包括发送者自己的会话）
// 校验失败的消息直接丢弃，不排队也不重试
func (c *Coordinator) SendMessage(ctx context.Context, sessionID, roomID, body string, kind MessageKind) (Message, error) {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return Message{}, err
	}
	if err := c.checkBody(body); err != nil {
		return Message{}, err
	}
	if kind == "" {
		kind = MessageText
	}
	if kind != MessageText && kind != MessageImage && kind != MessageFile {
		return Message{}, errorx.Wrap(fmt.Errorf("unknown message kind %q", kind), errorx.CodeInvalidPayload, "InvalidPayload")
	}
	profile, err := c.profileOf(ctx, principalID)
	if err != nil {
		return Message{}, err
	}

	unlock := c.roomGates.Lock(roomID)
	member, err := c.rooms.IsParticipant(roomID, principalID)
	if err != nil {
		unlock()
		return Message{}, err
	}
	if !member {
		unlock()
		return Message{}, errorx.ErrNotAMember
	}
	msg, err := c.rooms.AppendMessage(roomID, MessageDraft{
		SenderID:     principalID,
		SenderName:   profile.DisplayName,
		SenderAvatar: profile.Avatar,
		Body:         body,
		Kind:         kind,
	})
	if err != nil {
		unlock()
		return Message{}, err
	}
	// 发出消息即视为停止输入
	if c.typing.ClearTyping(roomID, principalID) {
		c.publishStoppedTypingLocked(TypingKey{RoomID: roomID, PrincipalID: principalID})
	}
	c.broker.Publish(roomID, OutboundEvent{Event: EventMessageReceived, Data: msg})
	c.record(ctx, JournalCreated, msg)
	unlock()
	return msg, nil
}

// EditMessage 修改自己发送的消息
func (c *Coordinator) EditMessage(ctx context.Context, sessionID, messageID, body string) (Message, error) {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return Message{}, err
	}
	if err := c.checkBody(body); err != nil {
		return Message{}, err
	}
	orig, err := c.rooms.FindMessage(messageID)
	if err != nil {
		return Message{}, err
	}
	if orig.SenderID != principalID {
		return Message{}, errorx.ErrNotMessageOwner
	}

	unlock := c.roomGates.Lock(orig.RoomID)
	msg, err := c.rooms.EditMessage(messageID, body)
	if err != nil {
		unlock()
		return Message{}, err
	}
	c.broker.Publish(msg.RoomID, OutboundEvent{Event: EventMessageEdited, Data: msg})
	c.record(ctx, JournalEdited, msg)
	unlock()
	return msg, nil
}

// DeleteMessage 删除自己发送的消息
func (c *Coordinator) DeleteMessage(ctx context.Context, sessionID, messageID string) error {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return err
	}
	msg, err := c.rooms.FindMessage(messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != principalID {
		return errorx.ErrNotMessageOwner
	}

	unlock := c.roomGates.Lock(msg.RoomID)
	if !c.rooms.DeleteMessage(messageID) {
		unlock()
		return errorx.ErrMessageNotFound
	}
	c.broker.Publish(msg.RoomID, OutboundEvent{
		Event: EventMessageDeleted,
		Data:  MessageDeletedPayload{MessageID: messageID, RoomID: msg.RoomID},
	})
	c.record(ctx, JournalDeleted, msg)
	unlock()
	return nil
}

// StartTyping 标记正在输入并通知房间内其他用户
// 未认证、房间不存在或不是成员时静默忽略
func (c *Coordinator) StartTyping(ctx context.Context, sessionID, roomID string) {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return
	}
	if member, err := c.rooms.IsParticipant(roomID, principalID); err != nil || !member {
		zap.L().Debug("忽略输入状态", zap.String("session", sessionID), zap.String("room", roomID))
		return
	}
	profile, err := c.profileOf(ctx, principalID)
	if err != nil {
		return
	}

	unlock := c.roomGates.Lock(roomID)
	defer unlock()

	c.typing.SetTyping(roomID, principalID, sessionID)
	c.broker.PublishExceptPrincipal(roomID, principalID, OutboundEvent{
		Event: EventUserTyping,
		Data:  TypingPayload{PrincipalID: principalID, DisplayName: profile.DisplayName, RoomID: roomID},
	})
}

// StopTyping 清除输入状态，条目不存在时不广播
func (c *Coordinator) StopTyping(ctx context.Context, sessionID, roomID string) {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return
	}

	unlock := c.roomGates.Lock(roomID)
	defer unlock()

	if c.typing.ClearTyping(roomID, principalID) {
		c.publishStoppedTypingLocked(TypingKey{RoomID: roomID, PrincipalID: principalID})
	}
}

// SetStatus 用户主动切换 online / away
// offline 只由最后一个会话断开产生
func (c *Coordinator) SetStatus(ctx context.Context, sessionID string, status PresenceStatus) error {
	principalID, err := c.principalOf(sessionID)
	if err != nil {
		return err
	}
	if status != StatusOnline && status != StatusAway {
		return errorx.Wrap(fmt.Errorf("status %q cannot be set by clients", status), errorx.CodeInvalidPayload, "InvalidPayload")
	}

	unlock := c.principalGates.Lock(principalID)
	defer unlock()

	now := c.now()
	c.writer.submit(principalID, status, now)
	c.profileMu.Lock()
	if p, ok := c.profiles[principalID]; ok {
		p.Status = status
		p.LastSeen = now
		c.profiles[principalID] = p
	}
	c.profileMu.Unlock()

	c.announceStatus(principalID, status, now, sessionID)
	return nil
}

// Disconnect 会话进入终态：移除会话与订阅、清除它拥有的输入状态，用户没有剩余会话时置为 offline
// 可重复调用，会话不存在时什么也不做
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string) {
	sess, ok := c.dir.Session(sessionID)
	if !ok {
		return
	}

	unlock := func() {}
	if sess.Authenticated() {
		unlock = c.principalGates.Lock(sess.PrincipalID)
	}
	removed, ok := c.dir.RemoveSession(sessionID)
	if ok && sess.Authenticated() && removed.Remaining == 0 {
		c.markOffline(removed.PrincipalID)
	}
	unlock()
	if !ok {
		return
	}
	if !sess.Authenticated() && removed.Authenticated() {
		// 查询与移除之间完成了认证，等认证流程释放用户锁后再结算
		unlock = c.principalGates.Lock(removed.PrincipalID)
		if c.dir.SessionCount(removed.PrincipalID) == 0 {
			c.markOffline(removed.PrincipalID)
		}
		unlock()
	}

	for _, k := range c.typing.ClearSession(sessionID) {
		c.publishStoppedTyping(k)
	}
	if removed.Conn != nil {
		_ = removed.Conn.Close()
	}
	zap.L().Info("会话已断开",
		zap.String("session", sessionID),
		zap.String("principal", removed.PrincipalID),
		zap.Int("remaining", removed.Remaining))
}

// Run 周期性清理过期的输入状态并广播 userStoppedTyping，直到 ctx 结束
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.settings.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SweepTyping()
		}
	}
}

// FlushPresence 等待已提交的在线状态写入完成，关闭前调用
func (c *Coordinator) FlushPresence() {
	c.writer.wait()
}

// SweepTyping 执行一轮输入状态清理，返回被清理的条目数
func (c *Coordinator) SweepTyping() int {
	expired := c.typing.Sweep()
	for _, k := range expired {
		c.publishStoppedTyping(k)
	}
	return len(expired)
}

func (c *Coordinator) markOffline(principalID string) {
	now := c.now()
	c.writer.submit(principalID, StatusOffline, now)
	c.profileMu.Lock()
	delete(c.profiles, principalID)
	c.profileMu.Unlock()
	c.announceStatus(principalID, StatusOffline, now, "")
}

func (c *Coordinator) announceStatus(principalID string, status PresenceStatus, at time.Time, exceptSession string) {
	if c.presence != nil {
		c.presence.PresenceChanged(principalID, status, at)
	}
	c.broker.PublishAll(OutboundEvent{
		Event: EventUserStatusChanged,
		Data:  StatusChangedPayload{PrincipalID: principalID, Status: status},
	}, exceptSession)
}

func (c *Coordinator) publishStoppedTyping(k TypingKey) {
	unlock := c.roomGates.Lock(k.RoomID)
	defer unlock()
	c.publishStoppedTypingLocked(k)
}

// 调用方需持有房间锁
func (c *Coordinator) publishStoppedTypingLocked(k TypingKey) {
	c.broker.PublishExceptPrincipal(k.RoomID, k.PrincipalID, OutboundEvent{
		Event: EventUserStoppedTyping,
		Data:  TypingPayload{PrincipalID: k.PrincipalID, RoomID: k.RoomID},
	})
}

// record 在房间锁内调用，日志顺序与房间内追加顺序一致；Journal.Record 只入队不做 I/O
func (c *Coordinator) record(ctx context.Context, op string, msg Message) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(ctx, JournalEntry{Op: op, Message: msg, At: c.now()}); err != nil {
		zap.L().Warn("写入消息日志失败", zap.String("op", op), zap.String("message", msg.ID), zap.Error(err))
	}
}

func (c *Coordinator) checkBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return errorx.Wrap(errors.New("empty body"), errorx.CodeInvalidPayload, "InvalidPayload")
	}
	if n := utf8.RuneCountInString(body); n > c.settings.MaxBodyLength {
		return errorx.Wrap(fmt.Errorf("body has %d characters, limit %d", n, c.settings.MaxBodyLength),
			errorx.CodeInvalidPayload, "InvalidPayload")
	}
	return nil
}

// principalOf 返回会话绑定的用户，未认证时返回 NotAuthenticated
func (c *Coordinator) principalOf(sessionID string) (string, error) {
	sess, ok := c.dir.Session(sessionID)
	if !ok {
		return "", errUnknownSession
	}
	if !sess.Authenticated() {
		return "", errorx.ErrNotAuthenticated
	}
	return sess.PrincipalID, nil
}

func (c *Coordinator) remember(p Principal) {
	c.profileMu.Lock()
	c.profiles[p.ID] = p
	c.profileMu.Unlock()
}

func (c *Coordinator) cached(principalID string) (Principal, bool) {
	c.profileMu.RLock()
	defer c.profileMu.RUnlock()
	p, ok := c.profiles[principalID]
	return p, ok
}

// profileOf 优先读在线缓存，否则回源 PrincipalStore
func (c *Coordinator) profileOf(ctx context.Context, principalID string) (Principal, error) {
	if p, ok := c.cached(principalID); ok {
		return p, nil
	}
	p, err := c.principals.GetByID(ctx, principalID)
	if err != nil {
		return Principal{}, errorx.Wrap(err, errorx.CodeDBError, "查询用户失败")
	}
	if p == nil {
		return Principal{}, errorx.Newf(errorx.CodeNotFound, "用户 %s 不存在", principalID)
	}
	return *p, nil
}
