package chat

import (
	"sort"
	"strings"
	"sync"
	"time"

	"presence_chat_server/pkg/errorx"
)

// IDGenerator 生成全局唯一 ID，生产环境使用雪花算法
type IDGenerator interface {
	NextID() string
}

type roomEntry struct {
	mu           sync.RWMutex
	room         Room // Participants 与 LastMessage 由下面两个字段维护，不直接使用
	participants []string
	members      map[string]struct{}
	// 追加顺序即时间顺序，只追加不重排
	messages []Message
}

func (e *roomEntry) snapshotLocked() Room {
	r := e.room
	r.Participants = append([]string(nil), e.participants...)
	r.LastMessage = nil
	if n := len(e.messages); n > 0 {
		last := e.messages[n-1]
		r.LastMessage = &last
	}
	return r
}

func (e *roomEntry) indexOfLocked(messageID string) int {
	for i := range e.messages {
		if e.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// RoomStore 房间元数据与每个房间的消息历史
// 房间表由 mu 保护，单个房间的成员与消息由房间自己的读写锁保护，两把锁从不同时持有
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
	// messageID -> roomID，消息按 ID 全局寻址但存放在各自房间
	messageRooms map[string]string
	ids          IDGenerator
	now          func() time.Time
}

// NewRoomStore 创建 RoomStore
func NewRoomStore(ids IDGenerator) *RoomStore {
	return &RoomStore{
		rooms:        make(map[string]*roomEntry),
		messageRooms: make(map[string]string),
		ids:          ids,
		now:          time.Now,
	}
}

func validKind(k RoomKind) bool {
	switch k {
	case RoomChannel, RoomDirect, RoomGroup:
		return true
	}
	return false
}

// CreateRoom 创建房间，创建者总会出现在成员列表里
func (s *RoomStore) CreateRoom(spec RoomSpec) (Room, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" || spec.CreatedBy == "" {
		return Room{}, errorx.Newf(errorx.CodeInvalidParam, "room name and creator are required")
	}
	if spec.Kind == "" {
		spec.Kind = RoomChannel
	}
	if !validKind(spec.Kind) {
		return Room{}, errorx.Newf(errorx.CodeInvalidParam, "unknown room kind %q", spec.Kind)
	}

	entry := &roomEntry{members: make(map[string]struct{})}
	for _, id := range append([]string{spec.CreatedBy}, spec.Participants...) {
		if id == "" {
			continue
		}
		if _, ok := entry.members[id]; ok {
			continue
		}
		entry.members[id] = struct{}{}
		entry.participants = append(entry.participants, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := spec.ID
	if id == "" {
		id = s.ids.NextID()
	}
	if _, exists := s.rooms[id]; exists {
		return Room{}, errorx.Newf(errorx.CodeInvalidParam, "room %s already exists", id)
	}
	entry.room = Room{
		ID:          id,
		Name:        name,
		Kind:        spec.Kind,
		CreatedBy:   spec.CreatedBy,
		CreatedAt:   s.now(),
		IsPrivate:   spec.IsPrivate,
		Description: spec.Description,
	}
	s.rooms[id] = entry
	return entry.snapshotLocked(), nil
}

func (s *RoomStore) entry(roomID string) (*roomEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.rooms[roomID]
	if !ok {
		return nil, errorx.ErrRoomNotFound
	}
	return e, nil
}

// GetRoom 查询房间
func (s *RoomStore) GetRoom(roomID string) (Room, error) {
	e, err := s.entry(roomID)
	if err != nil {
		return Room{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked(), nil
}

// RoomsOf 该用户参与的全部房间，按 ID 排序
func (s *RoomStore) RoomsOf(principalID string) []Room {
	s.mu.RLock()
	entries := make([]*roomEntry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []Room
	for _, e := range entries {
		e.mu.RLock()
		if _, ok := e.members[principalID]; ok {
			out = append(out, e.snapshotLocked())
		}
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddParticipant 把用户加入房间成员，已是成员时不做改动
func (s *RoomStore) AddParticipant(roomID, principalID string) (Room, error) {
	e, err := s.entry(roomID)
	if err != nil {
		return Room{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.members[principalID]; !ok {
		e.members[principalID] = struct{}{}
		e.participants = append(e.participants, principalID)
	}
	return e.snapshotLocked(), nil
}

// RemoveParticipant 移除成员，返回状态是否变化
// 房间或成员不存在都返回 false：离开与断线并发是常态
func (s *RoomStore) RemoveParticipant(roomID, principalID string) bool {
	e, err := s.entry(roomID)
	if err != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.members[principalID]; !ok {
		return false
	}
	delete(e.members, principalID)
	for i, id := range e.participants {
		if id == principalID {
			e.participants = append(e.participants[:i], e.participants[i+1:]...)
			break
		}
	}
	return true
}

// IsParticipant 用户是否为房间成员
func (s *RoomStore) IsParticipant(roomID, principalID string) (bool, error) {
	e, err := s.entry(roomID)
	if err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.members[principalID]
	return ok, nil
}

// AppendMessage 生成 ID 与时间戳后追加到房间历史末尾
func (s *RoomStore) AppendMessage(roomID string, draft MessageDraft) (Message, error) {
	e, err := s.entry(roomID)
	if err != nil {
		return Message{}, err
	}
	kind := draft.Kind
	if kind == "" {
		kind = MessageText
	}

	e.mu.Lock()
	msg := Message{
		ID:           s.ids.NextID(),
		RoomID:       roomID,
		SenderID:     draft.SenderID,
		SenderName:   draft.SenderName,
		SenderAvatar: draft.SenderAvatar,
		Body:         draft.Body,
		Kind:         kind,
		CreatedAt:    s.now(),
	}
	e.messages = append(e.messages, msg)
	e.mu.Unlock()

	s.mu.Lock()
	s.messageRooms[msg.ID] = roomID
	s.mu.Unlock()
	return msg, nil
}

// GetMessages 按"最新在前"返回消息：先从末尾跳过 offset 条，再取 limit 条
// limit <= 0 表示不限条数；范围之外返回空切片
func (s *RoomStore) GetMessages(roomID string, limit, offset int) ([]Message, error) {
	e, err := s.entry(roomID)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	end := len(e.messages) - offset
	if end <= 0 {
		return []Message{}, nil
	}
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	out := make([]Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		out = append(out, e.messages[i])
	}
	return out, nil
}

func (s *RoomStore) roomOfMessage(messageID string) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.messageRooms[messageID]
	if !ok {
		return nil, false
	}
	e, ok := s.rooms[roomID]
	return e, ok
}

// FindMessage 按 ID 查询消息
func (s *RoomStore) FindMessage(messageID string) (Message, error) {
	e, ok := s.roomOfMessage(messageID)
	if !ok {
		return Message{}, errorx.ErrMessageNotFound
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := e.indexOfLocked(messageID)
	if i < 0 {
		return Message{}, errorx.ErrMessageNotFound
	}
	return e.messages[i], nil
}

// EditMessage 原地修改正文并打上编辑标记
func (s *RoomStore) EditMessage(messageID, body string) (Message, error) {
	e, ok := s.roomOfMessage(messageID)
	if !ok {
		return Message{}, errorx.ErrMessageNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOfLocked(messageID)
	if i < 0 {
		return Message{}, errorx.ErrMessageNotFound
	}
	at := s.now()
	e.messages[i].Body = body
	e.messages[i].Edited = true
	e.messages[i].EditedAt = &at
	return e.messages[i], nil
}

// DeleteMessage 删除消息，返回是否删除成功
// 房间的最后一条消息始终由剩余历史的末尾推出
func (s *RoomStore) DeleteMessage(messageID string) bool {
	e, ok := s.roomOfMessage(messageID)
	if !ok {
		return false
	}
	e.mu.Lock()
	i := e.indexOfLocked(messageID)
	if i >= 0 {
		e.messages = append(e.messages[:i], e.messages[i+1:]...)
	}
	e.mu.Unlock()
	if i < 0 {
		return false
	}

	s.mu.Lock()
	delete(s.messageRooms, messageID)
	s.mu.Unlock()
	return true
}
