package chat

import (
	"errors"
	"sort"
	"sync"
	"time"

	"presence_chat_server/pkg/errorx"
)

// errUnknownSession 会话记录不存在，属于调用方的编程错误
var errUnknownSession = errors.New("unknown session")

// Session 会话快照
type Session struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principalId,omitempty"`
	Rooms       []string  `json:"rooms"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Authenticated 会话是否已绑定身份
func (s Session) Authenticated() bool {
	return s.PrincipalID != ""
}

// Recipient 一个可投递的目标会话
type Recipient struct {
	SessionID   string
	PrincipalID string
	Conn        Conn
}

// RemovedSession RemoveSession 的结果
// Remaining 为该用户剩余的会话数，为 0 时调用方应将其标记为离线
type RemovedSession struct {
	Session
	Conn      Conn
	Remaining int
}

type sessionRecord struct {
	id          string
	principalID string
	conn        Conn
	rooms       map[string]struct{}
	connectedAt time.Time
}

func (r *sessionRecord) snapshot() Session {
	rooms := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		rooms = append(rooms, id)
	}
	sort.Strings(rooms)
	return Session{
		ID:          r.id,
		PrincipalID: r.principalID,
		Rooms:       rooms,
		ConnectedAt: r.connectedAt,
	}
}

// Directory 会话登记表
// 维护 会话 <-> 用户 以及 房间 -> 实时订阅会话 两组索引，一把读写锁保护全部状态
type Directory struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionRecord
	byPrincipal map[string]map[string]struct{}
	subscribers map[string]map[string]struct{}
	now         func() time.Time
}

// NewDirectory 创建空的 Directory
func NewDirectory() *Directory {
	return &Directory{
		sessions:    make(map[string]*sessionRecord),
		byPrincipal: make(map[string]map[string]struct{}),
		subscribers: make(map[string]map[string]struct{}),
		now:         time.Now,
	}
}

// RegisterSession 登记一个未认证的会话
// 同一个 sessionID 重复登记时保留原记录
func (d *Directory) RegisterSession(sessionID string, conn Conn) Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rec, ok := d.sessions[sessionID]; ok {
		return rec.snapshot()
	}
	rec := &sessionRecord{
		id:          sessionID,
		conn:        conn,
		rooms:       make(map[string]struct{}),
		connectedAt: d.now(),
	}
	d.sessions[sessionID] = rec
	return rec.snapshot()
}

// Authenticate 把用户绑定到会话
// 已绑定的会话拒绝再次认证；返回绑定后该用户的会话数
func (d *Directory) Authenticate(sessionID, principalID string) (Session, int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.sessions[sessionID]
	if !ok {
		return Session{}, 0, errUnknownSession
	}
	if rec.principalID != "" {
		return rec.snapshot(), len(d.byPrincipal[rec.principalID]), errorx.ErrAlreadyAuthenticated
	}
	rec.principalID = principalID
	set, ok := d.byPrincipal[principalID]
	if !ok {
		set = make(map[string]struct{})
		d.byPrincipal[principalID] = set
	}
	set[sessionID] = struct{}{}
	return rec.snapshot(), len(set), nil
}

// Session 查询会话快照
func (d *Directory) Session(sessionID string) (Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return rec.snapshot(), true
}

// LookupByPrincipal 返回该用户全部会话 ID
func (d *Directory) LookupByPrincipal(principalID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return sortedKeys(d.byPrincipal[principalID])
}

// SessionCount 返回该用户当前的会话数
func (d *Directory) SessionCount(principalID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.byPrincipal[principalID])
}

// RemoveSession 删除会话记录并撤销它的全部订阅
// 会话不存在时返回 false
func (d *Directory) RemoveSession(sessionID string) (RemovedSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.sessions[sessionID]
	if !ok {
		return RemovedSession{}, false
	}
	snap := rec.snapshot()
	delete(d.sessions, sessionID)

	for roomID := range rec.rooms {
		d.dropSubscriber(roomID, sessionID)
	}

	remaining := 0
	if rec.principalID != "" {
		if set, ok := d.byPrincipal[rec.principalID]; ok {
			delete(set, sessionID)
			remaining = len(set)
			if remaining == 0 {
				delete(d.byPrincipal, rec.principalID)
			}
		}
	}
	return RemovedSession{Session: snap, Conn: rec.conn, Remaining: remaining}, true
}

// Subscribe 让会话订阅房间，返回订阅状态是否发生变化
// 成员资格由调用方在此之前校验
func (d *Directory) Subscribe(sessionID, roomID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.sessions[sessionID]
	if !ok {
		return false, errUnknownSession
	}
	if rec.principalID == "" {
		return false, errorx.ErrNotAuthenticated
	}
	if _, ok := rec.rooms[roomID]; ok {
		return false, nil
	}
	rec.rooms[roomID] = struct{}{}
	set, ok := d.subscribers[roomID]
	if !ok {
		set = make(map[string]struct{})
		d.subscribers[roomID] = set
	}
	set[sessionID] = struct{}{}
	return true, nil
}

// Unsubscribe 取消订阅，返回订阅状态是否发生变化
func (d *Directory) Unsubscribe(sessionID, roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := rec.rooms[roomID]; !ok {
		return false
	}
	delete(rec.rooms, roomID)
	d.dropSubscriber(roomID, sessionID)
	return true
}

// IsSubscribed 会话是否订阅了房间
func (d *Directory) IsSubscribed(sessionID, roomID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.subscribers[roomID][sessionID]
	return ok
}

// SubscribedSessionsOf 返回该用户订阅了指定房间的会话
func (d *Directory) SubscribedSessionsOf(principalID, roomID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	for sessionID := range d.byPrincipal[principalID] {
		if _, ok := d.subscribers[roomID][sessionID]; ok {
			out = append(out, sessionID)
		}
	}
	sort.Strings(out)
	return out
}

// Subscribers 房间当前的实时订阅者
func (d *Directory) Subscribers(roomID string) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.recipientsLocked(sortedKeys(d.subscribers[roomID]))
}

// Recipients 按会话 ID 取投递目标，不存在的会话被忽略
func (d *Directory) Recipients(sessionIDs ...string) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.recipientsLocked(sessionIDs)
}

// RecipientsOfPrincipal 该用户全部会话的投递目标
func (d *Directory) RecipientsOfPrincipal(principalID string) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.recipientsLocked(sortedKeys(d.byPrincipal[principalID]))
}

// AuthenticatedRecipients 所有已认证会话
func (d *Directory) AuthenticatedRecipients() []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Recipient, 0, len(d.sessions))
	for _, rec := range d.sessions {
		if rec.principalID == "" {
			continue
		}
		out = append(out, Recipient{SessionID: rec.id, PrincipalID: rec.principalID, Conn: rec.conn})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// OnlinePrincipals 至少有一个会话的用户
func (d *Directory) OnlinePrincipals() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return sortedKeys(d.byPrincipal)
}

func (d *Directory) recipientsLocked(sessionIDs []string) []Recipient {
	out := make([]Recipient, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		rec, ok := d.sessions[id]
		if !ok {
			continue
		}
		out = append(out, Recipient{SessionID: rec.id, PrincipalID: rec.principalID, Conn: rec.conn})
	}
	return out
}

func (d *Directory) dropSubscriber(roomID, sessionID string) {
	set, ok := d.subscribers[roomID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(d.subscribers, roomID)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
