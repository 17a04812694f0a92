package chat

import (
	"sort"
	"sync"
	"time"
)

// TypingKey 一条输入状态：某用户正在某房间输入
type TypingKey struct {
	RoomID      string
	PrincipalID string
}

type typingEntry struct {
	sessionID string // 最后一次刷新该条目的会话，会话断开时据此清理
	expiry    time.Time
}

// TypingTracker 每个房间"正在输入"的用户集合，条目超时自动失效
type TypingTracker struct {
	mu      sync.Mutex
	rooms   map[string]map[string]typingEntry
	timeout time.Duration
	now     func() time.Time
	// 读路径惰性淘汰的条目，等待下一次 Sweep 交给调用方广播
	evicted []TypingKey
}

// NewTypingTracker 创建 TypingTracker，timeout 为单个条目的存活窗口
func NewTypingTracker(timeout time.Duration) *TypingTracker {
	return &TypingTracker{
		rooms:   make(map[string]map[string]typingEntry),
		timeout: timeout,
		now:     time.Now,
	}
}

// SetTyping 插入或刷新条目，返回条目是否为新建
func (t *TypingTracker) SetTyping(roomID, principalID, sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.rooms[roomID]
	if !ok {
		set = make(map[string]typingEntry)
		t.rooms[roomID] = set
	}
	prev, existed := set[principalID]
	set[principalID] = typingEntry{sessionID: sessionID, expiry: t.now().Add(t.timeout)}
	t.forgetEvictedLocked(TypingKey{RoomID: roomID, PrincipalID: principalID})
	return !existed || !prev.expiry.After(t.now())
}

// ClearTyping 删除条目，返回是否删除了一个未过期的条目
func (t *TypingTracker) ClearTyping(roomID, principalID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.rooms[roomID][principalID]
	if !ok {
		return false
	}
	t.deleteLocked(roomID, principalID)
	return entry.expiry.After(t.now())
}

// CurrentlyTyping 房间内正在输入的用户，读取时顺带淘汰过期条目
func (t *TypingTracker) CurrentlyTyping(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out []string
	for principalID, entry := range t.rooms[roomID] {
		if !entry.expiry.After(now) {
			t.deleteLocked(roomID, principalID)
			t.evicted = append(t.evicted, TypingKey{RoomID: roomID, PrincipalID: principalID})
			continue
		}
		out = append(out, principalID)
	}
	sort.Strings(out)
	return out
}

// ClearSession 删除该会话拥有的全部条目，返回被删除的条目
func (t *TypingTracker) ClearSession(sessionID string) []TypingKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []TypingKey
	for roomID, set := range t.rooms {
		for principalID, entry := range set {
			if entry.sessionID == sessionID {
				out = append(out, TypingKey{RoomID: roomID, PrincipalID: principalID})
			}
		}
	}
	for _, k := range out {
		t.deleteLocked(k.RoomID, k.PrincipalID)
	}
	sortTypingKeys(out)
	return out
}

// ClearSessionInRoom 删除该会话在指定房间拥有的条目
func (t *TypingTracker) ClearSessionInRoom(sessionID, roomID string) (TypingKey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for principalID, entry := range t.rooms[roomID] {
		if entry.sessionID == sessionID {
			t.deleteLocked(roomID, principalID)
			return TypingKey{RoomID: roomID, PrincipalID: principalID}, true
		}
	}
	return TypingKey{}, false
}

// Sweep 淘汰全部过期条目，返回本轮以及此前惰性淘汰的条目
func (t *TypingTracker) Sweep() []TypingKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var expired []TypingKey
	for roomID, set := range t.rooms {
		for principalID, entry := range set {
			if !entry.expiry.After(now) {
				expired = append(expired, TypingKey{RoomID: roomID, PrincipalID: principalID})
			}
		}
	}
	for _, k := range expired {
		t.deleteLocked(k.RoomID, k.PrincipalID)
	}
	var out []TypingKey
	for _, k := range t.evicted {
		// 惰性淘汰后又重新输入的用户仍在输入
		if _, live := t.rooms[k.RoomID][k.PrincipalID]; !live {
			out = append(out, k)
		}
	}
	out = append(out, expired...)
	t.evicted = nil
	sortTypingKeys(out)
	return out
}

// forgetEvictedLocked 条目重新出现时撤销尚未上报的惰性淘汰
func (t *TypingTracker) forgetEvictedLocked(k TypingKey) {
	kept := t.evicted[:0]
	for _, e := range t.evicted {
		if e != k {
			kept = append(kept, e)
		}
	}
	t.evicted = kept
}

func (t *TypingTracker) deleteLocked(roomID, principalID string) {
	set, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(set, principalID)
	if len(set) == 0 {
		delete(t.rooms, roomID)
	}
}

func sortTypingKeys(keys []TypingKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].RoomID != keys[j].RoomID {
			return keys[i].RoomID < keys[j].RoomID
		}
		return keys[i].PrincipalID < keys[j].PrincipalID
	})
}
