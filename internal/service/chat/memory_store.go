package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryPrincipalStore 进程内的 PrincipalStore，storeConfig.driver = "memory" 时使用
type MemoryPrincipalStore struct {
	mu         sync.RWMutex
	principals map[string]Principal
}

// NewMemoryPrincipalStore 创建内存用户存储并写入初始用户
func NewMemoryPrincipalStore(seed ...Principal) *MemoryPrincipalStore {
	s := &MemoryPrincipalStore{principals: make(map[string]Principal, len(seed))}
	for _, p := range seed {
		s.Put(p)
	}
	return s
}

// Put 新增或覆盖用户，未给出状态时视为离线
func (s *MemoryPrincipalStore) Put(p Principal) {
	if p.Status == "" {
		p.Status = StatusOffline
	}
	s.mu.Lock()
	s.principals[p.ID] = p
	s.mu.Unlock()
}

// GetByID 用户不存在时返回 (nil, nil)
func (s *MemoryPrincipalStore) GetByID(_ context.Context, id string) (*Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// List 全部用户，按 ID 排序
func (s *MemoryPrincipalStore) List(_ context.Context) ([]Principal, error) {
	s.mu.RLock()
	out := make([]Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdatePresence 更新在线状态与最后在线时间，未知用户忽略
func (s *MemoryPrincipalStore) UpdatePresence(_ context.Context, id string, status PresenceStatus, lastSeen time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.principals[id]
	if !ok {
		return nil
	}
	p.Status = status
	p.LastSeen = lastSeen
	s.principals[id] = p
	return nil
}
