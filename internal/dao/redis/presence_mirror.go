package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"presence_chat_server/internal/service/chat"

	"go.uber.org/zap"
)

const (
	onlineSetKey       = "presence:online"
	statusKeyPrefix    = "presence:status:"
	offlineStatusTTL   = 7 * 24 * time.Hour
	mirrorWriteTimeout = 2 * time.Second
)

// PresenceRecord 镜像到 Redis 的单个用户状态
type PresenceRecord struct {
	Status   chat.PresenceStatus `json:"status"`
	LastSeen time.Time           `json:"lastSeen"`
}

// PresenceMirror 把在线状态变化异步写入 Redis，供其他服务读取
// 写入失败只记录日志，协调器内存中的状态始终是权威来源
// 同一用户同一时刻只有一个任务在写，积压的变化只保留最新一条，Worker 之间不会把旧状态写在新状态之后
type PresenceMirror struct {
	cache AsyncCacheService

	mu       sync.Mutex
	pending  map[string]PresenceRecord
	inflight map[string]bool
}

// NewPresenceMirror 创建在线状态镜像
func NewPresenceMirror(cache AsyncCacheService) *PresenceMirror {
	return &PresenceMirror{
		cache:    cache,
		pending:  make(map[string]PresenceRecord),
		inflight: make(map[string]bool),
	}
}

// PresenceChanged 实现 chat.PresenceSink
func (m *PresenceMirror) PresenceChanged(principalID string, status chat.PresenceStatus, at time.Time) {
	m.mu.Lock()
	m.pending[principalID] = PresenceRecord{Status: status, LastSeen: at}
	if m.inflight[principalID] {
		m.mu.Unlock()
		return
	}
	m.inflight[principalID] = true
	m.mu.Unlock()

	m.cache.SubmitTask(func() { m.drain(principalID) })
}

// drain 依次写出该用户积压的最新状态，直到没有新的变化
func (m *PresenceMirror) drain(principalID string) {
	for {
		m.mu.Lock()
		record, ok := m.pending[principalID]
		if !ok {
			delete(m.inflight, principalID)
			m.mu.Unlock()
			return
		}
		delete(m.pending, principalID)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
		err := m.write(ctx, principalID, record)
		cancel()
		if err != nil {
			zap.L().Warn("镜像在线状态失败",
				zap.String("principal", principalID),
				zap.String("status", string(record.Status)),
				zap.Error(err))
		}
	}
}

func (m *PresenceMirror) write(ctx context.Context, principalID string, record PresenceRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if record.Status == chat.StatusOffline {
		if err := m.cache.RemoveFromSet(ctx, onlineSetKey, principalID); err != nil {
			return err
		}
		return m.cache.Set(ctx, statusKeyPrefix+principalID, string(raw), offlineStatusTTL)
	}
	if err := m.cache.AddToSet(ctx, onlineSetKey, principalID); err != nil {
		return err
	}
	return m.cache.Set(ctx, statusKeyPrefix+principalID, string(raw), 0)
}

// Online 当前镜像中的在线用户
func (m *PresenceMirror) Online(ctx context.Context) ([]string, error) {
	return m.cache.GetSetMembers(ctx, onlineSetKey)
}

// Status 读取单个用户的镜像状态，没有记录时返回 nil
func (m *PresenceMirror) Status(ctx context.Context, principalID string) (*PresenceRecord, error) {
	raw, err := m.cache.Get(ctx, statusKeyPrefix+principalID)
	if err != nil || raw == "" {
		return nil, err
	}
	var record PresenceRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Reset 清空在线集合
// 单进程部署，进程启动时上一轮残留的在线用户都已失效
func (m *PresenceMirror) Reset(ctx context.Context) error {
	return m.cache.Delete(ctx, onlineSetKey)
}

var _ chat.PresenceSink = (*PresenceMirror)(nil)
