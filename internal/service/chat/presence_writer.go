package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const presenceWriteTimeout = 3 * time.Second

type presenceUpdate struct {
	status PresenceStatus
	at     time.Time
}

// presenceWriter 在状态锁之外把在线状态写回 PrincipalStore
// 同一用户同一时刻至多一个写入在执行，积压的更新只保留最新一条，因此写入顺序与提交顺序一致
type presenceWriter struct {
	store PrincipalStore

	mu       sync.Mutex
	pending  map[string]presenceUpdate
	inflight map[string]bool
	wg       sync.WaitGroup
}

func newPresenceWriter(store PrincipalStore) *presenceWriter {
	return &presenceWriter{
		store:    store,
		pending:  make(map[string]presenceUpdate),
		inflight: make(map[string]bool),
	}
}

// submit 只登记更新，不等待 I/O
func (w *presenceWriter) submit(principalID string, status PresenceStatus, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[principalID] = presenceUpdate{status: status, at: at}
	if w.inflight[principalID] {
		return
	}
	w.inflight[principalID] = true
	w.wg.Add(1)
	go w.drain(principalID)
}

func (w *presenceWriter) drain(principalID string) {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		u, ok := w.pending[principalID]
		if !ok {
			delete(w.inflight, principalID)
			w.mu.Unlock()
			return
		}
		delete(w.pending, principalID)
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), presenceWriteTimeout)
		err := w.store.UpdatePresence(ctx, principalID, u.status, u.at)
		cancel()
		if err != nil {
			zap.L().Warn("更新在线状态失败",
				zap.String("principal", principalID),
				zap.String("status", string(u.status)),
				zap.Error(err))
		}
	}
}

// wait 等待已提交的写入全部落库
func (w *presenceWriter) wait() {
	w.wg.Wait()
}
