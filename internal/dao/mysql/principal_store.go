package mysql

import (
	"context"
	"time"

	"presence_chat_server/internal/model"
	"presence_chat_server/internal/service/chat"
	"presence_chat_server/pkg/errorx"
)

// PrincipalStore 基于 Repository 的 chat.PrincipalStore 实现
type PrincipalStore struct {
	repo PrincipalRepository
}

// NewPrincipalStore 创建用户存储
func NewPrincipalStore(repo PrincipalRepository) *PrincipalStore {
	return &PrincipalStore{repo: repo}
}

// GetByID 用户不存在时返回 (nil, nil)
func (s *PrincipalStore) GetByID(ctx context.Context, id string) (*chat.Principal, error) {
	p, err := s.repo.FindByUuid(ctx, id)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := toPrincipal(p)
	return &out, nil
}

// List 全部用户
func (s *PrincipalStore) List(ctx context.Context) ([]chat.Principal, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Principal, 0, len(rows))
	for i := range rows {
		out = append(out, toPrincipal(&rows[i]))
	}
	return out, nil
}

// UpdatePresence 更新在线状态
func (s *PrincipalStore) UpdatePresence(ctx context.Context, id string, status chat.PresenceStatus, lastSeen time.Time) error {
	return s.repo.UpdatePresence(ctx, id, string(status), lastSeen)
}

// Seed 写入预置用户，已存在的用户只更新资料
func (s *PrincipalStore) Seed(ctx context.Context, principals ...chat.Principal) error {
	for _, p := range principals {
		if err := s.repo.Upsert(ctx, &model.Principal{
			Uuid:        p.ID,
			DisplayName: p.DisplayName,
			Email:       p.Email,
			Avatar:      p.Avatar,
		}); err != nil {
			return err
		}
	}
	return nil
}

func toPrincipal(p *model.Principal) chat.Principal {
	out := chat.Principal{
		ID:          p.Uuid,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Avatar:      p.Avatar,
		Status:      chat.PresenceStatus(p.Status),
	}
	if p.LastSeenAt.Valid {
		out.LastSeen = p.LastSeenAt.Time
	}
	if out.Status == "" {
		out.Status = chat.StatusOffline
	}
	return out
}

var _ chat.PrincipalStore = (*PrincipalStore)(nil)
