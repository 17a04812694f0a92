// Package repository 定义数据访问层接口及其 GORM 实现
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
package repository

import (
	"context"
	"time"

	"presence_chat_server/internal/model"
)

// PrincipalRepository 用户数据访问接口
type PrincipalRepository interface {
	// FindByUuid 根据 UUID 查找用户，不存在时返回 CodeNotFound
	FindByUuid(ctx context.Context, uuid string) (*model.Principal, error)
	// FindByUuids 批量根据 UUID 查找用户
	FindByUuids(ctx context.Context, uuids []string) ([]model.Principal, error)
	// List 全部用户，按 UUID 排序
	List(ctx context.Context) ([]model.Principal, error)
	// Upsert 按 UUID 新增或更新资料（不修改在线状态）
	Upsert(ctx context.Context, principal *model.Principal) error
	// UpdatePresence 更新在线状态与最后在线时间
	UpdatePresence(ctx context.Context, uuid string, status string, lastSeen time.Time) error
}
