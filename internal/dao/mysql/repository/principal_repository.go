package repository

import (
	"context"
	"database/sql"
	"time"

	"presence_chat_server/internal/dao/mysql/internal"
	"presence_chat_server/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type principalRepository struct {
	db *gorm.DB
}

// NewPrincipalRepository 创建用户 Repository
func NewPrincipalRepository(db *gorm.DB) PrincipalRepository {
	return &principalRepository{db: db}
}

// FindByUuid 按 UUID 查找用户
func (r *principalRepository) FindByUuid(ctx context.Context, uuid string) (*model.Principal, error) {
	var p model.Principal
	if err := r.db.WithContext(ctx).First(&p, "uuid = ?", uuid).Error; err != nil {
		return nil, internal.WrapDBErrorf(err, "查询用户 uuid=%s", uuid)
	}
	return &p, nil
}

// FindByUuids 按 UUID 列表查找用户
func (r *principalRepository) FindByUuids(ctx context.Context, uuids []string) ([]model.Principal, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	var out []model.Principal
	if err := r.db.WithContext(ctx).Where("uuid IN ?", uuids).Order("uuid").Find(&out).Error; err != nil {
		return nil, internal.WrapDBError(err, "批量查询用户")
	}
	return out, nil
}

// List 全部用户
func (r *principalRepository) List(ctx context.Context) ([]model.Principal, error) {
	var out []model.Principal
	if err := r.db.WithContext(ctx).Order("uuid").Find(&out).Error; err != nil {
		return nil, internal.WrapDBError(err, "查询用户列表")
	}
	return out, nil
}

// Upsert 按 UUID 新增或更新资料
func (r *principalRepository) Upsert(ctx context.Context, p *model.Principal) error {
	if p.Status == "" {
		p.Status = "offline"
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uuid"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "email", "avatar", "updated_at"}),
	}).Create(p).Error
	if err != nil {
		return internal.WrapDBErrorf(err, "保存用户 uuid=%s", p.Uuid)
	}
	return nil
}

// UpdatePresence 更新在线状态
func (r *principalRepository) UpdatePresence(ctx context.Context, uuid string, status string, lastSeen time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Principal{}).
		Where("uuid = ?", uuid).
		Updates(map[string]interface{}{
			"status":       status,
			"last_seen_at": sql.NullTime{Time: lastSeen, Valid: true},
		}).Error
	if err != nil {
		return internal.WrapDBErrorf(err, "更新用户状态 uuid=%s", uuid)
	}
	return nil
}
