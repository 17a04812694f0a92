// Package model 定义数据库实体模型
// 本文件定义用户（Principal）模型：身份资料与在线状态
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Principal 用户信息模型
// 对应数据库 principal_info 表；账号注册与密码不在本服务，只保存聊天需要的资料
type Principal struct {
	gorm.Model // 内嵌 GORM 模型，包含 ID、CreatedAt、UpdatedAt、DeletedAt

	// Uuid 用户唯一标识，与 JWT 中的 userId 一致
	Uuid string `gorm:"column:uuid;uniqueIndex;type:varchar(64);not null;comment:用户唯一id"`

	// DisplayName 昵称
	DisplayName string `gorm:"column:display_name;type:varchar(64);not null;comment:昵称"`

	// Email 邮箱地址（可选）
	Email string `gorm:"column:email;type:varchar(128);comment:邮箱"`

	// Avatar 用户头像 URL
	Avatar string `gorm:"column:avatar;type:varchar(255);comment:头像"`

	// Status 在线状态：online / away / offline
	Status string `gorm:"column:status;type:varchar(10);index;not null;default:offline;comment:在线状态"`

	// LastSeenAt 最近一次状态变化时间
	LastSeenAt sql.NullTime `gorm:"column:last_seen_at;comment:最后在线时间"`
}

// TableName 指定表名
func (Principal) TableName() string {
	return "principal_info"
}
