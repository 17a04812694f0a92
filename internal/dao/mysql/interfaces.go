// Package mysql 数据访问层：连接初始化、Repository 聚合以及面向聊天核心的用户存储
package mysql

import "presence_chat_server/internal/dao/mysql/repository"

// PrincipalRepository 用户数据访问接口
type PrincipalRepository = repository.PrincipalRepository
