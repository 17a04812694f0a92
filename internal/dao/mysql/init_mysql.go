package mysql

import (
	"fmt"

	"presence_chat_server/internal/config"
	"presence_chat_server/internal/model"
	"presence_chat_server/pkg/errorx"

	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init 按 storeConfig.driver 建立数据库连接并返回 Repository 层实例
// 执行步骤：
//  1. 根据驱动构建 DSN（mysql）或文件路径（sqlite）
//  2. 使用 GORM 建立数据库连接
//  3. 执行 AutoMigrate 自动迁移表结构
//  4. 创建并返回 Repository 实例
func Init(conf *config.StoreConfig) (*Repositories, error) {
	var dialector gorm.Dialector
	switch conf.Driver {
	case "mysql":
		port := conf.Port
		if port == 0 {
			port = 3306
		}
		// 格式：user:password@tcp(host:port)/database?params
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			conf.User, conf.Password, conf.Host, port, conf.DatabaseName)
		dialector = mysqldriver.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(conf.SqlitePath)
	default:
		return nil, errorx.Newf(errorx.CodeInvalidParam, "unsupported store driver %q", conf.Driver)
	}
	return open(dialector)
}

func open(dialector gorm.Dialector) (*Repositories, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "打开数据库失败")
	}
	// 如果表不存在则创建，如果字段变更则更新结构；不会删除已有字段或数据
	if err := db.AutoMigrate(&model.Principal{}); err != nil {
		return nil, errorx.Wrap(err, errorx.CodeDBError, "迁移表结构失败")
	}
	return NewRepositories(db), nil
}
