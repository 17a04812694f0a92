package redis

import (
	"context"
	"strconv"
	"time"

	"presence_chat_server/internal/config"
	"presence_chat_server/pkg/constants"
	"presence_chat_server/pkg/errorx"

	"github.com/redis/go-redis/v9"
)

// Init 按配置创建 Redis 客户端，连通后返回带 Worker Pool 的缓存服务
func Init(ctx context.Context, conf *config.RedisConfig) (*RedisCache, error) {
	port := conf.Port
	if port == 0 {
		port = 6379
	}
	addr := conf.Host + ":" + strconv.Itoa(port)

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: conf.Password,
		DB:       conf.Db,
		// 连接池配置
		PoolSize:     50,
		MinIdleConns: constants.PRESENCE_WORKERS,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis ping %s", addr)
	}
	return NewRedisCache(client, constants.PRESENCE_WORKERS, constants.PRESENCE_BUFFER), nil
}
