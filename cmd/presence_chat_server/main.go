package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"presence_chat_server/internal/config"
	dao "presence_chat_server/internal/dao/mysql"
	myredis "presence_chat_server/internal/dao/redis"
	"presence_chat_server/internal/gateway/websocket"
	"presence_chat_server/internal/handler"
	"presence_chat_server/internal/https_server"
	"presence_chat_server/internal/infrastructure/logger"
	"presence_chat_server/internal/infrastructure/middleware"
	"presence_chat_server/internal/infrastructure/mq"
	"presence_chat_server/internal/service/auth"
	"presence_chat_server/internal/service/chat"
	"presence_chat_server/pkg/util/jwt"
	"presence_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置（找不到配置文件时使用默认值继续运行）
	conf, cfgErr := config.Load()
	if conf == nil {
		log.Fatalf("load config failed: %v", cfgErr)
	}

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()
	if cfgErr != nil {
		zap.L().Warn("未找到配置文件，使用默认配置", zap.Error(cfgErr))
	}
	zap.L().Info("日志初始化成功")

	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("初始化校验翻译器失败", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化用户存储
	principals, closeStore, err := initPrincipalStore(ctx, conf)
	if err != nil {
		zap.L().Fatal("用户存储初始化失败", zap.Error(err))
	}
	defer closeStore()
	zap.L().Info("用户存储初始化成功", zap.String("driver", conf.Driver))

	// 4. 初始化 Redis（可选：在线状态镜像与 token 吊销）
	var (
		cache    myredis.CacheService
		presence chat.PresenceSink
	)
	if conf.RedisConfig.Enabled {
		rc, err := myredis.Init(ctx, &conf.RedisConfig)
		if err != nil {
			zap.L().Fatal("Redis 初始化失败", zap.Error(err))
		}
		defer func() { _ = rc.Close() }()
		mirror := myredis.NewPresenceMirror(rc)
		if err := mirror.Reset(ctx); err != nil {
			zap.L().Warn("清理在线状态镜像失败", zap.Error(err))
		}
		cache, presence = rc, mirror
		zap.L().Info("Redis 初始化成功")
	}

	// 5. 初始化 Kafka（可选：消息变更日志）
	var journal chat.Journal
	if conf.KafkaConfig.MessageMode == "kafka" {
		if err := mq.EnsureTopic(&conf.KafkaConfig); err != nil {
			zap.L().Warn("Kafka 主题检查失败", zap.Error(err))
		}
		kj := mq.NewKafkaJournal(&conf.KafkaConfig)
		defer func() { _ = kj.Close() }()
		journal = kj
		zap.L().Info("Kafka 初始化成功", zap.String("topic", conf.JournalTopic))
	}

	// 6. 初始化 JWT 与认证服务
	tokens := jwt.NewManager(conf.JWTConfig.Secret, conf.AccessTokenExpiry)
	authSvc := auth.NewAuthService(tokens, cache)

	// 7. 初始化聊天协调器
	ids, err := snowflake.NewGenerator(conf.MachineID)
	if err != nil {
		zap.L().Fatal("雪花算法初始化失败", zap.Error(err))
	}
	coord := chat.NewCoordinator(chat.Deps{
		Verifier:   authSvc,
		Principals: principals,
		IDs:        ids,
		Presence:   presence,
		Journal:    journal,
		Settings: chat.Settings{
			TypingTimeout:   conf.TypingTimeout.Duration,
			SweepInterval:   conf.SweepInterval.Duration,
			MaxBodyLength:   conf.MaxBodyLength,
			HistoryLimit:    conf.HistoryLimit,
			MaxHistoryLimit: conf.MaxHistoryLimit,
		},
	})
	if err := coord.SeedRooms(seedRooms(conf.SeedConfig.Rooms)); err != nil {
		zap.L().Fatal("预置房间失败", zap.Error(err))
	}
	go coord.Run(ctx)
	zap.L().Info("ChatServer 初始化成功")

	// 8. 初始化 HTTP 服务器
	gateway := websocket.NewGateway(coord, websocket.OptionsFrom(&conf.ChatConfig))
	handlers := handler.NewHandlers(coord, gateway, authSvc, gateway)
	engine := https_server.Init(&conf.MainConfig, handlers, middleware.JWTAuth(authSvc))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler: engine,
	}
	go func() {
		zap.L().Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	// 等待信号
	<-ctx.Done()
	zap.L().Info("关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP 服务关闭失败", zap.Error(err))
	}
	// 关闭所有 websocket 连接，触发每个会话的断开清理
	gateway.Shutdown()
	// 等待断开清理产生的离线状态写回用户存储
	coord.FlushPresence()

	zap.L().Info("服务器已关闭")
}

// initPrincipalStore 按 storeConfig.driver 创建用户存储并写入预置用户
func initPrincipalStore(ctx context.Context, conf *config.Config) (chat.PrincipalStore, func(), error) {
	seed := seedPrincipals(conf.SeedConfig.Principals)
	if conf.Driver == "memory" {
		return chat.NewMemoryPrincipalStore(seed...), func() {}, nil
	}

	repos, err := dao.Init(&conf.StoreConfig)
	if err != nil {
		return nil, nil, err
	}
	store := dao.NewPrincipalStore(repos.Principal)
	if err := store.Seed(ctx, seed...); err != nil {
		_ = repos.Close()
		return nil, nil, err
	}
	return store, func() { _ = repos.Close() }, nil
}

func seedPrincipals(in []config.SeedPrincipal) []chat.Principal {
	out := make([]chat.Principal, 0, len(in))
	for _, p := range in {
		out = append(out, chat.Principal{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Email:       p.Email,
			Avatar:      p.Avatar,
		})
	}
	return out
}

func seedRooms(in []config.SeedRoom) []chat.RoomSpec {
	out := make([]chat.RoomSpec, 0, len(in))
	for _, r := range in {
		out = append(out, chat.RoomSpec{
			ID:           r.ID,
			Name:         r.Name,
			Kind:         chat.RoomKind(r.Kind),
			CreatedBy:    r.CreatedBy,
			Participants: r.Participants,
			IsPrivate:    r.IsPrivate,
			Description:  r.Description,
		})
	}
	return out
}
