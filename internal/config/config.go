// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找；.env 与 CHAT_* 环境变量可覆盖部分字段
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"presence_chat_server/pkg/constants"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName  string `toml:"appName"`  // 应用名称
	Host     string `toml:"host"`     // 监听地址，如 "0.0.0.0"
	Port     int    `toml:"port"`     // 监听端口，如 8000
	Mode     string `toml:"mode"`     // 运行模式：dev 或 release
	ForceTLS bool   `toml:"forceTLS"` // 是否把 HTTP 请求重定向到 HTTPS
}

// StoreConfig 用户（Principal）存储配置
// driver 为 memory 时使用进程内存储，mysql/sqlite 时走 gorm
type StoreConfig struct {
	Driver       string `toml:"driver"`       // memory | mysql | sqlite
	Host         string `toml:"host"`         // MySQL 服务器地址
	Port         int    `toml:"port"`         // MySQL 端口，默认 3306
	User         string `toml:"user"`         // 数据库用户名
	Password     string `toml:"password"`     // 数据库密码
	DatabaseName string `toml:"databaseName"` // 数据库名称
	SqlitePath   string `toml:"sqlitePath"`   // sqlite 文件路径
}

// RedisConfig Redis 连接配置，仅用于在线状态镜像
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`  // 是否启用在线状态镜像
	Host     string `toml:"host"`     // Redis 服务器地址
	Port     int    `toml:"port"`     // Redis 端口，默认 6379
	Password string `toml:"password"` // Redis 密码，无密码留空
	Db       int    `toml:"db"`       // Redis 数据库编号
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // 日志级别：debug, info, warn, error
}

// KafkaConfig Kafka 配置
// messageMode 为 kafka 时，每条消息的变更都会写入 journalTopic 供下游消费
type KafkaConfig struct {
	MessageMode  string        `toml:"messageMode"`  // "channel" 或 "kafka"
	HostPort     string        `toml:"hostPort"`     // Kafka 地址，如 "localhost:9092"
	JournalTopic string        `toml:"journalTopic"` // 消息日志主题
	Partition    int           `toml:"partition"`    // 分区数（建主题时使用）
	Timeout      time.Duration `toml:"timeout"`      // 写超时（秒）
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret            string `toml:"secret"`            // 签名密钥
	AccessTokenExpiry int    `toml:"accessTokenExpiry"` // Access Token 有效期（分钟）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 节点 ID，范围 0-1023
}

// ChatConfig 聊天核心参数
// 时间类字段在 TOML 中写成 "3s" 这样的字符串
type ChatConfig struct {
	TypingTimeout   Duration `toml:"typingTimeout"`   // 正在输入的过期窗口
	SweepInterval   Duration `toml:"sweepInterval"`   // 过期输入状态清理周期
	HistoryLimit    int      `toml:"historyLimit"`    // 历史消息默认条数
	MaxHistoryLimit int      `toml:"maxHistoryLimit"` // 历史消息单次上限
	MaxBodyLength   int      `toml:"maxBodyLength"`   // 消息正文最大长度
	SendBufferSize  int      `toml:"sendBufferSize"`  // 会话发送缓冲大小
	MaxFrameBytes   int64    `toml:"maxFrameBytes"`   // websocket 帧上限
	PongWait        Duration `toml:"pongWait"`
	PingPeriod      Duration `toml:"pingPeriod"`
	WriteWait       Duration `toml:"writeWait"`
}

// SeedRoom 启动时写入的房间
type SeedRoom struct {
	ID           string   `toml:"id"`
	Name         string   `toml:"name"`
	Kind         string   `toml:"kind"`
	CreatedBy    string   `toml:"createdBy"`
	Participants []string `toml:"participants"`
	IsPrivate    bool     `toml:"isPrivate"`
	Description  string   `toml:"description"`
}

// SeedPrincipal 启动时写入的用户
type SeedPrincipal struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"displayName"`
	Email       string `toml:"email"`
	Avatar      string `toml:"avatar"`
}

// SeedConfig 演示数据
type SeedConfig struct {
	Rooms      []SeedRoom      `toml:"rooms"`
	Principals []SeedPrincipal `toml:"principals"`
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	StoreConfig     `toml:"storeConfig"`
	RedisConfig     `toml:"redisConfig"`
	LogConfig       `toml:"logConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	JWTConfig       `toml:"jwtConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
	ChatConfig      `toml:"chatConfig"`
	SeedConfig      `toml:"seed"`
}

// Duration 支持在 TOML 里直接写 "3s"、"500ms"
type Duration struct {
	time.Duration
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// 候选配置文件路径（优先加载本地配置）
var searchPaths = []string{
	"configs/config_local.toml",
	"configs/config.toml",
	"../../configs/config_local.toml",
	"../../configs/config.toml",
}

// Load 依次尝试候选路径，找到第一个可用的配置文件即停止
// 找不到任何文件时返回默认配置和错误，调用方可以选择继续运行
func Load() (*Config, error) {
	for _, path := range searchPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	cfg := new(Config)
	applyEnv(cfg)
	cfg.ApplyDefaults()
	return cfg, fmt.Errorf("could not find configuration file in any of the search paths")
}

// LoadFile 从指定文件加载配置
func LoadFile(path string) (*Config, error) {
	cfg := new(Config)
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyEnv(cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

// applyEnv 用 .env 和环境变量覆盖配置
func applyEnv(cfg *Config) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	if v := os.Getenv("CHAT_HOST"); v != "" {
		cfg.MainConfig.Host = v
	}
	if v := os.Getenv("CHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MainConfig.Port = port
		}
	}
	if v := os.Getenv("CHAT_MODE"); v != "" {
		cfg.MainConfig.Mode = v
	}
	if v := os.Getenv("CHAT_JWT_SECRET"); v != "" {
		cfg.JWTConfig.Secret = v
	}
	if v := os.Getenv("CHAT_STORE_DRIVER"); v != "" {
		cfg.StoreConfig.Driver = v
	}
	if v := os.Getenv("CHAT_MESSAGE_MODE"); v != "" {
		cfg.KafkaConfig.MessageMode = v
	}
}

// ApplyDefaults 为所有零值字段填入默认值
func (c *Config) ApplyDefaults() {
	if c.AppName == "" {
		c.AppName = "presence_chat_server"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8000
	}
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Driver == "" {
		c.Driver = "memory"
	}
	if c.SqlitePath == "" {
		c.SqlitePath = "presence_chat.db"
	}
	if c.LogPath == "" {
		c.LogPath = "logs"
	}
	if c.MessageMode == "" {
		c.MessageMode = "channel"
	}
	if c.JournalTopic == "" {
		c.JournalTopic = "chat_message_journal"
	}
	if c.KafkaConfig.Timeout == 0 {
		c.KafkaConfig.Timeout = 1
	}
	if c.Secret == "" {
		c.Secret = "your-super-secret-jwt-key"
	}
	if c.AccessTokenExpiry == 0 {
		c.AccessTokenExpiry = 7 * 24 * 60
	}
	if c.MachineID == 0 {
		c.MachineID = 1
	}
	c.ChatConfig.applyDefaults()
}

func (c *ChatConfig) applyDefaults() {
	if c.TypingTimeout.Duration <= 0 {
		c.TypingTimeout.Duration = constants.TYPING_TIMEOUT
	}
	if c.SweepInterval.Duration <= 0 {
		c.SweepInterval.Duration = constants.TYPING_SWEEP
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = constants.DEFAULT_HISTORY_SIZE
	}
	if c.MaxHistoryLimit <= 0 {
		c.MaxHistoryLimit = constants.MAX_HISTORY_SIZE
	}
	if c.MaxBodyLength <= 0 {
		c.MaxBodyLength = constants.MAX_BODY_LENGTH
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = constants.CHANNEL_SIZE
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = constants.MAX_FRAME_BYTES
	}
	if c.PongWait.Duration <= 0 {
		c.PongWait.Duration = constants.PONG_WAIT
	}
	if c.PingPeriod.Duration <= 0 || c.PingPeriod.Duration >= c.PongWait.Duration {
		c.PingPeriod.Duration = c.PongWait.Duration * 9 / 10
	}
	if c.WriteWait.Duration <= 0 {
		c.WriteWait.Duration = constants.WRITE_WAIT
	}
}

// Addr 返回监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.MainConfig.Host, c.MainConfig.Port)
}
