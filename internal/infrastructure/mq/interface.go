// Package mq 消息队列基础设施
// 目前只承担消息变更日志（journal）的写入，投递本身不经过 Kafka
package mq

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessageWriter Kafka 写端的最小抽象
// *kafka.Writer 满足该接口，测试中可以替换为内存实现
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
