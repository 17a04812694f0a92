package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"presence_chat_server/internal/config"
	"presence_chat_server/internal/service/chat"
	"presence_chat_server/pkg/constants"
	"presence_chat_server/pkg/errorx"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaJournal 把消息的新增、编辑、删除写入 Kafka 主题
// 以房间 ID 作为 key，同一房间的变更落在同一分区
// Record 只做序列化和入队，由单个后台 goroutine 按入队顺序批量写出，调用方在房间锁内入队即可保证分区内顺序
type KafkaJournal struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	entries chan kafka.Message
	done    chan struct{}
}

// NewKafkaJournal 按配置创建写端
func NewKafkaJournal(conf *config.KafkaConfig) *KafkaJournal {
	timeout := conf.Timeout * time.Second
	j := NewKafkaJournalWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(conf.HostPort),
		Topic:                  conf.JournalTopic,
		Balancer:               &kafka.Hash{},
		BatchSize:              constants.JOURNAL_BATCH_SIZE,
		BatchTimeout:           constants.JOURNAL_BATCH_WAIT,
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}, conf.JournalTopic)
	if timeout > 0 {
		j.timeout = timeout
	}
	return j
}

// NewKafkaJournalWithWriter 使用自定义写端并启动发送循环
func NewKafkaJournalWithWriter(w MessageWriter, topic string) *KafkaJournal {
	j := &KafkaJournal{
		writer:  w,
		topic:   topic,
		timeout: 5 * time.Second,
		entries: make(chan kafka.Message, constants.JOURNAL_BUFFER),
		done:    make(chan struct{}),
	}
	go j.loop()
	return j
}

// Record 实现 chat.Journal，不等待网络 I/O
// 队列已满或已关闭时返回错误，该条日志被丢弃
func (j *KafkaJournal) Record(_ context.Context, entry chat.JournalEntry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeMQError, "序列化消息日志")
	}
	msg := kafka.Message{
		Key:   []byte(entry.Message.RoomID),
		Value: value,
		Time:  entry.At,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(entry.Op)},
		},
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return errorx.Newf(errorx.CodeMQError, "%s 日志已关闭", j.topic)
	}
	select {
	case j.entries <- msg:
		return nil
	default:
		return errorx.Newf(errorx.CodeMQError, "%s 日志队列已满", j.topic)
	}
}

// loop 每次取出队列中已有的全部条目（至多一批）一起写出
func (j *KafkaJournal) loop() {
	defer close(j.done)
	batch := make([]kafka.Message, 0, constants.JOURNAL_BATCH_SIZE)
	for msg := range j.entries {
		batch = append(batch[:0], msg)
	fill:
		for len(batch) < constants.JOURNAL_BATCH_SIZE {
			select {
			case next, ok := <-j.entries:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		j.flush(batch)
	}
}

func (j *KafkaJournal) flush(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.writer.WriteMessages(ctx, batch...); err != nil {
		zap.L().Warn("写入消息日志失败",
			zap.String("topic", j.topic),
			zap.Int("count", len(batch)),
			zap.Error(err))
	}
}

// Close 停止接收新条目，等待队列中的日志写出后关闭写端
func (j *KafkaJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.entries)
	j.mu.Unlock()

	<-j.done
	return j.writer.Close()
}

// EnsureTopic 连接任意节点并创建日志主题，主题已存在时忽略
func EnsureTopic(conf *config.KafkaConfig) error {
	conn, err := kafka.Dial("tcp", conf.HostPort)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeMQError, "连接 kafka %s", conf.HostPort)
	}
	defer conn.Close()

	partitions := conf.Partition
	if partitions <= 0 {
		partitions = 1
	}
	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             conf.JournalTopic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
	if err != nil {
		zap.L().Warn("创建主题失败", zap.String("topic", conf.JournalTopic), zap.Error(err))
	}
	return nil
}

var _ chat.Journal = (*KafkaJournal)(nil)
