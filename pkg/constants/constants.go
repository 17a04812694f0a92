package constants

import "time"

const (
	CHANNEL_SIZE         = 256                   // 每个会话的发送缓冲大小
	DEFAULT_HISTORY_SIZE = 50                    // 历史消息默认条数
	MAX_HISTORY_SIZE     = 200                   // 历史消息单次上限
	MAX_BODY_LENGTH      = 4000                  // 单条消息正文最大长度
	MAX_FRAME_BYTES      = 64 * 1024             // 单个 websocket 帧最大字节数
	TYPING_TIMEOUT       = 3 * time.Second       // 正在输入状态的默认过期窗口
	TYPING_SWEEP         = time.Second           // 输入状态清理周期
	PONG_WAIT            = 60 * time.Second      // 等待 pong 的超时
	WRITE_WAIT           = 10 * time.Second      // 单次写超时
	PRESENCE_WORKERS     = 4                     // redis 在线状态镜像 worker 数
	PRESENCE_BUFFER      = 1024                  // redis 在线状态镜像任务缓冲
	JOURNAL_BUFFER       = 4096                  // kafka 消息日志待发送队列
	JOURNAL_BATCH_SIZE   = 100                   // kafka 消息日志单批条数
	JOURNAL_BATCH_WAIT   = 10 * time.Millisecond // kafka 写端攒批等待
)
