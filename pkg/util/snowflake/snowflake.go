package snowflake

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Generator 雪花 ID 生成器
// 房间和消息的 ID 都由它生成，按时间单调递增
type Generator struct {
	node *snowflake.Node
}

// NewGenerator 创建生成器
// machineID 范围 0-1023，超出范围时退回默认节点 1
func NewGenerator(machineID int64) (*Generator, error) {
	if machineID < 0 || machineID > 1023 {
		zap.L().Warn("Invalid MachineID in config, using default value 1", zap.Int64("machineID", machineID))
		machineID = 1
	}
	node, err := snowflake.NewNode(machineID)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Snowflake node initialized", zap.Int64("machineID", machineID))
	return &Generator{node: node}, nil
}

// GenerateID 生成雪花 ID (int64)
func (g *Generator) GenerateID() int64 {
	return g.node.Generate().Int64()
}

// NextID 生成雪花 ID 字符串
// 用于 JSON 序列化，避免 JavaScript 精度丢失
func (g *Generator) NextID() string {
	return g.node.Generate().String()
}
