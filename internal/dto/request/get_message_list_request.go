package request

// GetMessageListRequest 获取房间历史消息请求（查询参数）
// 使用位置:
//   - internal/handler/room_handler.go: Messages
//
// limit 为空时取默认条数，超过上限时截断
type GetMessageListRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=0"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}
