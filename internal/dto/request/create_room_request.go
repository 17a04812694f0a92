package request

// CreateRoomRequest 创建房间请求
// 使用位置:
//   - internal/handler/room_handler.go: Create
//
// 创建者取自 JWT，自动成为成员
type CreateRoomRequest struct {
	Name         string   `json:"name" binding:"required,max=64"`
	Kind         string   `json:"kind" binding:"omitempty,oneof=channel direct group"`
	Participants []string `json:"participants" binding:"omitempty,dive,required"`
	IsPrivate    bool     `json:"isPrivate"`
	Description  string   `json:"description" binding:"max=255"`
}
