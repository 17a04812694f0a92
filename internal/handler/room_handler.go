// Package handler 提供 HTTP 请求处理器
// 本文件处理房间相关的 API 请求
package handler

import (
	"presence_chat_server/internal/dto/request"
	"presence_chat_server/internal/service/chat"

	"github.com/gin-gonic/gin"
)

// RoomHandler 房间请求处理器
type RoomHandler struct {
	svc ChatService
}

// NewRoomHandler 创建房间处理器实例
func NewRoomHandler(svc ChatService) *RoomHandler {
	return &RoomHandler{svc: svc}
}

// List 当前用户参与的房间
// GET /rooms
// 响应: []chat.Room
func (h *RoomHandler) List(c *gin.Context) {
	rooms := h.svc.RoomsOf(principalID(c))
	if rooms == nil {
		rooms = []chat.Room{}
	}
	HandleSuccess(c, rooms)
}

// Create 创建房间，调用方为创建者
// POST /rooms
// 请求体: request.CreateRoomRequest
// 响应: chat.Room
func (h *RoomHandler) Create(c *gin.Context) {
	var req request.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	kind := chat.RoomKind(req.Kind)
	if kind == "" {
		kind = chat.RoomChannel
	}
	room, err := h.svc.CreateRoom(c.Request.Context(), principalID(c), chat.RoomSpec{
		Name:         req.Name,
		Kind:         kind,
		Participants: req.Participants,
		IsPrivate:    req.IsPrivate,
		Description:  req.Description,
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, room)
}

// Messages 房间历史消息，最新在前
// GET /rooms/:roomId/messages?limit=&offset=
// 响应: []chat.Message
func (h *RoomHandler) Messages(c *gin.Context) {
	var req request.GetMessageListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	msgs, err := h.svc.History(c.Request.Context(), principalID(c), c.Param("roomId"), req.Limit, req.Offset)
	if err != nil {
		HandleError(c, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	HandleSuccess(c, msgs)
}

// Join 加入房间成员关系，实时订阅仍走 websocket 的 joinRoom
// POST /rooms/:roomId/join
// 响应: chat.Room
func (h *RoomHandler) Join(c *gin.Context) {
	room, err := h.svc.JoinMembership(c.Request.Context(), principalID(c), c.Param("roomId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, room)
}

// Leave 退出房间成员关系
// DELETE /rooms/:roomId/membership
func (h *RoomHandler) Leave(c *gin.Context) {
	if err := h.svc.ForgetRoom(c.Request.Context(), principalID(c), c.Param("roomId")); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
