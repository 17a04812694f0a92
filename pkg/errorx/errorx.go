// Package errorx 定义带业务错误码的错误类型
// 聊天核心的全部领域错误都以 CodeError 的形式出现，便于统一回传给会话或 HTTP 客户端
package errorx

import (
	"errors"
	"fmt"
)

// CodeError 带业务错误码的自定义错误
// 支持 %w 包装底层错误；errors.Is 按错误码比较，因此 Wrap 出来的新实例仍能匹配预定义错误
type CodeError struct {
	Code  int    // 业务错误码
	Msg   string // 错误消息
	cause error  // 被包装的底层错误
}

// Error 实现 error 接口
// 存在底层错误时返回 "消息: 底层错误"，否则仅返回消息
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 错误码相同即视为同一类错误
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

// Newf 创建一个带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeInvalidToken, "InvalidToken")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   msg,
		cause: err,
	}
}

// Wrapf 包装底层错误，支持格式化消息
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
}

// GetCode 从错误中提取业务错误码，如果不是 CodeError 则返回 CodeServerBusy
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy
}

// 通用状态码
const (
	CodeSuccess      = 1000 // 成功
	CodeInvalidParam = 1001 // 请求参数错误
	CodeServerBusy   = 1005 // 服务繁忙
	CodeUnauthorized = 1006 // 未授权/认证失败
	CodeNotFound     = 1008 // 资源不存在
	CodeDBError      = 1010 // 数据库错误
	CodeCacheError   = 1011 // 缓存错误
	CodeMQError      = 1012 // 消息队列错误
)

// 聊天核心状态码（会话级可恢复错误，均不会断开连接）
const (
	CodeInvalidToken         = 1101 // token 校验失败
	CodeAlreadyAuthenticated = 1102 // 连接已绑定身份，拒绝二次认证
	CodeNotAuthenticated     = 1103 // 连接尚未认证
	CodeRoomNotFound         = 1104 // 房间不存在
	CodeNotAMember           = 1105 // 不是房间成员
	CodeMessageNotFound      = 1106 // 消息不存在
	CodeNotMessageOwner      = 1107 // 只能修改自己发送的消息
	CodeInvalidPayload       = 1108 // 事件负载不合法
	CodeUnknownEvent         = 1109 // 未知事件
)

// 预定义错误实例，可直接返回，也可用于 errors.Is 比较
// 聊天错误的 Msg 即错误种类名，客户端据此区分
var (
	ErrInvalidParam = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy   = New(CodeServerBusy, "服务繁忙")
	ErrUnauthorized = New(CodeUnauthorized, "未授权")

	ErrInvalidToken         = New(CodeInvalidToken, "InvalidToken")
	ErrAlreadyAuthenticated = New(CodeAlreadyAuthenticated, "AlreadyAuthenticated")
	ErrNotAuthenticated     = New(CodeNotAuthenticated, "NotAuthenticated")
	ErrRoomNotFound         = New(CodeRoomNotFound, "RoomNotFound")
	ErrNotAMember           = New(CodeNotAMember, "NotAMember")
	ErrMessageNotFound      = New(CodeMessageNotFound, "MessageNotFound")
	ErrNotMessageOwner      = New(CodeNotMessageOwner, "NotMessageOwner")
	ErrInvalidPayload       = New(CodeInvalidPayload, "InvalidPayload")
	ErrUnknownEvent         = New(CodeUnknownEvent, "UnknownEvent")
)

// IsNotFound 检查错误是否为"未找到"类型（包括 gorm.ErrRecordNotFound）
func IsNotFound(err error) bool {
	var codeErr *CodeError
	if errors.As(err, &codeErr) && codeErr.Code == CodeNotFound {
		return true
	}
	return err != nil && err.Error() == "record not found"
}
