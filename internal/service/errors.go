package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	Forbidden           = 403
	NotFound            = 404
	InternalServerError = 500
	ServiceUnavailable  = 503
)

var (
	// 校验错误
	ErrParamInvalid     = errors.New("参数错误")
	ErrGroupTooSmall    = errors.New("群聊需要名称且至少两名成员")
	ErrMediaInvalid     = errors.New("媒体消息缺少地址")
	ErrReplyInvalid     = errors.New("回复的消息不在当前会话")
	ErrFileNotSupported = errors.New("不支持的文件类型")
	ErrFileTooLarge     = errors.New("文件过大")

	// 资源不存在
	ErrConversationNotFound = errors.New("会话不存在")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrCallNotFound         = errors.New("通话不存在")

	// 权限
	UnauthorizedError = errors.New("权限不足")
	ErrNotParticipant = errors.New("不是会话成员")

	// 屏蔽
	ErrBlockedByPeer = errors.New("对方已将你屏蔽")
	ErrBlockedPeer   = errors.New("你已屏蔽对方")

	// 存储
	ErrStorageTimeout = errors.New("存储超时，请使用相同的消息 ID 重试")
	UnExpectedError   = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrGroupTooSmall:        BadRequest,
	ErrMediaInvalid:         BadRequest,
	ErrReplyInvalid:         BadRequest,
	ErrFileNotSupported:     BadRequest,
	ErrFileTooLarge:         BadRequest,
	ErrConversationNotFound: NotFound,
	ErrMessageNotFound:      NotFound,
	ErrUserNotFound:         NotFound,
	ErrCallNotFound:         NotFound,
	UnauthorizedError:       Unauthorized,
	ErrNotParticipant:       Forbidden,
	ErrBlockedByPeer:        Forbidden,
	ErrBlockedPeer:          Forbidden,
	ErrStorageTimeout:       ServiceUnavailable,
	UnExpectedError:         InternalServerError,
}

// ErrorCode 解析被包装过的错误，返回对应的业务码
func ErrorCode(err error) (int, bool) {
	if code, ok := ErrorMap[err]; ok {
		return code, true
	}
	for target, code := range ErrorMap {
		if errors.Is(err, target) {
			return code, true
		}
	}
	return InternalServerError, false
}

// ErrorMessage 返回面向用户的错误信息，未知错误不暴露细节
func ErrorMessage(err error) string {
	for target := range ErrorMap {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return UnExpectedError.Error()
}
