package models

import (
	"errors"
)

// 领域错误（调用方用 errors.Is 判断）
var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("monitoring session not found")

	// ErrEmergencyNotFound 紧急事件不存在
	ErrEmergencyNotFound = errors.New("emergency not found")

	// ErrInvalidState 状态转移不合法（如 resume 非 paused 会话）
	ErrInvalidState = errors.New("invalid session state transition")

	// ErrSessionActive 用户已有进行中的会话
	ErrSessionActive = errors.New("user already has an open monitoring session")

	// ErrLocationUnavailable 无法获取用户位置
	// overdose 类型必须通知急救服务，位置缺失时调用方应回退到直接拨打急救电话
	ErrLocationUnavailable = errors.New("user location unavailable, fall back to direct emergency dialing")
)
