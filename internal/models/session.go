package models

import (
	"time"
)

// SessionStatus 监测会话状态
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionEmergency SessionStatus = "emergency"
)

// MonitoringSession 监测会话（对应 monitoring_sessions 表）
// 一个会话属于且仅属于一个用户；同一用户同一时刻最多有一个 active/paused 会话
// 进入 completed 后不可变
type MonitoringSession struct {
	ID        string        `json:"id" db:"session_id"`
	UserID    string        `json:"user_id" db:"user_id"`
	StartTime time.Time     `json:"start_time" db:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty" db:"end_time"`
	DeviceID  *string       `json:"device_id,omitempty" db:"device_id"`
	Status    SessionStatus `json:"status" db:"status"`
	Samples   []VitalSample `json:"samples"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}

// Open 会话是否仍在进行（active/paused/emergency）
func (s *MonitoringSession) Open() bool {
	return s.Status == SessionActive || s.Status == SessionPaused || s.Status == SessionEmergency
}

// Duration 会话时长（进行中的会话按 now 计算）
func (s *MonitoringSession) Duration(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}
