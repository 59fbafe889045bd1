package models

import (
	"time"
)

// EmergencyType 紧急事件类型
type EmergencyType string

const (
	EmergencyOverdose     EmergencyType = "overdose"
	EmergencyMedical      EmergencyType = "medical"
	EmergencyManual       EmergencyType = "manual"
	EmergencyVitalSigns   EmergencyType = "vital_signs"
	EmergencyFall         EmergencyType = "fall"
	EmergencyUnresponsive EmergencyType = "unresponsive"
)

// EmergencyStatus 紧急事件状态
type EmergencyStatus string

const (
	EmergencyDetected          EmergencyStatus = "detected"
	EmergencyConfirmed         EmergencyStatus = "confirmed"
	EmergencyAlertsSent        EmergencyStatus = "alerts_sent"
	EmergencyResponderAssigned EmergencyStatus = "responder_assigned"
	EmergencyResponderEnRoute  EmergencyStatus = "responder_en_route"
	EmergencyResponderArrived  EmergencyStatus = "responder_arrived"
	EmergencyResolved          EmergencyStatus = "resolved"
	EmergencyFalseAlarm        EmergencyStatus = "false_alarm"
	EmergencyCancelled         EmergencyStatus = "cancelled"
)

// Terminal 是否为终态（不再接受转移）
func (s EmergencyStatus) Terminal() bool {
	return s == EmergencyResolved || s == EmergencyFalseAlarm || s == EmergencyCancelled
}

// Location 地理位置
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"` // 精度（米）
}

// ResponderKind 响应者类型
type ResponderKind string

const (
	ResponderEmergencyContact  ResponderKind = "emergency_contact"
	ResponderHeroNetwork       ResponderKind = "hero_network"
	ResponderEmergencyServices ResponderKind = "emergency_services"
)

// ResponderStatus 响应者状态
type ResponderStatus string

const (
	ResponderNotified     ResponderStatus = "notified"
	ResponderAcknowledged ResponderStatus = "acknowledged"
	ResponderEnRoute      ResponderStatus = "en_route"
	ResponderArrived      ResponderStatus = "arrived"
	ResponderCompleted    ResponderStatus = "completed"
)

// Responder 紧急事件的响应者（通知扇出时创建）
type Responder struct {
	ID         string          `json:"id" db:"responder_id"`
	Kind       ResponderKind   `json:"kind" db:"kind"`
	Name       string          `json:"name" db:"name"`
	Status     ResponderStatus `json:"status" db:"status"`
	ETASeconds *int            `json:"eta_seconds,omitempty" db:"eta_seconds"`
}

// Emergency 紧急事件（对应 emergencies 表）
// 每个用户同一时刻最多一个未终结的紧急事件
type Emergency struct {
	ID               string          `json:"id" db:"emergency_id"`
	UserID           string          `json:"user_id" db:"user_id"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	Type             EmergencyType   `json:"type" db:"emergency_type"`
	Status           EmergencyStatus `json:"status" db:"status"`
	TriggeringSample VitalSample     `json:"triggering_sample"`
	Location         *Location       `json:"location,omitempty"`
	Responders       []Responder     `json:"responders"`
	Notes            *string         `json:"notes,omitempty" db:"notes"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Contact 紧急联系人（对应 emergency_contacts 表）
type Contact struct {
	ID           string  `json:"id" db:"contact_id"`
	UserID       string  `json:"user_id" db:"user_id"`
	Name         string  `json:"name" db:"name"`
	Phone        string  `json:"phone" db:"phone"`
	Email        *string `json:"email,omitempty" db:"email"`
	Relationship *string `json:"relationship,omitempty" db:"relationship"`
	Priority     int     `json:"priority" db:"priority"`
}
