package models

import (
	"time"
)

// BloodPressure 血压读数（收缩压/舒张压，单位 mmHg）
type BloodPressure struct {
	Systolic  *int `json:"systolic,omitempty"`
	Diastolic *int `json:"diastolic,omitempty"`
}

// VitalSample 一次生命体征采样（对应 vital_samples 表）
// 任何指标字段都可能缺失（传感器不存在），一经记录不可变
type VitalSample struct {
	UserID           string         `json:"user_id" db:"user_id"`
	Timestamp        time.Time      `json:"timestamp" db:"recorded_at"`
	HeartRate        *int           `json:"heart_rate,omitempty" db:"heart_rate"`               // bpm
	RespiratoryRate  *int           `json:"respiratory_rate,omitempty" db:"respiratory_rate"`   // 次/分钟
	OxygenSaturation *float64       `json:"oxygen_saturation,omitempty" db:"oxygen_saturation"` // SpO2 %
	BloodPressure    *BloodPressure `json:"blood_pressure,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty" db:"temperature"` // 摄氏度
	DeviceID         *string        `json:"device_id,omitempty" db:"device_id"`
}

// HasMetrics 是否携带至少一个指标
func (s *VitalSample) HasMetrics() bool {
	if s.HeartRate != nil || s.RespiratoryRate != nil || s.OxygenSaturation != nil || s.Temperature != nil {
		return true
	}
	if s.BloodPressure != nil && (s.BloodPressure.Systolic != nil || s.BloodPressure.Diastolic != nil) {
		return true
	}
	return false
}
