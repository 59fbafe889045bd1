package models

import (
	"fmt"
)

// MetricRange 单个指标的可接受范围
// Min/Max 任一可缺失（血氧只有 Min）
type MetricRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Thresholds 生命体征阈值配置（按部署可配置）
type Thresholds struct {
	HeartRate        MetricRange `json:"heart_rate"`
	RespiratoryRate  MetricRange `json:"respiratory_rate"`
	OxygenSaturation MetricRange `json:"oxygen_saturation"` // 只有 Min
	Systolic         MetricRange `json:"systolic"`
	Diastolic        MetricRange `json:"diastolic"`
	Temperature      MetricRange `json:"temperature"`
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		HeartRate:        MetricRange{Min: f64(40), Max: f64(120)},
		RespiratoryRate:  MetricRange{Min: f64(8), Max: f64(25)},
		OxygenSaturation: MetricRange{Min: f64(90)},
		Systolic:         MetricRange{Min: f64(80), Max: f64(180)},
		Diastolic:        MetricRange{Min: f64(50), Max: f64(110)},
		Temperature:      MetricRange{Min: f64(35.0), Max: f64(39.0)},
	}
}

// Validate 校验阈值配置（Min/Max 同时存在时必须 Min < Max）
func (t *Thresholds) Validate() error {
	ranges := map[string]MetricRange{
		"heart_rate":        t.HeartRate,
		"respiratory_rate":  t.RespiratoryRate,
		"oxygen_saturation": t.OxygenSaturation,
		"systolic":          t.Systolic,
		"diastolic":         t.Diastolic,
		"temperature":       t.Temperature,
	}

	for name, r := range ranges {
		if r.Min != nil && r.Max != nil && *r.Min >= *r.Max {
			return fmt.Errorf("invalid threshold for %s: min (%v) must be less than max (%v)", name, *r.Min, *r.Max)
		}
	}

	return nil
}

func f64(v float64) *float64 {
	return &v
}
