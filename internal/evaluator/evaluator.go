package evaluator

import (
	"narcoguard-monitor/internal/models"
)

// Severity 分类严重程度
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Direction 越界方向
type Direction string

const (
	DirectionLow  Direction = "low"
	DirectionHigh Direction = "high"
)

// 指标名称（与阈值配置、缓存键保持一致）
const (
	MetricHeartRate        = "heart_rate"
	MetricRespiratoryRate  = "respiratory_rate"
	MetricOxygenSaturation = "oxygen_saturation"
	MetricSystolic         = "systolic"
	MetricDiastolic        = "diastolic"
	MetricTemperature      = "temperature"
)

// AbnormalMetric 越界指标（名称、实测值、越过的边界）
type AbnormalMetric struct {
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Bound     float64   `json:"bound"`
	Direction Direction `json:"direction"`
}

// Classification 样本分类结果
type Classification struct {
	AbnormalMetrics []AbnormalMetric `json:"abnormal_metrics"`
	Severity        Severity         `json:"severity"`

	// OverdosePattern 心率低 + 呼吸率低 + 血氧低 同时出现
	// 这是合取式覆盖规则，不是简单的 worst-of-N
	OverdosePattern bool `json:"overdose_pattern"`
}

// Abnormal 是否存在越界指标
func (c *Classification) Abnormal() bool {
	return len(c.AbnormalMetrics) > 0
}

// Classify 对单个样本进行阈值分类
// 纯函数：无副作用，给定输入结果确定；全部指标缺失时返回 normal
func Classify(sample *models.VitalSample, thresholds models.Thresholds) Classification {
	c := Classification{Severity: SeverityNormal}
	if sample == nil {
		return c
	}

	lowTriad := make(map[string]bool) // 合取规则涉及的三个指标的低方向越界

	check := func(metric string, value *float64, r models.MetricRange) {
		if value == nil {
			return
		}
		if r.Min != nil && *value < *r.Min {
			c.AbnormalMetrics = append(c.AbnormalMetrics, AbnormalMetric{
				Metric:    metric,
				Value:     *value,
				Bound:     *r.Min,
				Direction: DirectionLow,
			})
			lowTriad[metric] = true
			return
		}
		if r.Max != nil && *value > *r.Max {
			c.AbnormalMetrics = append(c.AbnormalMetrics, AbnormalMetric{
				Metric:    metric,
				Value:     *value,
				Bound:     *r.Max,
				Direction: DirectionHigh,
			})
		}
	}

	check(MetricHeartRate, intValue(sample.HeartRate), thresholds.HeartRate)
	check(MetricRespiratoryRate, intValue(sample.RespiratoryRate), thresholds.RespiratoryRate)
	check(MetricOxygenSaturation, sample.OxygenSaturation, thresholds.OxygenSaturation)
	if sample.BloodPressure != nil {
		check(MetricSystolic, intValue(sample.BloodPressure.Systolic), thresholds.Systolic)
		check(MetricDiastolic, intValue(sample.BloodPressure.Diastolic), thresholds.Diastolic)
	}
	check(MetricTemperature, sample.Temperature, thresholds.Temperature)

	if len(c.AbnormalMetrics) == 0 {
		return c
	}

	// 合取式覆盖规则：HR低 + RR低 + SpO2低 同时出现 → critical（overdose 模式）
	// 无论单项偏离程度如何
	if lowTriad[MetricHeartRate] && lowTriad[MetricRespiratoryRate] && lowTriad[MetricOxygenSaturation] {
		c.OverdosePattern = true
		c.Severity = SeverityCritical
		return c
	}

	// 血氧低于阈值单独即为 critical（最强的单项预测指标）
	if lowTriad[MetricOxygenSaturation] {
		c.Severity = SeverityCritical
		return c
	}

	// 多项越界 → critical，单项越界 → warning
	if len(c.AbnormalMetrics) >= 2 {
		c.Severity = SeverityCritical
	} else {
		c.Severity = SeverityWarning
	}

	return c
}

// EmergencyType 分类结果 → 紧急事件类型
// 血氧低于阈值始终判为 overdose（即使其他指标正常）；
// 合取三低规则同样判为 overdose，优先于单指标的 vital_signs
func EmergencyType(c Classification) models.EmergencyType {
	if c.OverdosePattern {
		return models.EmergencyOverdose
	}
	for _, m := range c.AbnormalMetrics {
		if m.Metric == MetricOxygenSaturation && m.Direction == DirectionLow {
			return models.EmergencyOverdose
		}
	}
	return models.EmergencyVitalSigns
}

func intValue(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
