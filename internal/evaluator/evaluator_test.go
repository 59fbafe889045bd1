package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"narcoguard-monitor/internal/models"
)

func sample(hr, rr *int, spo2 *float64) *models.VitalSample {
	return &models.VitalSample{
		UserID:           "user-1",
		HeartRate:        hr,
		RespiratoryRate:  rr,
		OxygenSaturation: spo2,
	}
}

func intPtr(v int) *int {
	return &v
}

func f64Ptr(v float64) *float64 {
	return &v
}

func TestClassify_AllNormal(t *testing.T) {
	thresholds := models.DefaultThresholds()

	c := Classify(sample(intPtr(72), intPtr(16), f64Ptr(97)), thresholds)

	assert.Equal(t, SeverityNormal, c.Severity)
	assert.Empty(t, c.AbnormalMetrics)
	assert.False(t, c.Abnormal())
	assert.False(t, c.OverdosePattern)
}

func TestClassify_AllAbsent(t *testing.T) {
	thresholds := models.DefaultThresholds()

	c := Classify(&models.VitalSample{UserID: "user-1"}, thresholds)

	assert.Equal(t, SeverityNormal, c.Severity)
	assert.Empty(t, c.AbnormalMetrics)
}

func TestClassify_NilSample(t *testing.T) {
	c := Classify(nil, models.DefaultThresholds())

	assert.Equal(t, SeverityNormal, c.Severity)
	assert.Empty(t, c.AbnormalMetrics)
}

func TestClassify_SingleMetricWarning(t *testing.T) {
	thresholds := models.DefaultThresholds()

	// 心率偏高，其余正常 → warning
	c := Classify(sample(intPtr(130), intPtr(16), f64Ptr(97)), thresholds)

	assert.Equal(t, SeverityWarning, c.Severity)
	require.Len(t, c.AbnormalMetrics, 1)
	assert.Equal(t, MetricHeartRate, c.AbnormalMetrics[0].Metric)
	assert.Equal(t, 130.0, c.AbnormalMetrics[0].Value)
	assert.Equal(t, 120.0, c.AbnormalMetrics[0].Bound)
	assert.Equal(t, DirectionHigh, c.AbnormalMetrics[0].Direction)
}

func TestClassify_OxygenAloneCritical(t *testing.T) {
	thresholds := models.DefaultThresholds()

	// 血氧单独低于阈值 → critical，且对应 overdose 类型
	c := Classify(sample(intPtr(72), intPtr(16), f64Ptr(85)), thresholds)

	assert.Equal(t, SeverityCritical, c.Severity)
	require.Len(t, c.AbnormalMetrics, 1)
	assert.Equal(t, MetricOxygenSaturation, c.AbnormalMetrics[0].Metric)
	assert.False(t, c.OverdosePattern)
	assert.Equal(t, models.EmergencyOverdose, EmergencyType(c))
}

func TestClassify_OverdoseTriad(t *testing.T) {
	thresholds := models.DefaultThresholds()

	// HR低 + RR低 + SpO2低 同时出现 → critical/overdose
	c := Classify(sample(intPtr(37), intPtr(6), f64Ptr(84)), thresholds)

	assert.Equal(t, SeverityCritical, c.Severity)
	assert.True(t, c.OverdosePattern)
	assert.Len(t, c.AbnormalMetrics, 3)
	assert.Equal(t, models.EmergencyOverdose, EmergencyType(c))
}

func TestClassify_TriadRegardlessOfBound(t *testing.T) {
	// 越过的是哪条边界不影响合取规则，只要三项都是低方向
	thresholds := models.DefaultThresholds()

	cases := []struct {
		hr, rr int
		spo2   float64
	}{
		{39, 7, 89.9},
		{20, 3, 70},
		{37, 6, 84},
	}

	for _, tc := range cases {
		c := Classify(sample(intPtr(tc.hr), intPtr(tc.rr), f64Ptr(tc.spo2)), thresholds)
		assert.True(t, c.OverdosePattern, "hr=%d rr=%d spo2=%v", tc.hr, tc.rr, tc.spo2)
		assert.Equal(t, SeverityCritical, c.Severity)
		assert.Equal(t, models.EmergencyOverdose, EmergencyType(c))
	}
}

func TestClassify_TwoHighMetricsNotOverdose(t *testing.T) {
	thresholds := models.DefaultThresholds()

	// 两项高方向越界 → critical 但不是 overdose 模式
	c := Classify(sample(intPtr(140), intPtr(30), f64Ptr(97)), thresholds)

	assert.Equal(t, SeverityCritical, c.Severity)
	assert.False(t, c.OverdosePattern)
	assert.Len(t, c.AbnormalMetrics, 2)
	assert.Equal(t, models.EmergencyVitalSigns, EmergencyType(c))
}

func TestClassify_BloodPressureAndTemperature(t *testing.T) {
	thresholds := models.DefaultThresholds()

	s := &models.VitalSample{
		UserID: "user-1",
		BloodPressure: &models.BloodPressure{
			Systolic:  intPtr(190),
			Diastolic: intPtr(70),
		},
		Temperature: f64Ptr(40.2),
	}

	c := Classify(s, thresholds)

	assert.Equal(t, SeverityCritical, c.Severity)
	require.Len(t, c.AbnormalMetrics, 2)
	metrics := []string{c.AbnormalMetrics[0].Metric, c.AbnormalMetrics[1].Metric}
	assert.Contains(t, metrics, MetricSystolic)
	assert.Contains(t, metrics, MetricTemperature)
}

func TestClassify_Deterministic(t *testing.T) {
	thresholds := models.DefaultThresholds()
	s := sample(intPtr(37), intPtr(6), f64Ptr(84))

	first := Classify(s, thresholds)
	second := Classify(s, thresholds)

	assert.Equal(t, first, second)
}

func TestEmergencyType_VitalSigns(t *testing.T) {
	c := Classification{
		AbnormalMetrics: []AbnormalMetric{
			{Metric: MetricHeartRate, Value: 130, Bound: 120, Direction: DirectionHigh},
		},
		Severity: SeverityWarning,
	}

	assert.Equal(t, models.EmergencyVitalSigns, EmergencyType(c))
}
