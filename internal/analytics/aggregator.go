package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"narcoguard-monitor/internal/evaluator"
	"narcoguard-monitor/internal/models"
)

// SessionReader 会话读取（repository.SessionsRepository 实现）
type SessionReader interface {
	ListSessionsByUser(ctx context.Context, userID string) ([]*models.MonitoringSession, error)
	ListSamplesByUser(ctx context.Context, userID string) ([]models.VitalSample, error)
}

// EmergencyCounter 紧急事件计数（repository.EmergenciesRepository 实现）
type EmergencyCounter interface {
	CountEmergenciesByUser(ctx context.Context, userID string) (int, error)
}

// MetricMeans 各指标算术平均值
// 某指标没有任何样本时为 nil，零样本不计为零值
type MetricMeans struct {
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	RespiratoryRate  *float64 `json:"respiratory_rate,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
	Systolic         *float64 `json:"systolic,omitempty"`
	Diastolic        *float64 `json:"diastolic,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
}

// Summary 用户监测汇总
type Summary struct {
	UserID         string        `json:"user_id"`
	TotalSessions  int           `json:"total_sessions"`
	TotalDuration  time.Duration `json:"total_duration"`
	EmergencyCount int           `json:"emergency_count"`
	SampleCount    int           `json:"sample_count"`
	Means          MetricMeans   `json:"means"`
	GeneratedAt    time.Time     `json:"generated_at"`
}

// Aggregator 分析聚合器，纯读侧计算
type Aggregator struct {
	sessions    SessionReader
	emergencies EmergencyCounter
	logger      *zap.Logger
}

// NewAggregator 创建分析聚合器
func NewAggregator(sessions SessionReader, emergencies EmergencyCounter, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		sessions:    sessions,
		emergencies: emergencies,
		logger:      logger,
	}
}

// Summarize 计算用户的监测汇总
// 时长累加已完成和进行中的会话；均值逐指标计算，缺失值跳过
func (a *Aggregator) Summarize(ctx context.Context, userID string) (*Summary, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	sessions, err := a.sessions.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	samples, err := a.sessions.ListSamplesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load samples: %w", err)
	}

	emergencyCount, err := a.emergencies.CountEmergenciesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count emergencies: %w", err)
	}

	now := time.Now()
	summary := &Summary{
		UserID:         userID,
		TotalSessions:  len(sessions),
		EmergencyCount: emergencyCount,
		SampleCount:    len(samples),
		Means:          computeMeans(samples),
		GeneratedAt:    now,
	}
	for _, session := range sessions {
		summary.TotalDuration += session.Duration(now)
	}

	a.logger.Debug("Computed monitoring summary",
		zap.String("user_id", userID),
		zap.Int("total_sessions", summary.TotalSessions),
		zap.Int("emergency_count", summary.EmergencyCount),
		zap.Int("sample_count", summary.SampleCount),
	)

	return summary, nil
}

// meanAccumulator 单指标累加器
type meanAccumulator struct {
	sum   float64
	count int
}

func (m *meanAccumulator) add(v float64) {
	m.sum += v
	m.count++
}

func (m *meanAccumulator) mean() *float64 {
	if m.count == 0 {
		return nil
	}
	v := m.sum / float64(m.count)
	return &v
}

// computeMeans 逐指标算术平均，缺失值不参与
func computeMeans(samples []models.VitalSample) MetricMeans {
	acc := map[string]*meanAccumulator{
		evaluator.MetricHeartRate:        {},
		evaluator.MetricRespiratoryRate:  {},
		evaluator.MetricOxygenSaturation: {},
		evaluator.MetricSystolic:         {},
		evaluator.MetricDiastolic:        {},
		evaluator.MetricTemperature:      {},
	}

	for _, s := range samples {
		if s.HeartRate != nil {
			acc[evaluator.MetricHeartRate].add(float64(*s.HeartRate))
		}
		if s.RespiratoryRate != nil {
			acc[evaluator.MetricRespiratoryRate].add(float64(*s.RespiratoryRate))
		}
		if s.OxygenSaturation != nil {
			acc[evaluator.MetricOxygenSaturation].add(*s.OxygenSaturation)
		}
		if s.BloodPressure != nil {
			if s.BloodPressure.Systolic != nil {
				acc[evaluator.MetricSystolic].add(float64(*s.BloodPressure.Systolic))
			}
			if s.BloodPressure.Diastolic != nil {
				acc[evaluator.MetricDiastolic].add(float64(*s.BloodPressure.Diastolic))
			}
		}
		if s.Temperature != nil {
			acc[evaluator.MetricTemperature].add(*s.Temperature)
		}
	}

	return MetricMeans{
		HeartRate:        acc[evaluator.MetricHeartRate].mean(),
		RespiratoryRate:  acc[evaluator.MetricRespiratoryRate].mean(),
		OxygenSaturation: acc[evaluator.MetricOxygenSaturation].mean(),
		Systolic:         acc[evaluator.MetricSystolic].mean(),
		Diastolic:        acc[evaluator.MetricDiastolic].mean(),
		Temperature:      acc[evaluator.MetricTemperature].mean(),
	}
}
