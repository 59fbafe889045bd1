package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/config"
	"narcoguard-monitor/internal/models"
)

// Manager Redis 缓存管理器
// 缓存每个用户的最新体征样本和活跃紧急事件，供外部读取方（看板等）消费
type Manager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewManager 创建缓存管理器
func NewManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *Manager {
	return &Manager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// vitalsKey 实时体征缓存键，如 "narcoguard:user:<user_id>:vitals"
func (m *Manager) vitalsKey(userID string) string {
	return fmt.Sprintf("%s%s%s",
		m.config.Monitor.Cache.VitalsKeyPrefix,
		userID,
		m.config.Monitor.Cache.VitalsSuffix,
	)
}

// emergencyKey 活跃紧急事件缓存键，如 "narcoguard:emergency:<user_id>"
func (m *Manager) emergencyKey(userID string) string {
	return m.config.Monitor.Cache.EmergencyKeyPrefix + userID
}

// SetLatestVitals 写入用户最新体征样本（带 TTL）
func (m *Manager) SetLatestVitals(ctx context.Context, sample *models.VitalSample) error {
	jsonData, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal vitals: %w", err)
	}

	key := m.vitalsKey(sample.UserID)
	if err := m.redisClient.Set(ctx, key, jsonData, m.config.Monitor.Cache.VitalsTTL).Err(); err != nil {
		return fmt.Errorf("failed to set vitals cache: %w", err)
	}

	return nil
}

// GetLatestVitals 读取用户最新体征样本
func (m *Manager) GetLatestVitals(ctx context.Context, userID string) (*models.VitalSample, error) {
	val, err := m.redisClient.Get(ctx, m.vitalsKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("vitals not found for user: %s", userID)
		}
		return nil, fmt.Errorf("failed to get vitals cache: %w", err)
	}

	var sample models.VitalSample
	if err := json.Unmarshal([]byte(val), &sample); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vitals: %w", err)
	}

	return &sample, nil
}

// SetActiveEmergency 写入用户的活跃紧急事件（每次状态转移后刷新）
func (m *Manager) SetActiveEmergency(ctx context.Context, emergency *models.Emergency) error {
	jsonData, err := json.Marshal(emergency)
	if err != nil {
		return fmt.Errorf("failed to marshal emergency: %w", err)
	}

	key := m.emergencyKey(emergency.UserID)
	if err := m.redisClient.Set(ctx, key, jsonData, m.config.Monitor.Cache.EmergencyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set emergency cache: %w", err)
	}

	m.logger.Debug("Updated emergency cache",
		zap.String("user_id", emergency.UserID),
		zap.String("emergency_id", emergency.ID),
		zap.String("status", string(emergency.Status)),
	)

	return nil
}

// GetActiveEmergency 读取用户的活跃紧急事件
// 不存在时返回 nil, nil
func (m *Manager) GetActiveEmergency(ctx context.Context, userID string) (*models.Emergency, error) {
	val, err := m.redisClient.Get(ctx, m.emergencyKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get emergency cache: %w", err)
	}

	var emergency models.Emergency
	if err := json.Unmarshal([]byte(val), &emergency); err != nil {
		return nil, fmt.Errorf("failed to unmarshal emergency: %w", err)
	}

	return &emergency, nil
}

// ClearActiveEmergency 清除用户的活跃紧急事件（终结后调用）
func (m *Manager) ClearActiveEmergency(ctx context.Context, userID string) error {
	if err := m.redisClient.Del(ctx, m.emergencyKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear emergency cache: %w", err)
	}
	return nil
}
