package source

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
	"narcoguard-monitor/pkg/mqttx"
)

// 每个订阅的样本缓冲长度；消费方跟不上时丢弃最新样本并告警
const subscriptionBuffer = 16

// MQTTSampleSource 基于 MQTT 的样本源
// 设备端（或设备网关）把体征样本发布到 "<prefix><user_id>" 主题
type MQTTSampleSource struct {
	client      *mqttx.Client
	topicPrefix string
	qos         byte
	logger      *zap.Logger

	mu   sync.Mutex
	subs map[string]chan models.VitalSample
}

// NewMQTTSampleSource 创建 MQTT 样本源
func NewMQTTSampleSource(client *mqttx.Client, topicPrefix string, qos byte, logger *zap.Logger) *MQTTSampleSource {
	return &MQTTSampleSource{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         qos,
		logger:      logger,
		subs:        make(map[string]chan models.VitalSample),
	}
}

// Subscribe 订阅用户的体征主题
func (s *MQTTSampleSource) Subscribe(userID string) (<-chan models.VitalSample, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[userID]; ok {
		return nil, fmt.Errorf("already subscribed for user: %s", userID)
	}

	ch := make(chan models.VitalSample, subscriptionBuffer)
	topic := s.topicPrefix + userID

	if err := s.client.Subscribe(topic, s.qos, func(topic string, payload []byte) error {
		return s.handleMessage(userID, payload)
	}); err != nil {
		return nil, fmt.Errorf("failed to subscribe to vitals topic: %w", err)
	}

	s.subs[userID] = ch

	s.logger.Info("Subscribed to vitals topic",
		zap.String("user_id", userID),
		zap.String("topic", topic),
	)

	return ch, nil
}

// Unsubscribe 取消订阅并关闭样本流（幂等）
func (s *MQTTSampleSource) Unsubscribe(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.subs[userID]
	if !ok {
		return nil
	}
	delete(s.subs, userID)

	topic := s.topicPrefix + userID
	if err := s.client.Unsubscribe(topic); err != nil {
		s.logger.Error("Failed to unsubscribe from vitals topic",
			zap.String("user_id", userID),
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
	close(ch)

	s.logger.Info("Unsubscribed from vitals topic",
		zap.String("user_id", userID),
		zap.String("topic", topic),
	)

	return nil
}

// handleMessage 处理一条设备消息
func (s *MQTTSampleSource) handleMessage(userID string, payload []byte) error {
	var sample models.VitalSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return fmt.Errorf("failed to unmarshal vital sample: %w", err)
	}

	// 主题已经限定了用户；缺字段时补齐
	if sample.UserID == "" {
		sample.UserID = userID
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	// 发送保持在锁内，避免与 Unsubscribe 的 close 竞争
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.subs[userID]
	if !ok {
		// 取消订阅和在途消息之间的竞争，丢弃即可
		return nil
	}

	select {
	case ch <- sample:
	default:
		s.logger.Warn("Sample channel full, dropping sample",
			zap.String("user_id", userID),
		)
	}

	return nil
}
