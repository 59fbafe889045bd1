package source

import (
	"narcoguard-monitor/internal/models"
)

// SampleSource 体征样本源
// 为某个用户提供持续的样本流；监测核心不自己生成体征数据
type SampleSource interface {
	// Subscribe 订阅用户的样本流
	Subscribe(userID string) (<-chan models.VitalSample, error)

	// Unsubscribe 取消订阅并关闭样本流（幂等）
	Unsubscribe(userID string) error
}
