package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/dispatch"
)

// notifyRequest 通知网关请求体
type notifyRequest struct {
	RecipientID   string           `json:"recipient_id"`
	RecipientKind string           `json:"recipient_kind"`
	Phone         string           `json:"phone,omitempty"`
	Email         *string          `json:"email,omitempty"`
	Payload       dispatch.Payload `json:"payload"`
}

// notifyResponse 通知网关响应体
type notifyResponse struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// NotifyClient 通知网关 HTTP 客户端（短信/邮件/推送由网关侧决定）
// 瞬时错误由客户端带退避重试，重试耗尽后错误交给扇出层记录
type NotifyClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewNotifyClient 创建通知网关客户端
func NewNotifyClient(baseURL string, timeout time.Duration, retryCount int, logger *zap.Logger) *NotifyClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 瞬时错误：网络失败或网关侧 5xx
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &NotifyClient{
		httpClient: client,
		logger:     logger,
	}
}

// Send 向单个接收方发送紧急通知
func (c *NotifyClient) Send(ctx context.Context, recipient dispatch.Recipient, payload dispatch.Payload) error {
	request := notifyRequest{
		RecipientID:   recipient.ID,
		RecipientKind: string(recipient.Kind),
		Phone:         recipient.Phone,
		Email:         recipient.Email,
		Payload:       payload,
	}

	c.logger.Info("Sending emergency notification",
		zap.String("emergency_id", payload.EmergencyID),
		zap.String("recipient_id", recipient.ID),
		zap.String("recipient_kind", string(recipient.Kind)),
	)

	var response notifyResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/notify/emergency")

	if err != nil {
		return fmt.Errorf("failed to call notification gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification gateway returned HTTP %d", resp.StatusCode())
	}
	if response.Status != 0 {
		return fmt.Errorf("notification gateway error: %s (status: %d)", response.Msg, response.Status)
	}

	return nil
}
