package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

// geoResponse 定位服务响应体
type geoResponse struct {
	Status   int              `json:"status"`
	Msg      string           `json:"msg"`
	Location *models.Location `json:"location"`
}

// GeoClient 定位服务 HTTP 客户端
// 定位不可用时返回 nil, nil：这是合法状态，由紧急事件状态机决定后续处理
type GeoClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewGeoClient 创建定位服务客户端
func NewGeoClient(baseURL string, timeout time.Duration, retryCount int, logger *zap.Logger) *GeoClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Accept", "application/json")

	return &GeoClient{
		httpClient: client,
		logger:     logger,
	}
}

// CurrentLocation 查询用户当前位置
func (c *GeoClient) CurrentLocation(ctx context.Context, userID string) (*models.Location, error) {
	var response geoResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		SetPathParam("userId", userID).
		Get("/geo/users/{userId}/location")

	if err != nil {
		return nil, fmt.Errorf("failed to call geolocation service: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		// 用户未上报过位置
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("geolocation service returned HTTP %d", resp.StatusCode())
	}
	if response.Status != 0 {
		return nil, fmt.Errorf("geolocation service error: %s (status: %d)", response.Msg, response.Status)
	}

	if response.Location == nil {
		c.logger.Debug("Location unavailable for user", zap.String("user_id", userID))
		return nil, nil
	}

	return response.Location, nil
}
