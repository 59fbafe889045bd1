package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

// ContactDirectory 紧急联系人目录（外部协作方）
type ContactDirectory interface {
	GetEmergencyContacts(ctx context.Context, userID string) ([]models.Contact, error)
}

// ResponderDirectory 志愿响应者空间检索（外部协作方）
type ResponderDirectory interface {
	FindNearby(ctx context.Context, location models.Location, radiusKm float64) ([]models.Volunteer, error)
}

// Recipient 通知接收方
type Recipient struct {
	ID    string               `json:"id"`
	Kind  models.ResponderKind `json:"kind"`
	Name  string               `json:"name"`
	Phone string               `json:"phone,omitempty"`
	Email *string              `json:"email,omitempty"`
}

// Payload 紧急事件通知内容（短信/邮件/推送由网关决定）
type Payload struct {
	EmergencyID string               `json:"emergency_id"`
	UserID      string               `json:"user_id"`
	Type        models.EmergencyType `json:"type"`
	Location    *models.Location     `json:"location,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	Message     string               `json:"message"`
}

// NotificationGateway 通知网关（外部协作方）
// 瞬时错误由网关客户端带退避重试，核心不重试
type NotificationGateway interface {
	Send(ctx context.Context, recipient Recipient, payload Payload) error
}

// Failure 单个接收方的通知失败记录
type Failure struct {
	Recipient Recipient `json:"recipient"`
	Reason    string    `json:"reason"`
}

// Outcome 扇出结果（全部尝试后的汇总）
type Outcome struct {
	ContactsNotified   int                `json:"contacts_notified"`
	RespondersNotified int                `json:"responders_notified"`
	ServicesNotified   bool               `json:"services_notified"`
	Responders         []models.Responder `json:"responders"`
	Failures           []Failure          `json:"failures"`
}

// Dispatcher 响应者解析与通知扇出
type Dispatcher struct {
	contacts         ContactDirectory
	volunteers       ResponderDirectory
	gateway          NotificationGateway
	recipientTimeout time.Duration
	nearbyRadiusKm   float64
	logger           *zap.Logger
}

// NewDispatcher 创建扇出器
func NewDispatcher(
	contacts ContactDirectory,
	volunteers ResponderDirectory,
	gateway NotificationGateway,
	recipientTimeout time.Duration,
	nearbyRadiusKm float64,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		contacts:         contacts,
		volunteers:       volunteers,
		gateway:          gateway,
		recipientTimeout: recipientTimeout,
		nearbyRadiusKm:   nearbyRadiusKm,
		logger:           logger,
	}
}

// ResolveAndNotify 解析接收方并发扇出通知
// 所有接收方独立尝试：单方失败不阻塞其他方（all-attempted，不是 all-or-nothing）
// overdose 类型额外通知急救服务，无论联系人/志愿者的结果如何
func (d *Dispatcher) ResolveAndNotify(ctx context.Context, emergency *models.Emergency) (*Outcome, error) {
	if emergency == nil {
		return nil, fmt.Errorf("emergency is required")
	}

	outcome := &Outcome{}
	payload := buildPayload(emergency)

	var recipients []Recipient

	// 1. 解析紧急联系人
	contacts, err := d.contacts.GetEmergencyContacts(ctx, emergency.UserID)
	if err != nil {
		// 目录不可用不中断扇出，剩余接收方照常尝试
		d.logger.Error("Failed to resolve emergency contacts",
			zap.String("emergency_id", emergency.ID),
			zap.String("user_id", emergency.UserID),
			zap.Error(err),
		)
		outcome.Failures = append(outcome.Failures, Failure{
			Recipient: Recipient{Kind: models.ResponderEmergencyContact, Name: "contact directory"},
			Reason:    err.Error(),
		})
	}
	for _, c := range contacts {
		recipients = append(recipients, Recipient{
			ID:    c.ID,
			Kind:  models.ResponderEmergencyContact,
			Name:  c.Name,
			Phone: c.Phone,
			Email: c.Email,
		})
	}

	// 2. 解析附近志愿响应者（位置缺失时为空集合，不是错误）
	etaByRecipient := make(map[string]int)
	if emergency.Location != nil {
		volunteers, err := d.volunteers.FindNearby(ctx, *emergency.Location, d.nearbyRadiusKm)
		if err != nil {
			d.logger.Error("Failed to resolve nearby volunteers",
				zap.String("emergency_id", emergency.ID),
				zap.Error(err),
			)
			outcome.Failures = append(outcome.Failures, Failure{
				Recipient: Recipient{Kind: models.ResponderHeroNetwork, Name: "responder directory"},
				Reason:    err.Error(),
			})
		}
		for _, v := range volunteers {
			recipients = append(recipients, Recipient{
				ID:    v.ID,
				Kind:  models.ResponderHeroNetwork,
				Name:  v.Name,
				Phone: v.Phone,
			})
			etaByRecipient[v.ID] = estimateETASeconds(v.DistanceKm)
		}
	}

	// 3. overdose 强制通知急救服务
	if emergency.Type == models.EmergencyOverdose {
		recipients = append(recipients, Recipient{
			ID:   "emergency-services",
			Kind: models.ResponderEmergencyServices,
			Name: "Emergency Services",
		})
	}

	// 4. 并发扇出（独立 I/O，join 后汇总；单接收方超时防止拖死整体）
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, recipient := range recipients {
		wg.Add(1)
		go func(recipient Recipient) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, d.recipientTimeout)
			defer cancel()

			err := d.gateway.Send(sendCtx, recipient, payload)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				d.logger.Error("Failed to notify recipient",
					zap.String("emergency_id", emergency.ID),
					zap.String("recipient_id", recipient.ID),
					zap.String("kind", string(recipient.Kind)),
					zap.Error(err),
				)
				outcome.Failures = append(outcome.Failures, Failure{
					Recipient: recipient,
					Reason:    err.Error(),
				})
				return
			}

			responder := models.Responder{
				ID:     uuid.New().String(),
				Kind:   recipient.Kind,
				Name:   recipient.Name,
				Status: models.ResponderNotified,
			}

			switch recipient.Kind {
			case models.ResponderEmergencyContact:
				outcome.ContactsNotified++
			case models.ResponderHeroNetwork:
				outcome.RespondersNotified++
				if eta, ok := etaByRecipient[recipient.ID]; ok {
					responder.ETASeconds = &eta
				}
			case models.ResponderEmergencyServices:
				outcome.ServicesNotified = true
			}
			outcome.Responders = append(outcome.Responders, responder)
		}(recipient)
	}
	wg.Wait()

	d.logger.Info("Alert fan-out completed",
		zap.String("emergency_id", emergency.ID),
		zap.Int("contacts_notified", outcome.ContactsNotified),
		zap.Int("responders_notified", outcome.RespondersNotified),
		zap.Bool("services_notified", outcome.ServicesNotified),
		zap.Int("failures", len(outcome.Failures)),
	)

	return outcome, nil
}

// buildPayload 构建通知内容
func buildPayload(emergency *models.Emergency) Payload {
	return Payload{
		EmergencyID: emergency.ID,
		UserID:      emergency.UserID,
		Type:        emergency.Type,
		Location:    emergency.Location,
		CreatedAt:   emergency.CreatedAt,
		Message:     fmt.Sprintf("Emergency (%s) detected for user %s", emergency.Type, emergency.UserID),
	}
}

// estimateETASeconds 按 30km/h 的城市移动速度估算到达时间
func estimateETASeconds(distanceKm float64) int {
	return int(distanceKm / 30.0 * 3600)
}
