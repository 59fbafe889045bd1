package emergency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/dispatch"
	"narcoguard-monitor/internal/models"
)

// Store 紧急事件持久化（repository.EmergenciesRepository 实现）
type Store interface {
	CreateEmergency(ctx context.Context, emergency *models.Emergency) error
	UpdateEmergency(ctx context.Context, emergency *models.Emergency) error
	GetOpenEmergencyByUser(ctx context.Context, userID string) (*models.Emergency, error)
}

// Cache 活跃紧急事件缓存（cache.Manager 实现）
type Cache interface {
	SetActiveEmergency(ctx context.Context, emergency *models.Emergency) error
	ClearActiveEmergency(ctx context.Context, userID string) error
}

// Notifier 通知扇出（dispatch.Dispatcher 实现）
type Notifier interface {
	ResolveAndNotify(ctx context.Context, emergency *models.Emergency) (*dispatch.Outcome, error)
}

// GeolocationProvider 定位服务（外部协作方）
// 位置不可用时返回 nil, nil——这是合法输入状态，不是错误
type GeolocationProvider interface {
	CurrentLocation(ctx context.Context, userID string) (*models.Location, error)
}

// Manager 紧急事件状态机
// 状态流：detected → confirmed → alerts_sent → [responder_assigned → responder_en_route
// → responder_arrived] → resolved；resolved 之前任意状态可转 false_alarm / cancelled
//
// 不变量：每个用户同一时刻最多一个未终结的紧急事件
// 通过按用户加锁保证并发触发时 check-then-create/merge 的原子性
type Manager struct {
	store      Store
	cache      Cache
	dispatcher Notifier
	geo        GeolocationProvider
	logger     *zap.Logger

	mu    sync.Mutex
	open  map[string]*models.Emergency
	locks map[string]*userLock
}

// userLock 用户级互斥锁，带引用计数，最后一个持有者释放后从 locks 中回收
type userLock struct {
	sync.Mutex
	refs int
}

// NewManager 创建紧急事件状态机
func NewManager(
	store Store,
	cache Cache,
	dispatcher Notifier,
	geo GeolocationProvider,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:      store,
		cache:      cache,
		dispatcher: dispatcher,
		geo:        geo,
		logger:     logger,
		open:       make(map[string]*models.Emergency),
		locks:      make(map[string]*userLock),
	}
}

// lockUser 获取并持有用户级互斥锁，必须配对调用 unlockUser
func (m *Manager) lockUser(userID string) *userLock {
	m.mu.Lock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &userLock{}
		m.locks[userID] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.Lock()
	return lock
}

// unlockUser 释放用户级互斥锁，引用计数归零时回收条目
func (m *Manager) unlockUser(userID string, lock *userLock) {
	lock.Unlock()

	m.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, userID)
	}
	m.mu.Unlock()
}

// Trigger 触发紧急事件
// 用户已有未终结事件时合并新证据（最新样本、位置、追加备注），不会产生重复事件；
// 否则创建新事件并在同一逻辑操作内推进 detected → confirmed → (扇出) → alerts_sent。
// 扇出的部分失败不会让状态回退到 detected。
//
// overdose 类型且位置无法确定时，事件仍然推进并持久化，同时返回
// models.ErrLocationUnavailable，调用方应回退到直接拨打急救电话。
func (m *Manager) Trigger(
	ctx context.Context,
	userID string,
	emergencyType models.EmergencyType,
	sample *models.VitalSample,
	location *models.Location,
) (*models.Emergency, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if sample == nil {
		return nil, fmt.Errorf("sample is required")
	}

	lock := m.lockUser(userID)
	defer m.unlockUser(userID, lock)

	// check-then-create/merge 在用户锁内完成
	existing, err := m.openEmergency(ctx, userID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		return m.merge(ctx, existing, emergencyType, sample, location), nil
	}

	return m.create(ctx, userID, emergencyType, sample, location)
}

// Resolve 终结用户当前的紧急事件
// outcome 必须是终态（resolved / false_alarm / cancelled）
// 用户没有未终结事件时返回 nil, nil，无副作用
func (m *Manager) Resolve(
	ctx context.Context,
	userID string,
	outcome models.EmergencyStatus,
	notes *string,
) (*models.Emergency, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	if !outcome.Terminal() {
		return nil, fmt.Errorf("%w: %s is not a terminal outcome", models.ErrInvalidState, outcome)
	}

	lock := m.lockUser(userID)
	defer m.unlockUser(userID, lock)

	existing, err := m.openEmergency(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	existing.Status = outcome
	existing.UpdatedAt = time.Now()
	if notes != nil {
		appendNote(existing, *notes)
	}

	if err := m.store.UpdateEmergency(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to persist emergency resolution: %w", err)
	}

	delete(m.open, userID)
	if err := m.cache.ClearActiveEmergency(ctx, userID); err != nil {
		m.logger.Error("Failed to clear emergency cache",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	m.logger.Info("Emergency resolved",
		zap.String("emergency_id", existing.ID),
		zap.String("user_id", userID),
		zap.String("outcome", string(outcome)),
	)

	return existing, nil
}

// HasOpenEmergency 用户当前是否有未终结的紧急事件
func (m *Manager) HasOpenEmergency(ctx context.Context, userID string) (bool, error) {
	lock := m.lockUser(userID)
	defer m.unlockUser(userID, lock)

	existing, err := m.openEmergency(ctx, userID)
	if err != nil {
		return false, err
	}
	return existing != nil, nil
}

// openEmergency 获取用户未终结事件（内存优先，回落到存储，用于进程重启后恢复）
// 调用方必须持有用户锁
func (m *Manager) openEmergency(ctx context.Context, userID string) (*models.Emergency, error) {
	m.mu.Lock()
	existing := m.open[userID]
	m.mu.Unlock()

	if existing != nil && !existing.Status.Terminal() {
		return existing, nil
	}

	stored, err := m.store.GetOpenEmergencyByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check open emergency: %w", err)
	}
	if stored != nil {
		m.mu.Lock()
		m.open[userID] = stored
		m.mu.Unlock()
	}
	return stored, nil
}

// merge 向已有事件合并新证据
func (m *Manager) merge(
	ctx context.Context,
	emergency *models.Emergency,
	emergencyType models.EmergencyType,
	sample *models.VitalSample,
	location *models.Location,
) *models.Emergency {
	emergency.TriggeringSample = *sample
	if location != nil {
		emergency.Location = location
	}
	// overdose 证据升级事件类型
	if emergencyType == models.EmergencyOverdose && emergency.Type != models.EmergencyOverdose {
		emergency.Type = models.EmergencyOverdose
		appendNote(emergency, "escalated to overdose based on new readings")
	}
	appendNote(emergency, fmt.Sprintf("additional abnormal readings at %s", sample.Timestamp.Format(time.RFC3339)))
	emergency.UpdatedAt = time.Now()

	if err := m.store.UpdateEmergency(ctx, emergency); err != nil {
		// 合并失败不回退内存状态，事件仍然是打开的
		m.logger.Error("Failed to persist merged emergency",
			zap.String("emergency_id", emergency.ID),
			zap.Error(err),
		)
	}
	if err := m.cache.SetActiveEmergency(ctx, emergency); err != nil {
		m.logger.Error("Failed to cache merged emergency",
			zap.String("emergency_id", emergency.ID),
			zap.Error(err),
		)
	}

	m.logger.Info("Merged evidence into open emergency",
		zap.String("emergency_id", emergency.ID),
		zap.String("user_id", emergency.UserID),
		zap.String("type", string(emergency.Type)),
	)

	return emergency
}

// create 创建新事件并推进到 alerts_sent
func (m *Manager) create(
	ctx context.Context,
	userID string,
	emergencyType models.EmergencyType,
	sample *models.VitalSample,
	location *models.Location,
) (*models.Emergency, error) {
	// 触发方没有位置时向定位服务查询；不可用是合法状态
	if location == nil && m.geo != nil {
		loc, err := m.geo.CurrentLocation(ctx, userID)
		if err != nil {
			m.logger.Warn("Geolocation lookup failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else {
			location = loc
		}
	}

	now := time.Now()
	emergency := &models.Emergency{
		ID:               uuid.New().String(),
		UserID:           userID,
		CreatedAt:        now,
		UpdatedAt:        now,
		Type:             emergencyType,
		Status:           models.EmergencyDetected,
		TriggeringSample: *sample,
		Location:         location,
	}

	// detected 状态先落库：trigger 要么返回已持久化的事件，要么报错
	if err := m.store.CreateEmergency(ctx, emergency); err != nil {
		return nil, fmt.Errorf("failed to persist emergency: %w", err)
	}

	m.mu.Lock()
	m.open[userID] = emergency
	m.mu.Unlock()

	m.logger.Warn("Emergency detected",
		zap.String("emergency_id", emergency.ID),
		zap.String("user_id", userID),
		zap.String("type", string(emergencyType)),
	)

	// detected → confirmed
	m.advance(ctx, emergency, models.EmergencyConfirmed)

	// confirmed → (扇出) → alerts_sent
	// 扇出整体完成即推进，单接收方失败只记录不回退
	outcome, err := m.dispatcher.ResolveAndNotify(ctx, emergency)
	if err != nil {
		m.logger.Error("Alert fan-out failed",
			zap.String("emergency_id", emergency.ID),
			zap.Error(err),
		)
		appendNote(emergency, fmt.Sprintf("alert fan-out failed: %v", err))
	} else {
		emergency.Responders = append(emergency.Responders, outcome.Responders...)
		for _, failure := range outcome.Failures {
			appendNote(emergency, fmt.Sprintf("failed to notify %s (%s): %s",
				failure.Recipient.Name, failure.Recipient.Kind, failure.Reason))
		}
	}

	m.advance(ctx, emergency, models.EmergencyAlertsSent)

	// overdose 必须通知急救服务；位置缺失时事件照常推进，
	// 但向调用方返回明确指示：回退到直接拨打急救电话
	if emergencyType == models.EmergencyOverdose && emergency.Location == nil {
		return emergency, models.ErrLocationUnavailable
	}

	return emergency, nil
}

// advance 推进状态并持久化（持久化失败只记录，不回退状态）
func (m *Manager) advance(ctx context.Context, emergency *models.Emergency, status models.EmergencyStatus) {
	emergency.Status = status
	emergency.UpdatedAt = time.Now()

	if err := m.store.UpdateEmergency(ctx, emergency); err != nil {
		m.logger.Error("Failed to persist emergency status",
			zap.String("emergency_id", emergency.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	if err := m.cache.SetActiveEmergency(ctx, emergency); err != nil {
		m.logger.Error("Failed to cache emergency",
			zap.String("emergency_id", emergency.ID),
			zap.Error(err),
		)
	}
}

// appendNote 追加备注（换行拼接）
func appendNote(emergency *models.Emergency, note string) {
	if emergency.Notes == nil {
		emergency.Notes = &note
		return
	}
	combined := *emergency.Notes + "\n" + note
	emergency.Notes = &combined
}
