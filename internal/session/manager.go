package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/evaluator"
	"narcoguard-monitor/internal/models"
	"narcoguard-monitor/internal/source"
)

// Store 会话持久化（repository.SessionsRepository 实现）
type Store interface {
	CreateSession(ctx context.Context, session *models.MonitoringSession) error
	GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error)
	GetOpenSessionByUser(ctx context.Context, userID string) (*models.MonitoringSession, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, endTime *time.Time) error
	AppendSample(ctx context.Context, sessionID string, sample *models.VitalSample) error
}

// VitalsCache 最新体征缓存（cache.Manager 实现）
type VitalsCache interface {
	SetLatestVitals(ctx context.Context, sample *models.VitalSample) error
}

// EmergencyEvaluator 紧急事件入口（emergency.Manager 实现）
type EmergencyEvaluator interface {
	Trigger(ctx context.Context, userID string, emergencyType models.EmergencyType, sample *models.VitalSample, location *models.Location) (*models.Emergency, error)
	HasOpenEmergency(ctx context.Context, userID string) (bool, error)
}

// sessionState 内存中的会话运行态
// ingestCancel 非空表示采样协程在跑；pause 置空，resume 重建
type sessionState struct {
	session      *models.MonitoringSession
	ingestCancel context.CancelFunc
}

// Manager 监测会话管理器
// 会话状态机：active ⇄ paused → completed；active → emergency（紧急事件确认时）；
// emergency → completed 仅在对应紧急事件终结后允许
type Manager struct {
	store       Store
	cache       VitalsCache
	source      source.SampleSource
	emergencies EmergencyEvaluator
	thresholds  models.Thresholds
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionState
	byUser   map[string]string
}

// NewManager 创建会话管理器
// src 为 nil 时不启动采样协程，样本只能通过 AddSample 推入（测试和手动上报场景）
func NewManager(
	store Store,
	cache VitalsCache,
	src source.SampleSource,
	emergencies EmergencyEvaluator,
	thresholds models.Thresholds,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		store:       store,
		cache:       cache,
		source:      src,
		emergencies: emergencies,
		thresholds:  thresholds,
		logger:      logger,
		sessions:    make(map[string]*sessionState),
		byUser:      make(map[string]string),
	}
}

// StartSession 开始监测会话
// 每个用户同一时刻最多一个进行中的会话，违反时返回 models.ErrSessionActive
func (m *Manager) StartSession(ctx context.Context, userID string, deviceID *string) (*models.MonitoringSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byUser[userID]; ok {
		return nil, fmt.Errorf("%w: user %s", models.ErrSessionActive, userID)
	}
	// 进程重启后内存为空，存储兜底检查
	open, err := m.store.GetOpenSessionByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, fmt.Errorf("%w: user %s has open session %s", models.ErrSessionActive, userID, open.ID)
	}

	now := time.Now()
	session := &models.MonitoringSession{
		ID:        uuid.New().String(),
		UserID:    userID,
		DeviceID:  deviceID,
		Status:    models.SessionActive,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	state := &sessionState{session: session}
	m.sessions[session.ID] = state
	m.byUser[userID] = session.ID

	m.startIngestLocked(state)

	m.logger.Info("Monitoring session started",
		zap.String("session_id", session.ID),
		zap.String("user_id", userID),
	)

	return session, nil
}

// StopSession 结束监测会话
// 幂等：对已 completed 的会话调用原样返回，无副作用
// 用户存在未终结紧急事件时返回 models.ErrInvalidState
func (m *Manager) StopSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		// 不在内存中：可能早已结束，按幂等语义返回存储中的会话
		session, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status == models.SessionCompleted {
			return session, nil
		}
		state = &sessionState{session: session}
		m.sessions[sessionID] = state
		m.byUser[session.UserID] = sessionID
	}

	session := state.session
	if session.Status == models.SessionCompleted {
		return session, nil
	}

	// 无论会话处于何种状态，用户存在未终结紧急事件时都不允许结束
	if m.emergencies != nil {
		open, err := m.emergencies.HasOpenEmergency(ctx, session.UserID)
		if err != nil {
			return nil, err
		}
		if open {
			return nil, fmt.Errorf("%w: session %s has an unresolved emergency", models.ErrInvalidState, sessionID)
		}
	}

	m.stopIngestLocked(state)

	now := time.Now()
	session.Status = models.SessionCompleted
	session.EndTime = &now
	session.UpdatedAt = now

	if err := m.store.UpdateSessionStatus(ctx, sessionID, models.SessionCompleted, &now); err != nil {
		return nil, err
	}

	delete(m.sessions, sessionID)
	delete(m.byUser, session.UserID)

	m.logger.Info("Monitoring session completed",
		zap.String("session_id", sessionID),
		zap.String("user_id", session.UserID),
		zap.Duration("duration", session.Duration(now)),
	)

	return session, nil
}

// PauseSession 暂停采样但不结束会话
func (m *Manager) PauseSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	session := state.session

	if session.Status != models.SessionActive {
		return nil, fmt.Errorf("%w: cannot pause session in status %s", models.ErrInvalidState, session.Status)
	}

	m.stopIngestLocked(state)

	session.Status = models.SessionPaused
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSessionStatus(ctx, sessionID, models.SessionPaused, nil); err != nil {
		return nil, err
	}

	m.logger.Info("Monitoring session paused", zap.String("session_id", sessionID))
	return session, nil
}

// ResumeSession 恢复采样
// 只允许 paused → active，其余状态返回 models.ErrInvalidState
func (m *Manager) ResumeSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	session := state.session

	if session.Status != models.SessionPaused {
		return nil, fmt.Errorf("%w: cannot resume session in status %s", models.ErrInvalidState, session.Status)
	}

	session.Status = models.SessionActive
	session.UpdatedAt = time.Now()
	if err := m.store.UpdateSessionStatus(ctx, sessionID, models.SessionActive, nil); err != nil {
		return nil, err
	}

	m.startIngestLocked(state)

	m.logger.Info("Monitoring session resumed", zap.String("session_id", sessionID))
	return session, nil
}

// GetSession 获取会话（含内存中的样本历史，返回快照）
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	m.mu.RLock()
	if state, ok := m.sessions[sessionID]; ok {
		clone := *state.session
		clone.Samples = append([]models.VitalSample(nil), state.session.Samples...)
		m.mu.RUnlock()
		return &clone, nil
	}
	m.mu.RUnlock()
	return m.store.GetSession(ctx, sessionID)
}

// AddSample 向会话追加一条样本并运行分类
// 分类出任何越界指标即进入紧急事件状态机；紧急事件确认后会话转入 emergency 状态
// overdose 且位置不可用时透传 models.ErrLocationUnavailable
func (m *Manager) AddSample(ctx context.Context, sessionID string, sample *models.VitalSample) error {
	if sample == nil {
		return fmt.Errorf("sample is required")
	}

	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return models.ErrSessionNotFound
	}
	session := state.session

	if session.Status == models.SessionCompleted {
		m.mu.Unlock()
		return fmt.Errorf("%w: session %s is completed", models.ErrInvalidState, sessionID)
	}

	if sample.UserID == "" {
		sample.UserID = session.UserID
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	session.Samples = append(session.Samples, *sample)
	session.UpdatedAt = time.Now()
	m.mu.Unlock()

	// 持久化和缓存失败不中断评估链路，监测优先于记录
	if err := m.store.AppendSample(ctx, sessionID, sample); err != nil {
		m.logger.Error("Failed to persist sample",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if m.cache != nil {
		if err := m.cache.SetLatestVitals(ctx, sample); err != nil {
			m.logger.Error("Failed to cache latest vitals",
				zap.String("user_id", sample.UserID),
				zap.Error(err),
			)
		}
	}

	classification := evaluator.Classify(sample, m.thresholds)
	if !classification.Abnormal() {
		return nil
	}

	m.logger.Warn("Abnormal vital signs detected",
		zap.String("session_id", sessionID),
		zap.String("user_id", sample.UserID),
		zap.String("severity", string(classification.Severity)),
		zap.Int("abnormal_metrics", len(classification.AbnormalMetrics)),
		zap.Bool("overdose_pattern", classification.OverdosePattern),
	)

	if m.emergencies == nil {
		return nil
	}

	emergencyType := evaluator.EmergencyType(classification)
	emergency, triggerErr := m.emergencies.Trigger(ctx, sample.UserID, emergencyType, sample, nil)
	if triggerErr != nil && emergency == nil {
		return fmt.Errorf("failed to trigger emergency: %w", triggerErr)
	}

	// 紧急事件确认后会话单向进入 emergency 状态（paused 会话也会转入）
	m.mu.Lock()
	if session.Status == models.SessionActive || session.Status == models.SessionPaused {
		session.Status = models.SessionEmergency
		session.UpdatedAt = time.Now()
		if err := m.store.UpdateSessionStatus(ctx, sessionID, models.SessionEmergency, nil); err != nil {
			m.logger.Error("Failed to persist session emergency status",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
	m.mu.Unlock()

	// emergency 非空时 triggerErr 只会是 ErrLocationUnavailable，透传给调用方
	return triggerErr
}

// Shutdown 停止全部采样协程（不改变会话状态，进程退出用）
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, state := range m.sessions {
		m.stopIngestLocked(state)
	}
}

// startIngestLocked 启动会话的采样协程，调用方必须持有 m.mu
func (m *Manager) startIngestLocked(state *sessionState) {
	if m.source == nil || state.ingestCancel != nil {
		return
	}

	session := state.session
	samples, err := m.source.Subscribe(session.UserID)
	if err != nil {
		m.logger.Error("Failed to subscribe to sample source",
			zap.String("session_id", session.ID),
			zap.String("user_id", session.UserID),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	state.ingestCancel = cancel

	go m.ingestLoop(ctx, session.ID, session.UserID, samples)
}

// stopIngestLocked 取消会话的采样协程，幂等，调用方必须持有 m.mu
func (m *Manager) stopIngestLocked(state *sessionState) {
	if state.ingestCancel == nil {
		return
	}
	state.ingestCancel()
	state.ingestCancel = nil

	if m.source != nil {
		if err := m.source.Unsubscribe(state.session.UserID); err != nil {
			m.logger.Warn("Failed to unsubscribe from sample source",
				zap.String("user_id", state.session.UserID),
				zap.Error(err),
			)
		}
	}
}

// ingestLoop 消费采样订阅通道直到取消或通道关闭
func (m *Manager) ingestLoop(ctx context.Context, sessionID, userID string, samples <-chan models.VitalSample) {
	m.logger.Debug("Ingest loop started",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			if err := m.AddSample(ctx, sessionID, &sample); err != nil {
				m.logger.Error("Failed to process ingested sample",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
			}
		}
	}
}
