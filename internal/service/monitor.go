package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/analytics"
	"narcoguard-monitor/internal/cache"
	"narcoguard-monitor/internal/config"
	"narcoguard-monitor/internal/dispatch"
	"narcoguard-monitor/internal/emergency"
	"narcoguard-monitor/internal/gateway"
	"narcoguard-monitor/internal/models"
	"narcoguard-monitor/internal/repository"
	"narcoguard-monitor/internal/session"
	"narcoguard-monitor/internal/source"
	"narcoguard-monitor/pkg/database"
	"narcoguard-monitor/pkg/mqttx"
	"narcoguard-monitor/pkg/redisx"
)

// MonitorService 监测服务（整合各层）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttx.Client
	logger      *zap.Logger

	// 各层组件
	cacheManager    *cache.Manager
	sessionsRepo    *repository.SessionsRepository
	emergenciesRepo *repository.EmergenciesRepository
	contactsRepo    *repository.ContactsRepository
	volunteersRepo  *repository.VolunteersRepository
	sampleSource    *source.MQTTSampleSource
	dispatcher      *dispatch.Dispatcher
	emergencies     *emergency.Manager
	sessions        *session.Manager
	aggregator      *analytics.Aggregator
}

// NewMonitorService 创建监测服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redisx.NewClient(&cfg.Redis)
	if err := redisx.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqttx.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
	}

	// 4. 创建 Repository 层
	sessionsRepo := repository.NewSessionsRepository(db, logger)
	emergenciesRepo := repository.NewEmergenciesRepository(db, logger)
	contactsRepo := repository.NewContactsRepository(db, logger)
	volunteersRepo := repository.NewVolunteersRepository(db, logger)

	// 5. 创建缓存和采样源
	cacheManager := cache.NewManager(cfg, redisClient, logger)
	sampleSource := source.NewMQTTSampleSource(mqttClient, cfg.Monitor.VitalsTopicPrefix, cfg.MQTT.QoS, logger)

	// 6. 创建外部协作方客户端
	notifyClient := gateway.NewNotifyClient(
		cfg.Gateway.NotifyURL,
		cfg.Gateway.RequestTimeout,
		cfg.Gateway.RetryCount,
		logger,
	)
	geoClient := gateway.NewGeoClient(
		cfg.Gateway.GeoURL,
		cfg.Gateway.RequestTimeout,
		cfg.Gateway.RetryCount,
		logger,
	)

	// 7. 创建核心管理器
	dispatcher := dispatch.NewDispatcher(
		contactsRepo,
		volunteersRepo,
		notifyClient,
		cfg.Monitor.Dispatch.RecipientTimeout,
		cfg.Monitor.Dispatch.NearbyRadiusKm,
		logger,
	)
	emergencies := emergency.NewManager(emergenciesRepo, cacheManager, dispatcher, geoClient, logger)
	sessions := session.NewManager(sessionsRepo, cacheManager, sampleSource, emergencies, cfg.Thresholds, logger)
	aggregator := analytics.NewAggregator(sessionsRepo, emergenciesRepo, logger)

	return &MonitorService{
		config:          cfg,
		db:              db,
		redisClient:     redisClient,
		mqttClient:      mqttClient,
		logger:          logger,
		cacheManager:    cacheManager,
		sessionsRepo:    sessionsRepo,
		emergenciesRepo: emergenciesRepo,
		contactsRepo:    contactsRepo,
		volunteersRepo:  volunteersRepo,
		sampleSource:    sampleSource,
		dispatcher:      dispatcher,
		emergencies:     emergencies,
		sessions:        sessions,
		aggregator:      aggregator,
	}, nil
}

// Start 启动服务
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting narcoguard monitor service")
	return nil
}

// Stop 停止服务
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping narcoguard monitor service")

	// 停止采样协程
	s.sessions.Shutdown()

	// 断开外部连接
	s.mqttClient.Disconnect()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// Sessions 监测会话管理器
func (s *MonitorService) Sessions() *session.Manager {
	return s.sessions
}

// Emergencies 紧急事件状态机
func (s *MonitorService) Emergencies() *emergency.Manager {
	return s.emergencies
}

// GetAnalytics 用户监测汇总
func (s *MonitorService) GetAnalytics(ctx context.Context, userID string) (*analytics.Summary, error) {
	return s.aggregator.Summarize(ctx, userID)
}

// ExportReport 导出用户监测报告（xlsx）
func (s *MonitorService) ExportReport(ctx context.Context, userID string) ([]byte, error) {
	return s.aggregator.ExportReport(ctx, userID)
}

// LatestVitals 用户最新体征（Redis 缓存）
func (s *MonitorService) LatestVitals(ctx context.Context, userID string) (*models.VitalSample, error) {
	return s.cacheManager.GetLatestVitals(ctx, userID)
}
