package config

import (
	"os"
	"strconv"
	"time"

	"narcoguard-monitor/internal/models"
	"narcoguard-monitor/pkg/database"
	"narcoguard-monitor/pkg/mqttx"
	"narcoguard-monitor/pkg/redisx"
)

// Config 监测服务配置
type Config struct {
	Database database.Options
	Redis    redisx.Options
	MQTT     mqttx.Options

	// 外部协作方（通知网关、定位服务）
	Gateway struct {
		NotifyURL      string        // 通知网关地址
		GeoURL         string        // 定位服务地址
		RequestTimeout time.Duration // 单次请求超时
		RetryCount     int           // 重试次数（瞬时错误由客户端带退避重试）
	}

	// 监测核心配置
	Monitor struct {
		// Redis 缓存配置
		Cache struct {
			VitalsKeyPrefix    string // 实时体征缓存键前缀，如 "narcoguard:user:"
			VitalsSuffix       string // 实时体征缓存键后缀，如 ":vitals"
			EmergencyKeyPrefix string // 活跃紧急事件缓存键前缀
			VitalsTTL          time.Duration
			EmergencyTTL       time.Duration
		}

		// 通知扇出配置
		Dispatch struct {
			RecipientTimeout time.Duration // 单个接收方通知超时
			NearbyRadiusKm   float64       // 附近志愿响应者搜索半径（公里）
		}

		// 采样主题配置（MQTT）
		VitalsTopicPrefix string // 如 "narcoguard/vitals/"
	}

	// 阈值配置（可被环境变量逐项覆盖）
	Thresholds models.Thresholds

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "narcoguard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "narcoguard-monitor")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))

	cfg.Gateway.NotifyURL = getEnv("GATEWAY_NOTIFY_URL", "http://localhost:8090")
	cfg.Gateway.GeoURL = getEnv("GATEWAY_GEO_URL", "http://localhost:8091")
	cfg.Gateway.RequestTimeout = parseDuration(getEnv("GATEWAY_REQUEST_TIMEOUT", "10s"), 10*time.Second)
	cfg.Gateway.RetryCount = parseInt(getEnv("GATEWAY_RETRY_COUNT", "3"), 3)

	cfg.Monitor.Cache.VitalsKeyPrefix = getEnv("CACHE_VITALS_PREFIX", "narcoguard:user:")
	cfg.Monitor.Cache.VitalsSuffix = ":vitals"
	cfg.Monitor.Cache.EmergencyKeyPrefix = getEnv("CACHE_EMERGENCY_PREFIX", "narcoguard:emergency:")
	cfg.Monitor.Cache.VitalsTTL = parseDuration(getEnv("CACHE_VITALS_TTL", "60s"), 60*time.Second)
	cfg.Monitor.Cache.EmergencyTTL = parseDuration(getEnv("CACHE_EMERGENCY_TTL", "30s"), 30*time.Second)

	cfg.Monitor.Dispatch.RecipientTimeout = parseDuration(getEnv("DISPATCH_RECIPIENT_TIMEOUT", "5s"), 5*time.Second)
	cfg.Monitor.Dispatch.NearbyRadiusKm = parseFloat(getEnv("DISPATCH_NEARBY_RADIUS_KM", "5"), 5)

	cfg.Monitor.VitalsTopicPrefix = getEnv("VITALS_TOPIC_PREFIX", "narcoguard/vitals/")

	// 阈值：默认值 + 环境变量逐项覆盖
	cfg.Thresholds = models.DefaultThresholds()
	overrideRange(&cfg.Thresholds.HeartRate, "THRESHOLD_HR_MIN", "THRESHOLD_HR_MAX")
	overrideRange(&cfg.Thresholds.RespiratoryRate, "THRESHOLD_RR_MIN", "THRESHOLD_RR_MAX")
	overrideRange(&cfg.Thresholds.OxygenSaturation, "THRESHOLD_SPO2_MIN", "")
	overrideRange(&cfg.Thresholds.Systolic, "THRESHOLD_SYS_MIN", "THRESHOLD_SYS_MAX")
	overrideRange(&cfg.Thresholds.Diastolic, "THRESHOLD_DIA_MIN", "THRESHOLD_DIA_MAX")
	overrideRange(&cfg.Thresholds.Temperature, "THRESHOLD_TEMP_MIN", "THRESHOLD_TEMP_MAX")
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(value string, defaultValue int) int {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return defaultValue
}

func parseFloat(value string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

// overrideRange 用环境变量覆盖单个指标阈值（变量未设置时保持默认）
func overrideRange(r *models.MetricRange, minKey, maxKey string) {
	if minKey != "" {
		if v := os.Getenv(minKey); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				r.Min = &f
			}
		}
	}
	if maxKey != "" {
		if v := os.Getenv(maxKey); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				r.Max = &f
			}
		}
	}
}
