package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/Kaiettt/iot-fall-detection/internal/common/config"

	"github.com/joho/godotenv"
)

// Config fallwatch 服务配置
type Config struct {
	HTTPAddr string

	// 存储后端：redis / postgres / memory
	StoreBackend string
	// redis / postgres 不可达时是否退回内存存储（仅开发环境）
	AllowMemoryFallback bool

	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 设备数据接入
	Ingest struct {
		MQTTEnabled   bool
		MQTTTopic     string // fallwatch/{user_id}/fall
		Stream        string
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int
	}

	// 看板聚合
	Dashboard struct {
		WindowSize int // 订阅窗口，默认 100
		SeriesSize int // 趋势图点数，默认 20
	}

	Timezone string
	Location *time.Location

	Log struct {
		Level      string
		Format     string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

// Load 加载配置（先读取 .env，已有环境变量优先）
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.StoreBackend = getEnv("STORE_BACKEND", "redis")
	cfg.AllowMemoryFallback = getEnv("ALLOW_MEMORY_FALLBACK", "false") == "true"

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "fallwatch"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "fallwatch"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Ingest.MQTTEnabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.Ingest.MQTTTopic = getEnv("MQTT_TOPIC", "fallwatch/+/fall")
	cfg.Ingest.Stream = getEnv("INGEST_STREAM", "fallwatch:ingest:stream")
	cfg.Ingest.ConsumerGroup = getEnv("INGEST_CONSUMER_GROUP", "fallwatch-ingest-group")
	cfg.Ingest.ConsumerName = getEnv("INGEST_CONSUMER_NAME", "fallwatch-ingest-1")
	cfg.Ingest.BatchSize = getEnvInt("INGEST_BATCH_SIZE", 10)

	cfg.Dashboard.WindowSize = getEnvInt("WINDOW_SIZE", 100)
	cfg.Dashboard.SeriesSize = getEnvInt("SERIES_SIZE", 20)

	cfg.Timezone = getEnv("TIMEZONE", "Local")
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	cfg.Log.File = getEnv("LOG_FILE", "")
	cfg.Log.MaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", 100)
	cfg.Log.MaxBackups = getEnvInt("LOG_MAX_BACKUPS", 5)
	cfg.Log.MaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", 30)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 非法或非正数时使用默认值
func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}
