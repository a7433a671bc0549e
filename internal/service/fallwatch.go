package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/account"
	"github.com/Kaiettt/iot-fall-detection/internal/aggregator"
	"github.com/Kaiettt/iot-fall-detection/internal/assistant"
	"github.com/Kaiettt/iot-fall-detection/internal/common/database"
	mqttcommon "github.com/Kaiettt/iot-fall-detection/internal/common/mqtt"
	rediscommon "github.com/Kaiettt/iot-fall-detection/internal/common/redis"
	"github.com/Kaiettt/iot-fall-detection/internal/config"
	"github.com/Kaiettt/iot-fall-detection/internal/consumer"
	httpapi "github.com/Kaiettt/iot-fall-detection/internal/http"
	"github.com/Kaiettt/iot-fall-detection/internal/identity"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// 存储后端
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

const connectTimeout = 5 * time.Second

// FallwatchService 跌倒监测服务：存储、设备接入、HTTP/WebSocket
type FallwatchService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	redisErr    error
	mqttClient  *mqttcommon.Client
	store       store.Store
	backend     string

	router         *httpapi.Router
	server         *Server
	streamConsumer *consumer.StreamConsumer
	mqttConsumer   *consumer.MQTTConsumer

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

// NewFallwatchService 创建服务
// redis / postgres 不可达时返回 store.ErrUnavailable，除非开启 AllowMemoryFallback
func NewFallwatchService(cfg *config.Config, logger *zap.Logger) (*FallwatchService, error) {
	s := &FallwatchService{config: cfg, logger: logger}

	s.connectRedis()
	if err := s.openStore(); err != nil {
		s.closeConnections()
		return nil, err
	}

	if s.redisClient != nil {
		s.streamConsumer = consumer.NewStreamConsumer(
			s.redisClient,
			s.store,
			logger,
			cfg.Ingest.Stream,
			cfg.Ingest.ConsumerGroup,
			cfg.Ingest.ConsumerName,
			int64(cfg.Ingest.BatchSize),
		)
		if cfg.Ingest.MQTTEnabled {
			s.connectMQTT()
		}
	} else if cfg.Ingest.MQTTEnabled {
		logger.Warn("MQTT ingestion requires Redis Streams, skipping")
	}

	s.router = s.buildRouter()
	s.server = NewServer(cfg.HTTPAddr, s.router, logger)
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	return s, nil
}

func (s *FallwatchService) connectRedis() {
	if s.config.Redis.Addr == "" {
		s.redisErr = errors.New("redis address not configured")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	client, err := rediscommon.Connect(ctx, &s.config.Redis)
	if err != nil {
		s.logger.Warn("Redis unavailable, stream ingestion disabled", zap.Error(err))
		s.redisErr = err
		return
	}
	s.redisClient = client
}

func (s *FallwatchService) openStore() error {
	switch s.config.StoreBackend {
	case BackendRedis:
		if s.redisClient == nil {
			return s.fallback(s.redisErr)
		}
		s.store = store.NewRedisStore(s.redisClient, s.logger)
		s.backend = BackendRedis

	case BackendPostgres:
		db, err := database.NewPostgresDB(&s.config.Database)
		if err != nil {
			return s.fallback(err)
		}
		if err := database.Migrate(db); err != nil {
			_ = database.Close(db)
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		s.db = db
		s.store = store.NewPostgresStore(db, store.PQListenerFactory(s.config.Database.GetDSN(), s.logger), s.logger)
		s.backend = BackendPostgres

	case BackendMemory:
		s.store = store.NewMemoryStore()
		s.backend = BackendMemory

	default:
		return fmt.Errorf("unsupported store backend: %s", s.config.StoreBackend)
	}

	s.logger.Info("Event store ready", zap.String("backend", s.backend))
	return nil
}

// fallback 配置的后端不可达：默认启动失败，ALLOW_MEMORY_FALLBACK 时退回内存存储
func (s *FallwatchService) fallback(cause error) error {
	if !s.config.AllowMemoryFallback {
		return fmt.Errorf("%w: %s backend: %v", store.ErrUnavailable, s.config.StoreBackend, cause)
	}
	s.logger.Warn("Falling back to in-memory event store",
		zap.String("configured_backend", s.config.StoreBackend),
		zap.Error(cause),
	)
	s.store = store.NewMemoryStore()
	s.backend = BackendMemory
	return nil
}

func (s *FallwatchService) connectMQTT() {
	client, err := mqttcommon.NewClient(&s.config.MQTT, s.logger)
	if err != nil {
		s.logger.Warn("MQTT broker unavailable, MQTT ingestion disabled",
			zap.String("broker", s.config.MQTT.Broker),
			zap.Error(err),
		)
		return
	}
	s.mqttClient = client
	s.mqttConsumer = consumer.NewMQTTConsumer(
		client,
		s.redisClient,
		s.config.Ingest.MQTTTopic,
		s.config.MQTT.QoS,
		s.config.Ingest.Stream,
		s.logger,
	)
}

func (s *FallwatchService) buildRouter() *httpapi.Router {
	resolver := identity.NewResolver(s.store)
	accounts := account.NewService(s.store, s.logger)
	asst := assistant.NewAssistant(resolver, s.store, s.config.Location, s.logger)
	opts := aggregator.Options{
		WindowSize: s.config.Dashboard.WindowSize,
		SeriesSize: s.config.Dashboard.SeriesSize,
		Location:   s.config.Location,
	}

	router := httpapi.NewRouter(s.logger)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(accounts, s.logger))
	router.RegisterDashboardRoutes(httpapi.NewDashboardHandler(resolver, s.store, opts, s.logger))
	router.RegisterAssistantRoutes(httpapi.NewAssistantHandler(asst, s.logger))
	router.RegisterIngestRoutes(httpapi.NewIngestHandler(s.store, s.logger))
	router.RegisterOpsRoutes(s.health)
	return router
}

func (s *FallwatchService) health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if s.mqttClient != nil && !s.mqttClient.IsConnected() {
		return fmt.Errorf("mqtt broker disconnected")
	}
	switch s.backend {
	case BackendRedis:
		return s.redisClient.Ping(ctx).Err()
	case BackendPostgres:
		return s.db.PingContext(ctx)
	}
	return nil
}

// Backend 实际使用的存储后端
func (s *FallwatchService) Backend() string {
	return s.backend
}

// Store 事件存储（seed 工具与测试使用）
func (s *FallwatchService) Store() store.Store {
	return s.store
}

// Handler HTTP 路由
func (s *FallwatchService) Handler() http.Handler {
	return s.router
}

// Start 启动设备接入协程与 HTTP 服务，阻塞直到服务关闭
func (s *FallwatchService) Start(ctx context.Context) error {
	s.logger.Info("Starting fallwatch service",
		zap.String("backend", s.backend),
		zap.Bool("stream_ingest", s.streamConsumer != nil),
		zap.Bool("mqtt_ingest", s.mqttConsumer != nil),
	)

	go func() {
		select {
		case <-ctx.Done():
			s.runCancel()
		case <-s.runCtx.Done():
		}
	}()

	if s.streamConsumer != nil {
		s.goRun("stream consumer", s.streamConsumer.Start)
	}
	if s.mqttConsumer != nil {
		s.goRun("mqtt consumer", s.mqttConsumer.Start)
	}

	return s.server.Start()
}

func (s *FallwatchService) goRun(name string, run func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := run(s.runCtx); err != nil {
			s.logger.Error("Background worker stopped", zap.String("worker", name), zap.Error(err))
		}
	}()
}

// Stop 停止 HTTP 服务与接入协程，关闭连接（幂等）
func (s *FallwatchService) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		err = s.server.Stop(ctx)
		s.runCancel()
		if s.mqttConsumer != nil {
			s.mqttConsumer.Stop()
		}
		s.wg.Wait()
		s.closeConnections()
		s.logger.Info("Fallwatch service stopped")
	})
	return err
}

func (s *FallwatchService) closeConnections() {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("Failed to close event store", zap.Error(err))
		}
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	// redis / postgres 后端的连接由 store.Close 关闭
	if s.redisClient != nil && s.backend != BackendRedis {
		_ = s.redisClient.Close()
	}
	if s.db != nil && s.store == nil {
		_ = database.Close(s.db)
	}
}
