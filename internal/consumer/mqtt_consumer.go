package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqttcommon "github.com/Kaiettt/iot-fall-detection/internal/common/mqtt"
	rediscommon "github.com/Kaiettt/iot-fall-detection/internal/common/redis"
	"github.com/Kaiettt/iot-fall-detection/internal/metrics"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力（*mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTConsumer 设备跌倒数据消费者：MQTT -> Redis Streams
type MQTTConsumer struct {
	subscriber  Subscriber
	redisClient *redis.Client
	topic       string
	qos         byte
	stream      string
	logger      *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	subscriber Subscriber,
	redisClient *redis.Client,
	topic string,
	qos byte,
	stream string,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		subscriber:  subscriber,
		redisClient: redisClient,
		topic:       topic,
		qos:         qos,
		stream:      stream,
		logger:      logger,
	}
}

// Start 订阅后阻塞直到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to fall topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.topic),
		zap.String("stream", c.stream),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() {
	if err := c.subscriber.Unsubscribe(c.topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}
	c.logger.Info("MQTT consumer stopped")
}

// handleMessage 主题格式: fallwatch/{user_id}/fall
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[1] == "" {
		metrics.IngestEventsTotal.WithLabelValues("mqtt", "invalid").Inc()
		return fmt.Errorf("invalid topic format: %s", topic)
	}
	userID := parts[1]

	event, err := ParsePayload(payload)
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues("mqtt", "invalid").Inc()
		c.logger.Warn("Dropping invalid fall payload",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fall event: %w", err)
	}

	streamID, err := rediscommon.PublishToStream(context.Background(), c.redisClient, c.stream, map[string]interface{}{
		"user_id": userID,
		"data":    data,
	})
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues("mqtt", "error").Inc()
		c.logger.Error("Failed to publish to Redis Streams",
			zap.String("stream", c.stream),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	metrics.IngestEventsTotal.WithLabelValues("mqtt", "ok").Inc()
	c.logger.Debug("Published fall event to Redis Streams",
		zap.String("user_id", userID),
		zap.String("event_id", event.ID),
		zap.String("stream_id", streamID),
	)
	return nil
}
