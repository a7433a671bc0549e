package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	rediscommon "github.com/Kaiettt/iot-fall-detection/internal/common/redis"
	"github.com/Kaiettt/iot-fall-detection/internal/metrics"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamConsumer 从 Redis Streams 读取设备事件并写入事件存储
type StreamConsumer struct {
	redisClient  *redis.Client
	writer       store.EventWriter
	logger       *zap.Logger
	stream       string
	groupName    string
	consumerName string
	batchSize    int64
	block        time.Duration

	// 为 true 时先重放本消费者的 pending 消息（启动时与写入失败后）
	replayPending bool
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	redisClient *redis.Client,
	writer store.EventWriter,
	logger *zap.Logger,
	stream string,
	groupName string,
	consumerName string,
	batchSize int64,
) *StreamConsumer {
	return &StreamConsumer{
		redisClient:  redisClient,
		writer:       writer,
		logger:       logger,
		stream:       stream,
		groupName:    groupName,
		consumerName: consumerName,
		batchSize:    batchSize,
		block:        2 * time.Second,

		replayPending: true,
	}
}

// Start 启动消费循环（带指数退避），ctx 取消时返回
func (c *StreamConsumer) Start(ctx context.Context) error {
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, c.stream, c.groupName); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.stream),
		zap.String("consumer_group", c.groupName),
		zap.String("consumer_name", c.consumerName),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.consumeEvents(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume fall events",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
		} else {
			backoffDuration = time.Second
		}
	}
}

// consumeEvents 读取一批并逐条处理；有写入失败时返回错误触发退避
func (c *StreamConsumer) consumeEvents(ctx context.Context) error {
	messages, err := c.readBatch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	failed := 0
	for _, msg := range messages {
		if err := c.processMessage(ctx, msg); err != nil {
			// 不确认，下一轮从 pending 重放
			c.logger.Error("Failed to process fall event",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			metrics.IngestEventsTotal.WithLabelValues("stream", "error").Inc()
			failed++
			continue
		}
		if err := rediscommon.Ack(ctx, c.redisClient, c.stream, c.groupName, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		c.replayPending = true
		return fmt.Errorf("%d fall events left pending", failed)
	}
	return nil
}

// readBatch pending 消息重放完之后才读取新消息
func (c *StreamConsumer) readBatch(ctx context.Context) ([]rediscommon.StreamMessage, error) {
	if c.replayPending {
		messages, err := rediscommon.ReadPendingFromStream(ctx, c.redisClient, c.stream, c.groupName, c.consumerName, c.batchSize)
		if err != nil {
			return nil, err
		}
		if len(messages) > 0 {
			return messages, nil
		}
		c.replayPending = false
	}
	return rediscommon.ReadFromStream(ctx, c.redisClient, c.stream, c.groupName, c.consumerName, c.batchSize, c.block)
}

// processMessage 返回 nil 表示可以确认（包括重复和无效消息）
func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	userID, _ := msg.Values["user_id"].(string)
	data, _ := msg.Values["data"].(string)
	if userID == "" || data == "" {
		c.logger.Warn("Dropping stream message without user_id or data",
			zap.String("message_id", msg.ID),
		)
		metrics.IngestEventsTotal.WithLabelValues("stream", "invalid").Inc()
		return nil
	}

	event, err := ParsePayload([]byte(data))
	if err != nil {
		c.logger.Warn("Dropping invalid fall event",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		metrics.IngestEventsTotal.WithLabelValues("stream", "invalid").Inc()
		return nil
	}

	if err := c.writer.AppendEvent(ctx, userID, event); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			c.logger.Debug("Skipping duplicate fall event",
				zap.String("user_id", userID),
				zap.String("event_id", event.ID),
			)
			metrics.IngestEventsTotal.WithLabelValues("stream", "duplicate").Inc()
			return nil
		}
		return fmt.Errorf("failed to append fall event: %w", err)
	}

	metrics.IngestEventsTotal.WithLabelValues("stream", "ok").Inc()
	c.logger.Info("Stored fall event",
		zap.String("user_id", userID),
		zap.String("event_id", event.ID),
		zap.Bool("fall_detected", event.FallDetected),
	)
	return nil
}
