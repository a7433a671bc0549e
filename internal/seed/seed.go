package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/client"
	"github.com/Kaiettt/iot-fall-detection/internal/consumer"
	"github.com/Kaiettt/iot-fall-detection/internal/models"

	"go.uber.org/zap"
)

// API seed 所需的接口（*client.APIClient 实现）
type API interface {
	SignUp(ctx context.Context, email, password string) (client.Account, error)
	SignIn(ctx context.Context, email, password string) (client.Account, error)
	Ingest(ctx context.Context, userID string, payload consumer.DevicePayload) (models.FallEvent, error)
}

// SampleEvents 演示数据：两条历史记录、一条昨天、一条当前
func SampleEvents(now time.Time) []consumer.DevicePayload {
	nowMs := now.UnixMilli()
	return []consumer.DevicePayload{
		{ID: "fallId1", Timestamp: 1627896521000, FallDetected: true, HeartRate: 75},
		{ID: "fallId2", Timestamp: 1627898521000, FallDetected: false, HeartRate: 72},
		{ID: "fallId3", Timestamp: nowMs - 24*time.Hour.Milliseconds(), FallDetected: true, HeartRate: 85},
		{ID: "fallId4", Timestamp: nowMs, FallDetected: true, HeartRate: 100},
	}
}

// Result 一次 seed 的结果
type Result struct {
	UserID   string
	Created  bool // 本次新建了用户
	Appended int
	Skipped  int // 已存在或被拒绝的事件
}

// Run 用户不存在时注册，然后写入 events
func Run(ctx context.Context, api API, email, password string, events []consumer.DevicePayload, logger *zap.Logger) (Result, error) {
	var res Result

	acc, err := api.SignUp(ctx, email, password)
	switch {
	case err == nil:
		res.Created = true
	case errors.Is(err, client.ErrUsernameTaken):
		acc, err = api.SignIn(ctx, email, password)
		if err != nil {
			return res, fmt.Errorf("failed to sign in existing user: %w", err)
		}
	default:
		return res, fmt.Errorf("failed to sign up: %w", err)
	}
	res.UserID = acc.UserID

	for _, p := range events {
		if _, err := api.Ingest(ctx, acc.UserID, p); err != nil {
			var apiErr *client.APIError
			if !errors.As(err, &apiErr) {
				return res, fmt.Errorf("failed to ingest event %s: %w", p.ID, err)
			}
			logger.Warn("Sample event rejected",
				zap.String("event_id", p.ID),
				zap.String("reason", apiErr.Message),
			)
			res.Skipped++
			continue
		}
		res.Appended++
	}

	logger.Info("Seed completed",
		zap.String("user_id", res.UserID),
		zap.Bool("created", res.Created),
		zap.Int("appended", res.Appended),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}
