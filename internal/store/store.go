package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kaiettt/iot-fall-detection/internal/models"
)

var (
	// ErrNotFound 用户名索引或用户不存在
	ErrNotFound = errors.New("not found")
	// ErrUserExists 用户名已被占用
	ErrUserExists = errors.New("username already exists")
	// ErrDuplicateEvent 同一用户下事件 ID 已存在（事件只写一次）
	ErrDuplicateEvent = errors.New("fall event already exists")
	// ErrUnavailable 无法访问远端存储
	ErrUnavailable = errors.New("event store unavailable")
)

// SnapshotHandler 接收一次完整窗口快照（按时间升序）；err 非空表示本次刷新失败
type SnapshotHandler func(events []models.FallEvent, err error)

// Subscription 订阅句柄，Close 幂等
// 不要在 SnapshotHandler 内部调用 Close（Close 会等待投递协程退出）
type Subscription interface {
	Close() error
}

// EventStore 核心逻辑依赖的只读契约
type EventStore interface {
	// ResolveUserID 用户名 -> userId，不存在返回 ErrNotFound
	ResolveUserID(ctx context.Context, username string) (string, error)
	// GetLatest 返回最近 n 条事件，按 (timestamp, id) 升序
	GetLatest(ctx context.Context, userID string, n int) ([]models.FallEvent, error)
	// Subscribe 立即投递一次当前窗口，之后每次变化再投递完整窗口
	Subscribe(ctx context.Context, userID string, window int, handler SnapshotHandler) (Subscription, error)
}

// UserStore 账号读写
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) error
	GetUser(ctx context.Context, userID string) (models.User, error)
}

// EventWriter 设备数据写入
type EventWriter interface {
	AppendEvent(ctx context.Context, userID string, event models.FallEvent) error
}

// Store 完整的存储实现
type Store interface {
	EventStore
	UserStore
	EventWriter
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func newestN(events []models.FallEvent, n int) []models.FallEvent {
	models.SortOldestFirst(events)
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return events
}
