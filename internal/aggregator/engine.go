package aggregator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/metrics"
	"github.com/Kaiettt/iot-fall-detection/internal/models"
	"github.com/Kaiettt/iot-fall-detection/internal/session"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"go.uber.org/zap"
)

const (
	DefaultWindowSize = 100
	DefaultSeriesSize = 20
)

// ErrAlreadyStarted Start 只能调用一次
var ErrAlreadyStarted = errors.New("engine already started")

// IdentityResolver 会话 -> userId
type IdentityResolver interface {
	Resolve(ctx context.Context, sess session.Context) (string, error)
}

// Options 引擎参数
type Options struct {
	WindowSize int
	SeriesSize int
	Location   *time.Location
	// OnPublish 每次发布新 View 后回调（在投递协程中执行）
	OnPublish func(View)
}

// WithDefaults 未设置的字段使用默认值
func (o Options) WithDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = DefaultWindowSize
	}
	if o.SeriesSize <= 0 {
		o.SeriesSize = DefaultSeriesSize
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Engine 单个看板会话的实时聚合
// 生命周期：Start 解析身份并订阅，Stop 释放订阅（可重复调用）
type Engine struct {
	resolver IdentityResolver
	store    store.EventStore
	sess     session.Context
	opts     Options
	logger   *zap.Logger

	view    atomic.Pointer[View]
	version uint64 // 仅在投递协程中递增

	mu      sync.Mutex
	started bool
	stopped bool
	sub     store.Subscription
}

// NewEngine 创建聚合引擎
func NewEngine(resolver IdentityResolver, es store.EventStore, sess session.Context, opts Options, logger *zap.Logger) *Engine {
	e := &Engine{
		resolver: resolver,
		store:    es,
		sess:     sess,
		opts:     opts.WithDefaults(),
		logger:   logger,
	}
	idle := EmptyView(StateIdle, "")
	e.view.Store(&idle)
	return e
}

// View 当前已发布的视图
func (e *Engine) View() View {
	return *e.view.Load()
}

// Start 解析身份后订阅最近 WindowSize 条事件
// 身份解析失败或订阅失败时进入终止状态，不重试
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	userID, err := e.resolver.Resolve(ctx, e.sess)
	if err != nil {
		e.logger.Warn("Aggregation engine could not resolve identity",
			zap.String("username", e.sess.Username),
			zap.Error(err),
		)
		e.terminate(err)
		return err
	}

	sub, err := e.store.Subscribe(ctx, userID, e.opts.WindowSize, e.onSnapshot(userID))
	if err != nil {
		e.logger.Error("Aggregation engine could not subscribe",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		e.terminate(err)
		return err
	}

	e.mu.Lock()
	if e.stopped {
		// Start 期间已调用 Stop
		e.mu.Unlock()
		if err := sub.Close(); err != nil {
			e.logger.Warn("Failed to close subscription", zap.Error(err))
		}
		e.markStopped()
		return nil
	}
	e.sub = sub
	e.mu.Unlock()

	metrics.EnginesActive.Inc()
	e.logger.Info("Aggregation engine started",
		zap.String("user_id", userID),
		zap.Int("window_size", e.opts.WindowSize),
	)
	return nil
}

// Stop 释放订阅，恰好一次；未启动或重复调用均安全
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		e.logger.Warn("Failed to close subscription", zap.Error(err))
	}
	metrics.EnginesActive.Dec()
	e.markStopped()
}

// markStopped 订阅关闭后调用，此时不会再有快照投递
func (e *Engine) markStopped() {
	current := e.View()
	current.State = StateStopped
	e.view.Store(&current)
}

func (e *Engine) onSnapshot(userID string) store.SnapshotHandler {
	return func(events []models.FallEvent, err error) {
		if err != nil {
			// 保留上一次的视图
			metrics.EngineSnapshotsTotal.WithLabelValues("error").Inc()
			e.logger.Warn("Failed to refresh fall event window",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}

		view := Compute(events, e.opts.SeriesSize, e.opts.Location)
		e.version++
		view.UserID = userID
		view.Version = e.version
		e.publish(view)
		metrics.EngineSnapshotsTotal.WithLabelValues("ok").Inc()
	}
}

func (e *Engine) terminate(err error) {
	view := EmptyView(StateTerminal, err.Error())
	e.publish(view)
}

func (e *Engine) publish(view View) {
	e.view.Store(&view)
	if e.opts.OnPublish != nil {
		e.opts.OnPublish(view)
	}
}
