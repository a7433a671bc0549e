package store

import (
	"context"
	"sync"

	"github.com/Kaiettt/iot-fall-detection/internal/models"
)

type fetchFunc func(ctx context.Context, userID string, n int) ([]models.FallEvent, error)

// watch 单个订阅的投递循环：变化信号合并，快照串行投递
type watch struct {
	userID  string
	window  int
	fetch   fetchFunc
	handler SnapshotHandler
	release func() error

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	once     sync.Once
	closeErr error
}

func newWatch(parent context.Context, userID string, window int, fetch fetchFunc, handler SnapshotHandler) *watch {
	ctx, cancel := context.WithCancel(parent)
	return &watch{
		userID:  userID,
		window:  window,
		fetch:   fetch,
		handler: handler,
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// start 投递首个快照并开始循环
func (w *watch) start() {
	w.notify()
	go w.run()
}

// notify 标记需要刷新；已有未处理信号时直接合并
func (w *watch) notify() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *watch) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.trigger:
		}

		events, err := w.fetch(w.ctx, w.userID, w.window)
		if w.ctx.Err() != nil {
			return
		}
		w.handler(events, err)
	}
}

// Close 释放订阅，只执行一次
func (w *watch) Close() error {
	w.once.Do(func() {
		w.cancel()
		<-w.done
		if w.release != nil {
			w.closeErr = w.release()
		}
	})
	return w.closeErr
}
