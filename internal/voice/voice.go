package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Recognizer 语音识别能力（一次识别返回一段文本）
type Recognizer interface {
	Recognize(ctx context.Context) (string, error)
}

// Speaker 语音合成能力
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop() error
}

// Listener 独占的监听会话：同一时间最多一个 Listen
type Listener struct {
	recognizer Recognizer
	active     atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewListener(r Recognizer) *Listener {
	return &Listener{recognizer: r}
}

// Active 是否正在监听
func (l *Listener) Active() bool {
	return l.active.Load()
}

// Listen 开始一次识别，已有监听时返回 ErrListeningActive
func (l *Listener) Listen(ctx context.Context) (string, error) {
	if l.recognizer == nil {
		return "", ErrSpeechUnsupported
	}
	if !l.active.CompareAndSwap(false, true) {
		return "", ErrListeningActive
	}
	defer l.active.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.cancel = nil
		l.mu.Unlock()
		cancel()
	}()

	text, err := l.recognizer.Recognize(ctx)
	if err != nil && errors.Is(err, context.Canceled) {
		return "", ErrRecognitionAborted
	}
	return text, err
}

// Stop 结束当前监听；没有监听时什么都不做
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Voice 包装 Speaker：新的播报会先打断正在进行的播报
type Voice struct {
	speaker Speaker
	mu      sync.Mutex
}

func NewVoice(s Speaker) *Voice {
	return &Voice{speaker: s}
}

func (v *Voice) Speak(ctx context.Context, text string) error {
	if v.speaker == nil {
		return ErrSpeechUnsupported
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.speaker.Stop(); err != nil {
		return err
	}
	return v.speaker.Speak(ctx, text)
}

// Stop 任何时候调用都安全
func (v *Voice) Stop() error {
	if v.speaker == nil {
		return nil
	}
	return v.speaker.Stop()
}
