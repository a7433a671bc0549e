package assistant

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/identity"
	"github.com/Kaiettt/iot-fall-detection/internal/metrics"
	"github.com/Kaiettt/iot-fall-detection/internal/models"
	"github.com/Kaiettt/iot-fall-detection/internal/session"

	"go.uber.org/zap"
)

// IdentityResolver 会话 -> userId
type IdentityResolver interface {
	Resolve(ctx context.Context, sess session.Context) (string, error)
}

// LatestReader 读取最近事件
type LatestReader interface {
	GetLatest(ctx context.Context, userID string, n int) ([]models.FallEvent, error)
}

// Reply 一次语句处理的结果
type Reply struct {
	Intent  Intent            `json:"intent"`
	Outcome OutcomeKind       `json:"outcome,omitempty"`
	Text    string            `json:"text,omitempty"`
	Handled bool              `json:"handled"`           // false：无法识别，静默忽略
	Ignored bool              `json:"ignored,omitempty"` // 已有状态查询在进行中
	Event   *models.FallEvent `json:"event,omitempty"`
}

// Assistant 语句解释器的共享依赖
type Assistant struct {
	resolver IdentityResolver
	events   LatestReader
	loc      *time.Location
	logger   *zap.Logger
}

// NewAssistant 创建助手
func NewAssistant(resolver IdentityResolver, events LatestReader, loc *time.Location, logger *zap.Logger) *Assistant {
	if loc == nil {
		loc = time.Local
	}
	return &Assistant{
		resolver: resolver,
		events:   events,
		loc:      loc,
		logger:   logger,
	}
}

// NewSession 每个交互会话一个实例（持有进行中标记）
func (a *Assistant) NewSession(sess session.Context) *Session {
	return &Session{assistant: a, sess: sess}
}

// Session 单个交互会话
type Session struct {
	assistant *Assistant
	sess      session.Context
	pending   atomic.Bool
}

// Pending 是否有状态查询在进行中
func (s *Session) Pending() bool {
	return s.pending.Load()
}

// Handle 解释一句话并生成回复
func (s *Session) Handle(ctx context.Context, utterance string) Reply {
	intent := Classify(utterance)
	metrics.AssistantIntentsTotal.WithLabelValues(string(intent)).Inc()

	switch intent {
	case IntentGreeting:
		return s.reply(intent, Outcome{Kind: OutcomeGreeting})
	case IntentStatusQuery:
		// 同一会话同时只允许一个状态查询
		if !s.pending.CompareAndSwap(false, true) {
			metrics.AssistantQueriesIgnored.Inc()
			s.assistant.logger.Debug("Status query ignored while another is in flight",
				zap.String("username", s.sess.Username),
			)
			return Reply{Intent: intent, Handled: true, Ignored: true}
		}
		defer s.pending.Store(false)
		return s.reply(intent, s.queryStatus(ctx))
	default:
		return Reply{Intent: IntentUnrecognized}
	}
}

// queryStatus 解析身份 -> 读取最新一条 -> 结果
func (s *Session) queryStatus(ctx context.Context) Outcome {
	a := s.assistant

	userID, err := a.resolver.Resolve(ctx, s.sess)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrNoSession):
			return Outcome{Kind: OutcomeNoSession}
		case errors.Is(err, identity.ErrIdentityNotFound):
			a.logger.Info("No identity for status query", zap.String("username", s.sess.Username))
			return Outcome{Kind: OutcomeNoIdentity}
		default:
			a.logger.Error("Failed to resolve identity",
				zap.String("username", s.sess.Username),
				zap.Error(err),
			)
			return Outcome{Kind: OutcomeStoreError}
		}
	}

	start := time.Now()
	events, err := a.events.GetLatest(ctx, userID, 1)
	metrics.StoreQueryDurationSeconds.WithLabelValues("get_latest").Observe(time.Since(start).Seconds())
	if err != nil {
		a.logger.Error("Failed to read latest fall event",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return Outcome{Kind: OutcomeStoreError}
	}
	if len(events) == 0 {
		return Outcome{Kind: OutcomeNoEvents}
	}

	return Outcome{Kind: OutcomeLatestEvent, Event: events[len(events)-1]}
}

func (s *Session) reply(intent Intent, o Outcome) Reply {
	metrics.AssistantOutcomesTotal.WithLabelValues(string(o.Kind)).Inc()

	r := Reply{
		Intent:  intent,
		Outcome: o.Kind,
		Text:    Synthesize(o, s.assistant.loc),
		Handled: true,
	}
	if o.Kind == OutcomeLatestEvent {
		e := o.Event
		r.Event = &e
	}
	return r
}
