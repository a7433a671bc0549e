package assistant

import (
	"context"
	"sync"

	"github.com/Kaiettt/iot-fall-detection/internal/session"
)

// Sessions 无状态 HTTP 接口按用户名共享会话，保证进行中标记生效
// 会话只在有请求处理时保留，最后一个请求结束即移除
type Sessions struct {
	assistant *Assistant
	mu        sync.Mutex
	sessions  map[string]*lease
}

type lease struct {
	session *Session
	refs    int
}

func NewSessions(a *Assistant) *Sessions {
	return &Sessions{
		assistant: a,
		sessions:  make(map[string]*lease),
	}
}

// Handle 在该用户名的共享会话上处理一句话；未登录时使用一次性会话
func (s *Sessions) Handle(ctx context.Context, sess session.Context, utterance string) Reply {
	if !sess.Present() {
		return s.assistant.NewSession(sess).Handle(ctx, utterance)
	}

	shared := s.acquire(sess)
	defer s.release(sess.Username)
	return shared.Handle(ctx, utterance)
}

func (s *Sessions) acquire(sess session.Context) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.sessions[sess.Username]
	if !ok {
		l = &lease{session: s.assistant.NewSession(sess)}
		s.sessions[sess.Username] = l
	}
	l.refs++
	return l.session
}

func (s *Sessions) release(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.sessions[username]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(s.sessions, username)
	}
}

// Len 当前有请求在处理的会话数
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
