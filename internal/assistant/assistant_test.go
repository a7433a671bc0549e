package assistant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/identity"
	"github.com/Kaiettt/iot-fall-detection/internal/models"
	"github.com/Kaiettt/iot-fall-detection/internal/session"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEventStore 统计 GetLatest 调用，可选阻塞
type fakeEventStore struct {
	users   map[string]string
	events  []models.FallEvent
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (f *fakeEventStore) ResolveUserID(ctx context.Context, username string) (string, error) {
	id, ok := f.users[username]
	if !ok {
		return "", store.ErrNotFound
	}
	return id, nil
}

func (f *fakeEventStore) GetLatest(ctx context.Context, userID string, n int) ([]models.FallEvent, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.events) > n {
		return f.events[len(f.events)-n:], nil
	}
	return f.events, nil
}

func newTestSession(fs *fakeEventStore, username string) *Session {
	a := NewAssistant(identity.NewResolver(fs), fs, time.UTC, zap.NewNop())
	return a.NewSession(session.Context{Username: username})
}

func TestHandle_Greeting(t *testing.T) {
	fs := &fakeEventStore{users: map[string]string{"alice": "u-1"}}
	s := newTestSession(fs, "alice")

	reply := s.Handle(context.Background(), "hello, is grandma okay")

	assert.Equal(t, IntentGreeting, reply.Intent)
	assert.Equal(t, "How can I help you?", reply.Text)
	assert.True(t, reply.Handled)
	assert.Equal(t, int32(0), fs.calls.Load())
}

func TestHandle_StatusQuery_Fall(t *testing.T) {
	fs := &fakeEventStore{
		users: map[string]string{"alice": "u-1"},
		events: []models.FallEvent{
			{ID: "e1", Timestamp: 1_699_999_000_000, HeartRate: 70},
			{ID: "e2", Timestamp: 1_700_000_000_000, FallDetected: true, HeartRate: 80},
		},
	}
	s := newTestSession(fs, "alice@example.com")

	reply := s.Handle(context.Background(), "How is grandma?")

	assert.Equal(t, IntentStatusQuery, reply.Intent)
	assert.Equal(t, OutcomeLatestEvent, reply.Outcome)
	assert.Equal(t,
		"I'm concerned. There was a fall detected at 11/14/2023, 10:13:20 PM. Heart rate was 80 BPM. You might want to check on them.",
		reply.Text,
	)
	require.NotNil(t, reply.Event)
	assert.Equal(t, "e2", reply.Event.ID)
	assert.False(t, s.Pending())
}

func TestHandle_StatusQuery_NoEvents(t *testing.T) {
	fs := &fakeEventStore{users: map[string]string{"alice": "u-1"}}
	s := newTestSession(fs, "alice")

	reply := s.Handle(context.Background(), "grandpa")

	assert.Equal(t, OutcomeNoEvents, reply.Outcome)
	assert.Equal(t, "I don't have any fall data for your family member at the moment.", reply.Text)
}

func TestHandle_StatusQuery_UnknownIdentity(t *testing.T) {
	fs := &fakeEventStore{users: map[string]string{}}
	s := newTestSession(fs, "ghost")

	reply := s.Handle(context.Background(), "is grandma ok")

	assert.Equal(t, OutcomeNoIdentity, reply.Outcome)
	assert.Equal(t, "I couldn't find your account information. Please make sure you're logged in.", reply.Text)
	assert.Equal(t, int32(0), fs.calls.Load())
}

func TestHandle_StatusQuery_NoSession(t *testing.T) {
	fs := &fakeEventStore{users: map[string]string{"alice": "u-1"}}
	s := newTestSession(fs, "")

	reply := s.Handle(context.Background(), "is grandma ok")

	assert.Equal(t, OutcomeNoSession, reply.Outcome)
	assert.Equal(t, int32(0), fs.calls.Load())
}

func TestHandle_StatusQuery_StoreError(t *testing.T) {
	fs := &fakeEventStore{
		users: map[string]string{"alice": "u-1"},
		err:   errors.New("dial tcp: connection refused"),
	}
	s := newTestSession(fs, "alice")

	reply := s.Handle(context.Background(), "grandma")

	assert.Equal(t, OutcomeStoreError, reply.Outcome)
	assert.Equal(t, "Sorry, I couldn't access the fall detection data. Please try again later.", reply.Text)
	assert.NotContains(t, reply.Text, "connection refused")
	assert.False(t, s.Pending())
}

func TestHandle_Unrecognized(t *testing.T) {
	fs := &fakeEventStore{users: map[string]string{"alice": "u-1"}}
	s := newTestSession(fs, "alice")

	reply := s.Handle(context.Background(), "what time is it")

	assert.Equal(t, IntentUnrecognized, reply.Intent)
	assert.False(t, reply.Handled)
	assert.Empty(t, reply.Text)
	assert.Equal(t, int32(0), fs.calls.Load())
}

func TestHandle_SecondStatusQueryWhilePendingIsIgnored(t *testing.T) {
	fs := &fakeEventStore{
		users:   map[string]string{"alice": "u-1"},
		events:  []models.FallEvent{{ID: "e1", Timestamp: 1_700_000_000_000, HeartRate: 75}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestSession(fs, "alice")

	var wg sync.WaitGroup
	var first Reply
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = s.Handle(context.Background(), "how is grandma")
	}()

	select {
	case <-fs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first query never reached the store")
	}
	assert.True(t, s.Pending())

	second := s.Handle(context.Background(), "how is grandpa")
	assert.True(t, second.Ignored)
	assert.Empty(t, second.Text)

	// 问候不受进行中标记影响
	greeting := s.Handle(context.Background(), "hello")
	assert.Equal(t, "How can I help you?", greeting.Text)

	close(fs.release)
	wg.Wait()

	assert.Equal(t, int32(1), fs.calls.Load())
	assert.Equal(t, OutcomeLatestEvent, first.Outcome)
	assert.False(t, s.Pending())

	// 完成后可以再次查询
	fs.entered = nil
	third := s.Handle(context.Background(), "grandma")
	assert.False(t, third.Ignored)
	assert.Equal(t, int32(2), fs.calls.Load())
}

func TestSessions_SharedWhileInFlightThenReleased(t *testing.T) {
	fs := &fakeEventStore{
		users:   map[string]string{"alice": "u-1"},
		events:  []models.FallEvent{{ID: "e1", Timestamp: 1_700_000_000_000, HeartRate: 75}},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	a := NewAssistant(identity.NewResolver(fs), fs, time.UTC, zap.NewNop())
	sessions := NewSessions(a)
	alice := session.Context{Username: "alice"}

	var wg sync.WaitGroup
	var first Reply
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = sessions.Handle(context.Background(), alice, "how is grandma")
	}()

	select {
	case <-fs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first query never reached the store")
	}
	assert.Equal(t, 1, sessions.Len())

	second := sessions.Handle(context.Background(), alice, "how is grandpa")
	assert.True(t, second.Ignored)
	assert.Equal(t, 1, sessions.Len())

	close(fs.release)
	wg.Wait()

	assert.Equal(t, OutcomeLatestEvent, first.Outcome)
	assert.Equal(t, int32(1), fs.calls.Load())
	assert.Equal(t, 0, sessions.Len())
}

func TestSessions_DoNotAccumulate(t *testing.T) {
	fs := &fakeEventStore{users: map[string]string{}}
	a := NewAssistant(identity.NewResolver(fs), fs, time.UTC, zap.NewNop())
	sessions := NewSessions(a)

	for _, name := range []string{"alice", "bob", "carol", "mallory"} {
		reply := sessions.Handle(context.Background(), session.Context{Username: name}, "is grandpa ok")
		assert.Equal(t, OutcomeNoIdentity, reply.Outcome)
	}

	anon := sessions.Handle(context.Background(), session.Context{}, "is grandpa ok")
	assert.Equal(t, OutcomeNoSession, anon.Outcome)
	assert.Equal(t, 0, sessions.Len())
}
