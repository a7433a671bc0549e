package store

import (
	"context"
	"sync"

	"github.com/Kaiettt/iot-fall-detection/internal/models"
)

// MemoryStore 内存存储（测试和无 Redis/DB 的本地联调使用）
type MemoryStore struct {
	mu       sync.RWMutex
	index    map[string]string // username -> userId
	users    map[string]models.User
	events   map[string]map[string]models.FallEvent // userId -> id -> event
	watchers map[string]map[*watch]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index:    make(map[string]string),
		users:    make(map[string]models.User),
		events:   make(map[string]map[string]models.FallEvent),
		watchers: make(map[string]map[*watch]struct{}),
	}
}

func (m *MemoryStore) ResolveUserID(ctx context.Context, username string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	userID, ok := m.index[username]
	if !ok {
		return "", ErrNotFound
	}
	return userID, nil
}

func (m *MemoryStore) GetLatest(ctx context.Context, userID string, n int) ([]models.FallEvent, error) {
	if n <= 0 {
		return []models.FallEvent{}, nil
	}

	m.mu.RLock()
	all := make([]models.FallEvent, 0, len(m.events[userID]))
	for _, e := range m.events[userID] {
		all = append(all, e)
	}
	m.mu.RUnlock()

	return newestN(all, n), nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, userID string, window int, handler SnapshotHandler) (Subscription, error) {
	w := newWatch(ctx, userID, window, m.GetLatest, handler)
	w.release = func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[userID], w)
		if len(m.watchers[userID]) == 0 {
			delete(m.watchers, userID)
		}
		return nil
	}

	m.mu.Lock()
	if m.watchers[userID] == nil {
		m.watchers[userID] = make(map[*watch]struct{})
	}
	m.watchers[userID][w] = struct{}{}
	m.mu.Unlock()

	w.start()
	return w, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[user.Username]; exists {
		return ErrUserExists
	}
	m.index[user.Username] = user.UserID
	m.users[user.UserID] = user
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, userID string, event models.FallEvent) error {
	m.mu.Lock()
	if m.events[userID] == nil {
		m.events[userID] = make(map[string]models.FallEvent)
	}
	if _, exists := m.events[userID][event.ID]; exists {
		m.mu.Unlock()
		return ErrDuplicateEvent
	}
	m.events[userID][event.ID] = event

	watchers := make([]*watch, 0, len(m.watchers[userID]))
	for w := range m.watchers[userID] {
		watchers = append(watchers, w)
	}
	m.mu.Unlock()

	for _, w := range watchers {
		w.notify()
	}
	return nil
}

// WatcherCount 当前某用户的活跃订阅数
func (m *MemoryStore) WatcherCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.watchers[userID])
}

func (m *MemoryStore) Close() error { return nil }
