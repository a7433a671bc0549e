package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Kaiettt/iot-fall-detection/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisStore 基于 go-redis 的事件存储
//
// 键布局：
//   - emails:{username}                  -> userId
//   - users:{userId}                     -> hash {email, credentialSecret}
//   - users:{userId}:fallData            -> hash id -> JSON(FallEvent)
//   - users:{userId}:fallData:timeline   -> zset score=timestamp member=id
//   - users:{userId}:fallData:changed    -> pub/sub 变化通知
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

func usernameKey(username string) string { return "emails:" + username }
func userKey(userID string) string       { return "users:" + userID }
func eventsKey(userID string) string     { return "users:" + userID + ":fallData" }
func timelineKey(userID string) string   { return "users:" + userID + ":fallData:timeline" }
func changedChannel(userID string) string {
	return "users:" + userID + ":fallData:changed"
}

func (r *RedisStore) ResolveUserID(ctx context.Context, username string) (string, error) {
	userID, err := r.client.Get(ctx, usernameKey(username)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrNotFound
		}
		return "", unavailable("resolve user id", err)
	}
	return userID, nil
}

func (r *RedisStore) GetLatest(ctx context.Context, userID string, n int) ([]models.FallEvent, error) {
	if n <= 0 {
		return []models.FallEvent{}, nil
	}

	// 同分值成员按字典序倒序返回，与 (timestamp, id) 降序一致
	ids, err := r.client.ZRevRange(ctx, timelineKey(userID), 0, int64(n-1)).Result()
	if err != nil {
		return nil, unavailable("read timeline", err)
	}
	if len(ids) == 0 {
		return []models.FallEvent{}, nil
	}

	vals, err := r.client.HMGet(ctx, eventsKey(userID), ids...).Result()
	if err != nil {
		return nil, unavailable("read fall events", err)
	}

	events := make([]models.FallEvent, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			r.logger.Warn("Timeline entry without event body",
				zap.String("user_id", userID),
				zap.String("event_id", ids[i]),
			)
			continue
		}
		var e models.FallEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			r.logger.Warn("Skipping malformed fall event",
				zap.String("user_id", userID),
				zap.String("event_id", ids[i]),
				zap.Error(err),
			)
			continue
		}
		e.ID = ids[i]
		events = append(events, e)
	}

	return newestN(events, n), nil
}

func (r *RedisStore) Subscribe(ctx context.Context, userID string, window int, handler SnapshotHandler) (Subscription, error) {
	ps := r.client.Subscribe(ctx, changedChannel(userID))
	// 等待订阅确认，避免错过确认前的变化
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, unavailable("subscribe", err)
	}

	w := newWatch(ctx, userID, window, r.GetLatest, handler)
	w.release = ps.Close

	ch := ps.Channel()
	go func() {
		for range ch {
			w.notify()
		}
	}()

	w.start()
	return w, nil
}

func (r *RedisStore) CreateUser(ctx context.Context, user models.User) error {
	ok, err := r.client.SetNX(ctx, usernameKey(user.Username), user.UserID, 0).Result()
	if err != nil {
		return unavailable("create username index", err)
	}
	if !ok {
		return ErrUserExists
	}

	if err := r.client.HSet(ctx, userKey(user.UserID),
		"email", user.Username,
		"credentialSecret", user.CredentialSecret,
	).Err(); err != nil {
		return unavailable("create user", err)
	}
	return nil
}

func (r *RedisStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	fields, err := r.client.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return models.User{}, unavailable("get user", err)
	}
	if len(fields) == 0 {
		return models.User{}, ErrNotFound
	}
	return models.User{
		UserID:           userID,
		Username:         fields["email"],
		CredentialSecret: fields["credentialSecret"],
	}, nil
}

// appendEventScript 以时间线成员作为写入标记：正文、时间线与通知在一个脚本内完成，
// 只有正文没有时间线的残留写入可以被重试补全
// KEYS[1]=fallData KEYS[2]=timeline ARGV: id, body, timestamp, channel
var appendEventScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[2], ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('PUBLISH', ARGV[4], ARGV[1])
return 1
`)

func (r *RedisStore) AppendEvent(ctx context.Context, userID string, event models.FallEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fall event: %w", err)
	}

	created, err := appendEventScript.Run(ctx, r.client,
		[]string{eventsKey(userID), timelineKey(userID)},
		event.ID, body, strconv.FormatInt(event.Timestamp, 10), changedChannel(userID),
	).Int()
	if err != nil {
		return unavailable("write fall event", err)
	}
	if created == 0 {
		return ErrDuplicateEvent
	}

	r.logger.Debug("Appended fall event",
		zap.String("user_id", userID),
		zap.String("event_id", event.ID),
		zap.Int64("timestamp", event.Timestamp),
	)
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
