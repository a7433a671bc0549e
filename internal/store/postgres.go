package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel fall_events 变化通知通道（payload 为 user_id）
const NotifyChannel = "fall_events"

// ListenerFactory 为订阅建立 LISTEN 连接，返回通知通道和关闭函数
type ListenerFactory func(channel string) (<-chan *pq.Notification, func() error, error)

// PQListenerFactory 基于 pq.Listener 的实现
func PQListenerFactory(dsn string, logger *zap.Logger) ListenerFactory {
	return func(channel string) (<-chan *pq.Notification, func() error, error) {
		listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Warn("Postgres listener event", zap.Int("event", int(ev)), zap.Error(err))
			}
		})
		if err := listener.Listen(channel); err != nil {
			_ = listener.Close()
			return nil, nil, err
		}
		return listener.Notify, listener.Close, nil
	}
}

// PostgresStore 基于 PostgreSQL 的事件存储
type PostgresStore struct {
	db     *sql.DB
	listen ListenerFactory
	logger *zap.Logger
}

func NewPostgresStore(db *sql.DB, listen ListenerFactory, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, listen: listen, logger: logger}
}

func (p *PostgresStore) ResolveUserID(ctx context.Context, username string) (string, error) {
	var userID string
	err := p.db.QueryRowContext(ctx,
		`SELECT user_id FROM username_index WHERE username = $1`,
		username,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", unavailable("resolve user id", err)
	}
	return userID, nil
}

func (p *PostgresStore) GetLatest(ctx context.Context, userID string, n int) ([]models.FallEvent, error) {
	if n <= 0 {
		return []models.FallEvent{}, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, ts, fall_detected, heart_rate
		 FROM fall_events
		 WHERE user_id = $1
		 ORDER BY ts DESC, id DESC
		 LIMIT $2`,
		userID, n,
	)
	if err != nil {
		return nil, unavailable("query fall events", err)
	}
	defer rows.Close()

	events := make([]models.FallEvent, 0, n)
	for rows.Next() {
		var e models.FallEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FallDetected, &e.HeartRate); err != nil {
			return nil, unavailable("scan fall event", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate fall events", err)
	}

	models.SortOldestFirst(events)
	return events, nil
}

func (p *PostgresStore) Subscribe(ctx context.Context, userID string, window int, handler SnapshotHandler) (Subscription, error) {
	notifications, closeListener, err := p.listen(NotifyChannel)
	if err != nil {
		return nil, unavailable("listen", err)
	}

	w := newWatch(ctx, userID, window, p.GetLatest, handler)
	w.release = closeListener

	go func() {
		for {
			select {
			case <-w.ctx.Done():
				return
			case n, ok := <-notifications:
				if !ok {
					return
				}
				// nil 表示连接重建，期间可能丢失通知，直接刷新
				if n == nil || n.Extra == userID {
					w.notify()
				}
			}
		}
	}()

	w.start()
	return w, nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, user models.User) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM username_index WHERE username = $1)`,
		user.Username,
	).Scan(&exists); err != nil {
		return unavailable("check username", err)
	}
	if exists {
		return ErrUserExists
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users (user_id, email, credential_secret) VALUES ($1, $2, $3)`,
		user.UserID, user.Username, user.CredentialSecret,
	); err != nil {
		return unavailable("insert user", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO username_index (username, user_id) VALUES ($1, $2)
		 ON CONFLICT (username) DO NOTHING`,
		user.Username, user.UserID,
	)
	if err != nil {
		return unavailable("insert username index", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrUserExists
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, userID string) (models.User, error) {
	user := models.User{UserID: userID}
	err := p.db.QueryRowContext(ctx,
		`SELECT email, credential_secret FROM users WHERE user_id = $1`,
		userID,
	).Scan(&user.Username, &user.CredentialSecret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, unavailable("get user", err)
	}
	return user, nil
}

func (p *PostgresStore) AppendEvent(ctx context.Context, userID string, event models.FallEvent) error {
	res, err := p.db.ExecContext(ctx,
		`INSERT INTO fall_events (user_id, id, ts, fall_detected, heart_rate)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, id) DO NOTHING`,
		userID, event.ID, event.Timestamp, event.FallDetected, event.HeartRate,
	)
	if err != nil {
		return unavailable("insert fall event", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrDuplicateEvent
	}

	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, userID); err != nil {
		// 事件已写入，通知失败只影响实时刷新
		p.logger.Warn("Failed to notify fall event change",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	return nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
