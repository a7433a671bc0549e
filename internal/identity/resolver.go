package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kaiettt/iot-fall-detection/internal/session"
	"github.com/Kaiettt/iot-fall-detection/internal/store"
)

var (
	// ErrNoSession 未登录，无法解析
	ErrNoSession = errors.New("no active session")
	// ErrIdentityNotFound 用户名索引中没有对应条目
	ErrIdentityNotFound = errors.New("identity not found")
)

// UserIDLookup 用户名索引查询
type UserIDLookup interface {
	ResolveUserID(ctx context.Context, username string) (string, error)
}

// Resolver 会话用户名 -> userId
type Resolver struct {
	lookup UserIDLookup
}

func NewResolver(lookup UserIDLookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve 单次查询，无副作用，不重试
func (r *Resolver) Resolve(ctx context.Context, sess session.Context) (string, error) {
	if !sess.Present() {
		return "", ErrNoSession
	}

	key := IndexKey(sess.Username)
	userID, err := r.lookup.ResolveUserID(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrIdentityNotFound, key)
		}
		return "", err
	}
	return userID, nil
}

// IndexKey 用户名索引键：去空白，邮箱取 @ 之前的部分
// 写入（注册）和读取（解析）都必须经过这里
func IndexKey(username string) string {
	key := strings.TrimSpace(username)
	if at := strings.Index(key, "@"); at > 0 {
		key = key[:at]
	}
	return key
}
