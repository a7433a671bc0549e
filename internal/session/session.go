package session

import (
	"net/http"
	"strings"
)

// HeaderUsername 前端登录后携带的用户名请求头
const HeaderUsername = "X-Username"

// Context 当前登录会话（显式传递，不使用全局状态）
type Context struct {
	Username string
}

// Present 是否已登录
func (c Context) Present() bool {
	return strings.TrimSpace(c.Username) != ""
}

// FromRequest 从请求中提取会话：优先请求头，其次查询参数 username
func FromRequest(r *http.Request) Context {
	username := strings.TrimSpace(r.Header.Get(HeaderUsername))
	if username == "" {
		username = strings.TrimSpace(r.URL.Query().Get("username"))
	}
	return Context{Username: username}
}
