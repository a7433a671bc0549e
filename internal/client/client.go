package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kaiettt/iot-fall-detection/internal/aggregator"
	"github.com/Kaiettt/iot-fall-detection/internal/assistant"
	"github.com/Kaiettt/iot-fall-detection/internal/consumer"
	"github.com/Kaiettt/iot-fall-detection/internal/models"
	"github.com/Kaiettt/iot-fall-detection/internal/session"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const resultSuccess = 2000

// ErrUsernameTaken 注册时用户名已存在
var ErrUsernameTaken = errors.New("username already registered")

// APIError 服务端返回 code != 2000
type APIError struct {
	Path    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// Account 注册 / 登录结果
type Account struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// APIClient fallwatch HTTP API 客户端
type APIClient struct {
	httpClient *resty.Client
	username   string
	logger     *zap.Logger
}

// NewAPIClient 创建客户端；username 作为会话用户名随请求发送
func NewAPIClient(baseURL, username string, logger *zap.Logger) *APIClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &APIClient{
		httpClient: client,
		username:   username,
		logger:     logger,
	}
}

// WithUsername 返回使用另一个会话用户名的副本
func (c *APIClient) WithUsername(username string) *APIClient {
	cp := *c
	cp.username = username
	return &cp
}

func (c *APIClient) request(ctx context.Context) *resty.Request {
	req := c.httpClient.R().SetContext(ctx)
	if c.username != "" {
		req.SetHeader(session.HeaderUsername, c.username)
	}
	return req
}

// call 发送请求并解包 Result 信封
func (c *APIClient) call(ctx context.Context, method, path string, body, out any) error {
	var env envelope
	req := c.request(ctx).SetResult(&env)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Error("API call failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.IsError() {
		return &APIError{Path: path, Message: resp.Status()}
	}
	if env.Code != resultSuccess {
		return &APIError{Path: path, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s result: %w", path, err)
	}
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp 注册
func (c *APIClient) SignUp(ctx context.Context, email, password string) (Account, error) {
	var acc Account
	err := c.call(ctx, resty.MethodPost, "/api/v1/auth/signup", credentials{Email: email, Password: password}, &acc)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message == ErrUsernameTaken.Error() {
		return Account{}, ErrUsernameTaken
	}
	return acc, err
}

// SignIn 登录
func (c *APIClient) SignIn(ctx context.Context, email, password string) (Account, error) {
	var acc Account
	err := c.call(ctx, resty.MethodPost, "/api/v1/auth/signin", credentials{Email: email, Password: password}, &acc)
	return acc, err
}

// Ask 向助手发送一句话
func (c *APIClient) Ask(ctx context.Context, text string) (assistant.Reply, error) {
	var reply assistant.Reply
	err := c.call(ctx, resty.MethodPost, "/api/v1/assistant/query", map[string]string{"text": text}, &reply)
	return reply, err
}

// Dashboard 当前看板
func (c *APIClient) Dashboard(ctx context.Context) (aggregator.View, error) {
	var view aggregator.View
	err := c.call(ctx, resty.MethodGet, "/api/v1/dashboard", nil, &view)
	return view, err
}

// Ingest 为 userID 写入一条设备数据
func (c *APIClient) Ingest(ctx context.Context, userID string, payload consumer.DevicePayload) (models.FallEvent, error) {
	var event models.FallEvent
	err := c.call(ctx, resty.MethodPost, "/api/v1/ingest/"+userID, payload, &event)
	return event, err
}

// Export 下载当前窗口的 .xlsx
func (c *APIClient) Export(ctx context.Context) ([]byte, error) {
	const path = "/api/v1/fall-events/export"
	resp, err := c.request(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, &APIError{Path: path, Message: resp.Status()}
	}
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "application/json") {
		var env envelope
		if err := json.Unmarshal(resp.Body(), &env); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return nil, &APIError{Path: path, Message: env.Message}
	}
	return resp.Body(), nil
}
