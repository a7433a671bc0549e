package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAuthRoutes 注册 / 登录
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	r.Handle("/api/v1/auth/signup", allow(http.MethodPost, h.SignUp))
	r.Handle("/api/v1/auth/signin", allow(http.MethodPost, h.SignIn))
}

// RegisterDashboardRoutes 看板（一次性查询、导出、实时推送）
func (r *Router) RegisterDashboardRoutes(h *DashboardHandler) {
	r.Handle("/api/v1/dashboard", allow(http.MethodGet, h.GetDashboard))
	r.Handle("/api/v1/fall-events/export", allow(http.MethodGet, h.Export))
	r.Handle("/ws/dashboard", h.ServeWS)
}

// RegisterAssistantRoutes 助手（文本查询与语音通道）
func (r *Router) RegisterAssistantRoutes(h *AssistantHandler) {
	r.Handle("/api/v1/assistant/query", allow(http.MethodPost, h.Query))
	r.Handle("/ws/assistant", h.ServeWS)
}

// RegisterIngestRoutes 设备数据直写：POST /api/v1/ingest/{user_id}
func (r *Router) RegisterIngestRoutes(h *IngestHandler) {
	r.Handle("/api/v1/ingest/", allow(http.MethodPost, h.Ingest))
}

// RegisterOpsRoutes /healthz 与 /metrics
func (r *Router) RegisterOpsRoutes(health func() error) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			if err := health(); err != nil {
				r.logger.Warn("Health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, Fail(err.Error()))
				return
			}
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})
	r.HandleHandler("/metrics", promhttp.Handler())
}
