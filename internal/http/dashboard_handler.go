package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/Kaiettt/iot-fall-detection/internal/aggregator"
	"github.com/Kaiettt/iot-fall-detection/internal/identity"
	"github.com/Kaiettt/iot-fall-detection/internal/metrics"
	"github.com/Kaiettt/iot-fall-detection/internal/models"
	"github.com/Kaiettt/iot-fall-detection/internal/session"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DashboardHandler 看板接口
type DashboardHandler struct {
	resolver aggregator.IdentityResolver
	events   store.EventStore
	opts     aggregator.Options
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewDashboardHandler(resolver aggregator.IdentityResolver, events store.EventStore, opts aggregator.Options, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		resolver: resolver,
		events:   events,
		opts:     opts.WithDefaults(),
		upgrader: newUpgrader(),
		logger:   logger,
	}
}

type viewFrame struct {
	Type string          `json:"type"`
	View aggregator.View `json:"view"`
}

// GET /api/v1/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, events, ok := h.loadWindow(w, r)
	if !ok {
		return
	}

	view := aggregator.Compute(events, h.opts.SeriesSize, h.opts.Location)
	view.UserID = userID
	writeJSON(w, http.StatusOK, Ok(view))
}

// GET /api/v1/fall-events/export
func (h *DashboardHandler) Export(w http.ResponseWriter, r *http.Request) {
	_, events, ok := h.loadWindow(w, r)
	if !ok {
		return
	}

	models.SortNewestFirst(events)
	data, err := GenerateFallEventExport(events, h.opts.Location)
	if err != nil {
		h.logger.Error("Failed to generate fall event export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to generate export"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="fall_events.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// loadWindow 解析身份并读取窗口，失败时已写入响应
func (h *DashboardHandler) loadWindow(w http.ResponseWriter, r *http.Request) (string, []models.FallEvent, bool) {
	ctx := r.Context()
	sess := session.FromRequest(r)

	userID, err := h.resolver.Resolve(ctx, sess)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(h.identityFailure(err, sess)))
		return "", nil, false
	}

	events, err := h.events.GetLatest(ctx, userID, h.opts.WindowSize)
	if err != nil {
		h.logger.Error("Failed to read fall events",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("fall detection data unavailable"))
		return "", nil, false
	}
	return userID, events, true
}

func (h *DashboardHandler) identityFailure(err error, sess session.Context) string {
	switch {
	case errors.Is(err, identity.ErrNoSession):
		return "user ID is required"
	case errors.Is(err, identity.ErrIdentityNotFound):
		return "account not found"
	default:
		h.logger.Error("Failed to resolve identity",
			zap.String("username", sess.Username),
			zap.Error(err),
		)
		return "fall detection data unavailable"
	}
}

// GET /ws/dashboard：连接期间持有一个聚合引擎，断开即释放
func (h *DashboardHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	c := newWSConn(conn, h.logger)
	defer c.close()

	metrics.WebSocketConnectionsActive.WithLabelValues("dashboard").Inc()
	defer metrics.WebSocketConnectionsActive.WithLabelValues("dashboard").Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	opts := h.opts
	opts.OnPublish = func(v aggregator.View) {
		if err := c.writeJSON(viewFrame{Type: "view", View: v}); err != nil {
			h.logger.Debug("Failed to push view", zap.Error(err))
		}
	}

	engine := aggregator.NewEngine(h.resolver, h.events, sess, opts, h.logger)
	defer engine.Stop()

	if err := engine.Start(ctx); err != nil {
		// 终止视图已推送
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if isUnexpectedClose(err) {
				h.logger.Warn("Dashboard websocket read error", zap.Error(err))
			}
			return
		}
	}
}
