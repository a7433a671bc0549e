package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Kaiettt/iot-fall-detection/internal/consumer"
	"github.com/Kaiettt/iot-fall-detection/internal/metrics"
	"github.com/Kaiettt/iot-fall-detection/internal/store"

	"go.uber.org/zap"
)

// IngestHandler 设备数据直写（不经过 MQTT）
type IngestHandler struct {
	writer store.EventWriter
	logger *zap.Logger
}

func NewIngestHandler(writer store.EventWriter, logger *zap.Logger) *IngestHandler {
	return &IngestHandler{writer: writer, logger: logger}
}

// POST /api/v1/ingest/{user_id}
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/api/v1/ingest/")
	if userID == "" || strings.Contains(userID, "/") {
		writeJSON(w, http.StatusOK, Fail("user ID is required"))
		return
	}

	var payload consumer.DevicePayload
	if err := readBodyJSON(r, maxBodyBytes, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	event, err := payload.ToEvent()
	if err != nil {
		metrics.IngestEventsTotal.WithLabelValues("http", "invalid").Inc()
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	if err := h.writer.AppendEvent(r.Context(), userID, event); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			metrics.IngestEventsTotal.WithLabelValues("http", "duplicate").Inc()
			writeJSON(w, http.StatusOK, Fail(err.Error()))
			return
		}
		metrics.IngestEventsTotal.WithLabelValues("http", "error").Inc()
		h.logger.Error("Failed to append fall event",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail("event store unavailable"))
		return
	}

	metrics.IngestEventsTotal.WithLabelValues("http", "ok").Inc()
	writeJSON(w, http.StatusOK, Ok(event))
}
