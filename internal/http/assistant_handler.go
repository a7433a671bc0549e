package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/Kaiettt/iot-fall-detection/internal/assistant"
	"github.com/Kaiettt/iot-fall-detection/internal/metrics"
	"github.com/Kaiettt/iot-fall-detection/internal/session"
	"github.com/Kaiettt/iot-fall-detection/internal/voice"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// AssistantHandler 助手接口：HTTP 文本查询与 WebSocket 语音通道
type AssistantHandler struct {
	assistant *assistant.Assistant
	sessions  *assistant.Sessions
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func NewAssistantHandler(a *assistant.Assistant, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{
		assistant: a,
		sessions:  assistant.NewSessions(a),
		upgrader:  newUpgrader(),
		logger:    logger,
	}
}

type queryRequest struct {
	Text string `json:"text"`
}

// POST /api/v1/assistant/query
func (h *AssistantHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	reply := h.sessions.Handle(r.Context(), session.FromRequest(r), req.Text)
	writeJSON(w, http.StatusOK, Ok(reply))
}

// 客户端 -> 服务端帧类型
const (
	frameListenStart      = "listen_start"
	frameListenStop       = "listen_stop"
	frameTranscript       = "transcript"
	frameRecognitionError = "recognition_error"
	frameText             = "text"
)

// 服务端 -> 客户端帧类型
const (
	frameResponse  = "response"
	frameError     = "error"
	frameListening = "listening"
)

type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Code string `json:"code,omitempty"`
}

type outboundFrame struct {
	Type    string           `json:"type"`
	Text    string           `json:"text,omitempty"`
	Message string           `json:"message,omitempty"`
	Active  *bool            `json:"active,omitempty"`
	Reply   *assistant.Reply `json:"reply,omitempty"`
}

// assistantConn 单个语音通道连接
type assistantConn struct {
	h        *AssistantHandler
	c        *wsConn
	session  *assistant.Session
	rec      *voice.PushRecognizer
	listener *voice.Listener
	voice    *voice.Voice
	wg       sync.WaitGroup
}

// GET /ws/assistant
func (h *AssistantHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sess := session.FromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	c := newWSConn(conn, h.logger)
	defer c.close()

	metrics.WebSocketConnectionsActive.WithLabelValues("assistant").Inc()
	defer metrics.WebSocketConnectionsActive.WithLabelValues("assistant").Dec()

	ctx, cancel := context.WithCancel(r.Context())

	rec := voice.NewPushRecognizer()
	ac := &assistantConn{
		h:        h,
		c:        c,
		session:  h.assistant.NewSession(sess),
		rec:      rec,
		listener: voice.NewListener(rec),
		voice: voice.NewVoice(voice.NewFrameSpeaker(func(frameType, text string) error {
			return c.writeJSON(outboundFrame{Type: frameType, Text: text})
		})),
	}

	defer func() {
		cancel()
		ac.listener.Stop()
		ac.wg.Wait()
		_ = ac.voice.Stop()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isUnexpectedClose(err) {
				h.logger.Warn("Assistant websocket read error", zap.Error(err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("Invalid assistant frame", zap.Error(err))
			continue
		}
		ac.dispatch(ctx, frame)
	}
}

func (ac *assistantConn) dispatch(ctx context.Context, frame inboundFrame) {
	switch frame.Type {
	case frameListenStart:
		if ac.listener.Active() {
			return
		}
		ac.rec.Drain()
		ac.wg.Add(1)
		go func() {
			defer ac.wg.Done()
			ac.listen(ctx)
		}()
	case frameListenStop:
		ac.listener.Stop()
	case frameTranscript:
		ac.rec.Deliver(frame.Text, nil)
	case frameRecognitionError:
		ac.rec.Deliver("", voice.ErrorFromCode(frame.Code))
	case frameText:
		ac.wg.Add(1)
		go func() {
			defer ac.wg.Done()
			ac.respond(ctx, frame.Text)
		}()
	default:
		ac.h.logger.Debug("Unknown assistant frame", zap.String("type", frame.Type))
	}
}

// listen 一次独占的识别，结果交给助手处理
func (ac *assistantConn) listen(ctx context.Context) {
	active := true
	_ = ac.c.writeJSON(outboundFrame{Type: frameListening, Active: &active})

	text, err := ac.listener.Listen(ctx)
	if errors.Is(err, voice.ErrListeningActive) {
		return
	}

	inactive := false
	_ = ac.c.writeJSON(outboundFrame{Type: frameListening, Active: &inactive})

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		_ = ac.c.writeJSON(outboundFrame{Type: frameError, Message: voice.UserMessage(err)})
		return
	}
	ac.respond(ctx, text)
}

func (ac *assistantConn) respond(ctx context.Context, text string) {
	reply := ac.session.Handle(ctx, text)
	if err := ac.c.writeJSON(outboundFrame{Type: frameResponse, Reply: &reply}); err != nil {
		return
	}
	if reply.Text == "" {
		return
	}
	if err := ac.voice.Speak(ctx, reply.Text); err != nil && ctx.Err() == nil {
		ac.h.logger.Debug("Failed to send speak frame", zap.Error(err))
	}
}
