package stream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/command"
	"github.com/zhouzirui/synthesis-talk/backend/pkg/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 64 << 10
)

// WebSocketHandler 通过 WebSocket 承载多轮聊天
type WebSocketHandler struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器，allowedOrigins 为空或含 "*" 时不校验来源
func NewWebSocketHandler(dispatcher Dispatcher, allowedOrigins []string, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		dispatcher: dispatcher,
		log:        log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin || (strings.HasPrefix(a, "*.") && strings.HasSuffix(origin, a[1:])) {
				return true
			}
		}
		return false
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

// InboundMessage is one chat request frame.
type InboundMessage struct {
	SessionID string `json:"session_id" validate:"required,max=256"`
	Message   string `json:"message" validate:"max=32000"`
	Format    string `json:"format" validate:"omitempty,max=32"`
}

// OutboundMessage is a frame sent to the client; Type is delta, reply, chart
// or error.
type OutboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Reply     string `json:"reply,omitempty"`
	Chart     string `json:"chart,omitempty"`
	Download  string `json:"download,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleWebSocket 处理WebSocket连接，逐条处理客户端发来的聊天请求
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go h.pingLoop(ctx, conn)

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Info("websocket read error", zap.Error(err))
			}
			return
		}

		if err := h.handleMessage(ctx, conn, msg); err != nil {
			h.log.Debug("websocket write failed", zap.Error(err))
			return
		}
		// a turn can outlast the read deadline; pongs are only seen while reading
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	}
}

// handleMessage runs one request; the returned error is a write failure.
func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *websocket.Conn, msg InboundMessage) error {
	if err := utils.Validate(&msg); err != nil {
		return h.write(conn, OutboundMessage{Type: "error", Error: apperr.PublicMessage(err)})
	}

	var writeErr error
	reply, err := h.dispatcher.HandleStream(ctx, command.Request{
		SessionID: msg.SessionID,
		Message:   msg.Message,
		Format:    msg.Format,
	}, func(delta string) {
		if writeErr == nil {
			writeErr = h.write(conn, OutboundMessage{Type: "delta", SessionID: msg.SessionID, Content: delta})
		}
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		if apperr.StatusCode(err) >= http.StatusInternalServerError {
			h.log.Error("websocket request failed", zap.String("session", msg.SessionID), zap.Error(err))
		}
		return h.write(conn, OutboundMessage{Type: "error", SessionID: msg.SessionID, Error: apperr.PublicMessage(err)})
	}

	if reply.Chart != "" {
		return h.write(conn, OutboundMessage{Type: "chart", SessionID: msg.SessionID, Chart: reply.Chart})
	}
	return h.write(conn, OutboundMessage{
		Type:      "reply",
		SessionID: msg.SessionID,
		Reply:     reply.Text,
		Download:  reply.Download,
	})
}

func (h *WebSocketHandler) write(conn *websocket.Conn, msg OutboundMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}

// pingLoop uses WriteControl, which may run concurrently with WriteJSON.
func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
