package stream

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/command"
	"github.com/zhouzirui/synthesis-talk/backend/pkg/utils"
)

// Dispatcher handles a chat request while forwarding completion deltas.
type Dispatcher interface {
	HandleStream(ctx context.Context, req command.Request, onDelta func(string)) (command.Reply, error)
}

// Handler manages streaming chat replies via Server-Sent Events
type Handler struct {
	dispatcher Dispatcher
	log        *zap.Logger
}

// New creates a new stream handler
func New(dispatcher Dispatcher, log *zap.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, log: log}
}

// RegisterRoutes 注册流式聊天路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chat/stream", h.handleStream)
}

// Event payloads.
type (
	StartEvent struct {
		SessionID string `json:"session_id"`
	}
	DeltaEvent struct {
		Content string `json:"content"`
	}
	ErrorEvent struct {
		Error string `json:"error"`
	}
	EndEvent struct {
		SessionID string `json:"session_id"`
	}
)

type streamQuery struct {
	SessionID string `json:"session_id" validate:"required,max=256"`
	Message   string `json:"message" validate:"max=32000"`
	Format    string `json:"format" validate:"omitempty,max=32"`
}

// handleStream 以 SSE 推送回复：start、若干 delta、message 或 chart、end。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := streamQuery{
		SessionID: q.Get("session_id"),
		Message:   q.Get("message"),
		Format:    q.Get("format"),
	}
	if err := utils.Validate(&query); err != nil {
		utils.RespondAppError(w, h.log, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(event string, data any) {
		if err := utils.SendSSEEvent(w, flusher, event, data); err != nil {
			h.log.Debug("sse write failed", zap.String("event", event), zap.Error(err))
		}
	}

	send("start", StartEvent{SessionID: query.SessionID})

	reply, err := h.dispatcher.HandleStream(r.Context(), command.Request{
		SessionID: query.SessionID,
		Message:   query.Message,
		Format:    query.Format,
	}, func(delta string) {
		send("delta", DeltaEvent{Content: delta})
	})
	if err != nil {
		if apperr.StatusCode(err) >= http.StatusInternalServerError {
			h.log.Error("stream request failed", zap.String("session", query.SessionID), zap.Error(err))
		}
		send("error", ErrorEvent{Error: apperr.PublicMessage(err)})
		return
	}

	if reply.Chart != "" {
		send("chart", reply)
	} else {
		send("message", reply)
	}
	send("end", EndEvent{SessionID: query.SessionID})
}
