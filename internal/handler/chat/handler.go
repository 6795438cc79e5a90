package chat

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/service/command"
	"github.com/zhouzirui/synthesis-talk/backend/pkg/utils"
)

// Dispatcher 处理一条聊天消息并给出完整回复。
type Dispatcher interface {
	Handle(ctx context.Context, req command.Request) (command.Reply, error)
}

// Handler 聊天服务的HTTP处理器
type Handler struct {
	dispatcher Dispatcher
	log        *zap.Logger
}

// New 创建聊天处理器
func New(dispatcher Dispatcher, log *zap.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, log: log}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.handleRoot)
	r.Post("/chat", h.handleChat)
}

// Request 是 POST /chat 的请求体。
type Request struct {
	Message   string `json:"message" validate:"max=32000"`
	SessionID string `json:"session_id" validate:"required,max=256"`
	Format    string `json:"format" validate:"omitempty,max=32"`
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "SynthesisTalk backend is running!"})
}

// handleChat 分发聊天消息：笔记、引用、图表、导出或普通对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload Request
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondAppError(w, h.log, err)
		return
	}

	reply, err := h.dispatcher.Handle(r.Context(), command.Request{
		SessionID: payload.SessionID,
		Message:   payload.Message,
		Format:    payload.Format,
	})
	if err != nil {
		utils.RespondAppError(w, h.log, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, reply)
}
