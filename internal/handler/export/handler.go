package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	exportservice "github.com/zhouzirui/synthesis-talk/backend/internal/service/export"
	"github.com/zhouzirui/synthesis-talk/backend/pkg/utils"
)

// Exporter writes transcripts and resolves previously written files.
type Exporter interface {
	Export(ctx context.Context, sessionID, format string) (exportservice.Artifact, error)
	Resolve(name string) (exportservice.Artifact, bool)
}

// Handler 会话导出处理器
type Handler struct {
	exporter Exporter
	log      *zap.Logger
}

// New 创建导出处理器
func New(exporter Exporter, log *zap.Logger) *Handler {
	return &Handler{exporter: exporter, log: log}
}

// RegisterRoutes 注册导出与下载路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/export", h.handleExport)
	r.Get("/exports/{file}", h.handleDownload)
}

// Request 是 POST /export 的请求体，format 缺省为 txt。
type Request struct {
	SessionID string `json:"session_id" validate:"required,max=256"`
	Format    string `json:"format" validate:"omitempty,oneof=txt text pdf"`
}

// handleExport 导出会话记录并直接返回文件
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var payload Request
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondAppError(w, h.log, err)
		return
	}

	artifact, err := h.exporter.Export(r.Context(), payload.SessionID, payload.Format)
	if err != nil {
		if errors.Is(err, exportservice.ErrUnsupportedFormat) {
			err = apperr.E(apperr.KindValidation, "export", err)
		} else if apperr.KindOf(err) == apperr.KindUnknown {
			err = apperr.E(apperr.KindResource, "export", err)
		}
		utils.RespondAppError(w, h.log, err)
		return
	}

	serveArtifact(w, r, artifact)
}

// handleDownload 下载已导出的文件，仅接受导出服务生成的文件名
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	artifact, ok := h.exporter.Resolve(chi.URLParam(r, "file"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "file not found")
		return
	}
	serveArtifact(w, r, artifact)
}

func serveArtifact(w http.ResponseWriter, r *http.Request, artifact exportservice.Artifact) {
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	http.ServeFile(w, r, artifact.Path)
}
