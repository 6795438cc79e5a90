package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/apperr"
	docservice "github.com/zhouzirui/synthesis-talk/backend/internal/service/document"
	"github.com/zhouzirui/synthesis-talk/backend/pkg/utils"
)

// Ingester stores an upload and returns its text.
type Ingester interface {
	Ingest(originalName string, r io.Reader) (string, error)
}

// PendingSetter attaches extracted text to a session.
type PendingSetter interface {
	SetPendingDocument(ctx context.Context, sessionID, text string) error
}

// Handler 文档上传处理器
type Handler struct {
	documents Ingester
	sessions  PendingSetter
	maxBytes  int64
	log       *zap.Logger
}

// New 创建上传处理器，maxBytes 限制单个文件大小
func New(documents Ingester, sessions PendingSetter, maxBytes int64, log *zap.Logger) *Handler {
	return &Handler{documents: documents, sessions: sessions, maxBytes: maxBytes, log: log}
}

// RegisterRoutes 注册上传路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.handleUpload)
}

type uploadForm struct {
	SessionID string `json:"session_id" validate:"required,max=256"`
}

// UploadResponse 上传成功的响应体
type UploadResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// handleUpload 保存上传文件，提取全文作为会话的待注入文档
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	form := uploadForm{SessionID: strings.TrimSpace(r.FormValue("session_id"))}
	if err := utils.Validate(&form); err != nil {
		utils.RespondAppError(w, h.log, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	text, err := h.documents.Ingest(header.Filename, file)
	if err != nil {
		utils.RespondAppError(w, h.log, classifyIngestError(err))
		return
	}

	if err := h.sessions.SetPendingDocument(r.Context(), form.SessionID, text); err != nil {
		utils.RespondAppError(w, h.log, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, UploadResponse{
		Message:   "File uploaded and processed",
		SessionID: form.SessionID,
	})
}

func classifyIngestError(err error) error {
	switch {
	case errors.Is(err, docservice.ErrUnsupportedType):
		return apperr.WithMessage(apperr.KindUnsupported, "upload", "unsupported file type: only .pdf and .txt are accepted", err)
	case errors.Is(err, docservice.ErrExtract):
		return apperr.WithMessage(apperr.KindUnprocessable, "upload", "could not extract text from the document", err)
	default:
		return apperr.E(apperr.KindResource, "upload", fmt.Errorf("store upload: %w", err))
	}
}
