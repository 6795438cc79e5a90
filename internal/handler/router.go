package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/handler/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/handler/document"
	"github.com/zhouzirui/synthesis-talk/backend/internal/handler/export"
	"github.com/zhouzirui/synthesis-talk/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/synthesis-talk/backend/internal/middleware"
	chatService "github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/command"
	docService "github.com/zhouzirui/synthesis-talk/backend/internal/service/document"
	exportService "github.com/zhouzirui/synthesis-talk/backend/internal/service/export"
)

// APIVersion is the response contract version announced in X-API-Version.
const APIVersion = "1"

// Deps are the services the HTTP layer is wired to.
type Deps struct {
	Dispatcher     *command.Dispatcher
	Sessions       *chatService.Service
	Documents      *docService.Service
	Exporter       *exportService.Exporter
	UploadMaxBytes int64
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))
	r.Use(middlewarePkg.APIVersion(APIVersion))

	chat.New(deps.Dispatcher, log).RegisterRoutes(r)
	stream.New(deps.Dispatcher, log).RegisterRoutes(r)
	stream.NewWebSocketHandler(deps.Dispatcher, deps.AllowedOrigins, log).RegisterRoutes(r)
	document.New(deps.Documents, deps.Sessions, deps.UploadMaxBytes, log).RegisterRoutes(r)
	export.New(deps.Exporter, log).RegisterRoutes(r)

	return r
}
