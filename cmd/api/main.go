package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/synthesis-talk/backend/internal/config"
	"github.com/zhouzirui/synthesis-talk/backend/internal/handler"
	"github.com/zhouzirui/synthesis-talk/backend/internal/pkg/logger"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/ai"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/chart"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/chat"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/command"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/document"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/export"
	"github.com/zhouzirui/synthesis-talk/backend/internal/service/search"
	"github.com/zhouzirui/synthesis-talk/backend/internal/store/session"
	"github.com/zhouzirui/synthesis-talk/backend/internal/tracer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zlog := logger.New(cfg.Log.FilePath, cfg.Log.Production)
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	if envErr != nil {
		zlog.Info("no .env file loaded, using system environment variables only", zap.Error(envErr))
	}

	shutdownTracer := tracer.Init(ctx, cfg.Tracing, zlog)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			zlog.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	store, err := newSessionStore(ctx, cfg.Session, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize session store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	sessions := chat.NewService(store, cfg.Session.SystemPrompt, zlog)

	completer := newCompleter(ctx, cfg.AI, zlog)

	searchSvc := search.NewFromConfig(cfg.Search, zlog)
	if searchSvc.Enabled() {
		zlog.Info("web search enabled", zap.String("provider", cfg.Search.Provider))
	} else {
		zlog.Info("web search disabled")
	}

	documents, err := document.NewService(cfg.Storage.UploadDir, cfg.Storage.UploadMaxBytes, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize upload storage", zap.Error(err))
	}

	exporter, err := export.NewExporter(cfg.Storage.ExportDir, sessions, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize export storage", zap.Error(err))
	}

	dispatcher, err := command.NewDispatcher(command.Dependencies{
		Sessions:  sessions,
		Completer: completer,
		Search:    searchSvc,
		Charts:    chart.NewRenderer(),
		Exporter:  exporter,
		Logger:    zlog,
	})
	if err != nil {
		zlog.Fatal("failed to initialize dispatcher", zap.Error(err))
	}

	router := handler.NewRouter(handler.Deps{
		Dispatcher:     dispatcher,
		Sessions:       sessions,
		Documents:      documents,
		Exporter:       exporter,
		UploadMaxBytes: cfg.Storage.UploadMaxBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         zlog,
	})

	startServer(ctx, cfg.Server, router, zlog)
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig, zlog *zap.Logger) (session.Store, error) {
	opts := []session.StoreOption{
		session.WithTTL(cfg.TTL),
		session.WithCleanupInterval(cfg.CleanupInterval),
	}

	storeType := session.StoreType(cfg.Driver)
	if storeType == session.StoreTypeRedis {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(redisOpts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		opts = append(opts, session.WithRedisClient(client))
	}

	store, err := session.NewStore(storeType, opts...)
	if err != nil {
		return nil, err
	}
	zlog.Info("session store ready", zap.String("driver", cfg.Driver), zap.Duration("ttl", cfg.TTL))
	return store, nil
}

func newCompleter(ctx context.Context, cfg config.AIConfig, zlog *zap.Logger) command.Completer {
	if !cfg.Enabled() {
		zlog.Warn("Ark 凭证未配置，聊天与图表功能不可用")
		return ai.Unavailable{}
	}

	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		zlog.Error("failed to create chat model, continuing without completions", zap.Error(err))
		return ai.Unavailable{}
	}

	svc, err := ai.NewService(ctx, chatModel, ai.Options{
		Streaming:      cfg.StreamResponse,
		SelfReflection: cfg.SelfReflection,
	}, zlog)
	if err != nil {
		zlog.Error("failed to initialize AI service, continuing without completions", zap.Error(err))
		return ai.Unavailable{}
	}

	zlog.Info("AI service initialized",
		zap.String("model", cfg.Model),
		zap.Bool("streaming", cfg.StreamResponse),
		zap.Bool("self_reflection", cfg.SelfReflection),
	)
	return svc
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zlog *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zlog.Info("SynthesisTalk backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
	zlog.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
