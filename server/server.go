package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"commentdedup/docs"
	"commentdedup/importer"
	"commentdedup/internal/config"
	"commentdedup/internal/infrastructure/monitoring"
	"commentdedup/server/middleware"
	"commentdedup/session"
)

// Config параметры HTTP API
type Config struct {
	Addr      string
	RateLimit float64 // запросов в секунду, 0 - без ограничения
	UploadDir string  // каталог для загруженных файлов, пусто - системный temp

	// Завершенные сессии удаляются из реестра старше SessionTTL
	// и сверх MaxSessions; 0 - без ограничения
	SessionTTL  time.Duration
	MaxSessions int

	// Dedup конфигурация, от которой отталкивается каждая новая сессия
	Dedup         *config.Config
	MemorySampler monitoring.MemorySampler
	Logger        *slog.Logger
}

// Server HTTP API для запуска сессий и наблюдения за ними
type Server struct {
	config     Config
	registry   *SessionRegistry
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger

	// baseCtx родительский контекст всех сессий; отменяется при остановке
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New создает сервер и регистрирует маршруты
func New(cfg Config) (*Server, error) {
	if cfg.Dedup == nil {
		cfg.Dedup = config.Default()
	}
	if err := cfg.Dedup.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   cfg,
		registry: NewSessionRegistry(RegistryOptions{
			TTL:         cfg.SessionTTL,
			MaxSessions: cfg.MaxSessions,
			Logger:      cfg.Logger,
		}),
		logger:   cfg.Logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler возвращает http.Handler сервера
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry реестр сессий
func (s *Server) Registry() *SessionRegistry {
	return s.registry
}

func (s *Server) buildRouter() *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.GinRecoveryMiddleware(s.logger))
	router.Use(middleware.GinRequestIDMiddleware())
	router.Use(middleware.GinCORSMiddleware())
	router.Use(middleware.GinGzipMiddleware())
	router.Use(middleware.GinLoggerMiddleware(s.logger))

	router.GET("/health", s.handleHealth)

	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	api := router.Group("/api")
	api.Use(middleware.GinRateLimitMiddleware(s.config.RateLimit))
	{
		sessions := api.Group("/sessions")
		sessions.POST("", s.handleCreateSession)
		sessions.GET("", s.handleListSessions)
		sessions.GET("/:id", s.handleGetSession)
		sessions.DELETE("/:id", s.handleCancelSession)
		sessions.GET("/:id/records", s.handleGetRecords)
		sessions.GET("/:id/report", s.handleGetReport)
		sessions.GET("/:id/progress", s.handleProgressStream)
	}

	return router
}

// launch запускает сессию в фоне. Источник закрывается после обработки,
// cleanup удаляет временные файлы загрузки.
func (s *Server) launch(sess *session.Session, reader *importer.ChunkReader, cleanup func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cleanup()
		defer func() {
			if err := reader.Close(); err != nil {
				s.logger.Warn("[Server] failed to close source", "session_id", sess.ID, "error", err)
			}
		}()

		if _, err := sess.RunReader(s.baseCtx, reader, reader.Columns()); err != nil {
			s.logger.Error("[Server] session failed", "session_id", sess.ID, "error", err)
		}
	}()
}

// sessionSweepInterval как часто реестр проверяет срок хранения сессий
const sessionSweepInterval = time.Minute

// Start запускает HTTP сервер и блокируется до его остановки
func (s *Server) Start() error {
	// WriteTimeout не задан: поток прогресса живет, пока идет сессия
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if ttl := s.config.SessionTTL; ttl > 0 {
		go s.registry.Run(s.baseCtx.Done(), min(ttl, sessionSweepInterval))
	}

	s.logger.Info("[Server] starting HTTP server", "addr", s.config.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server on %s: %w", s.config.Addr, err)
	}
	return nil
}

// Shutdown отменяет сессии, останавливает сервер и ждет завершения фоновых сессий
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("[Server] initiating graceful shutdown")

	s.registry.CancelAll()
	s.cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("sessions did not finish: %w", ctx.Err())
	}

	s.logger.Info("[Server] graceful shutdown completed")
	return nil
}
