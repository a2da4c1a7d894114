package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"commentdedup/batch"
	"commentdedup/importer"
	"commentdedup/internal/config"
	"commentdedup/report"
	apperrors "commentdedup/server/errors"
	"commentdedup/server/middleware"
	"commentdedup/session"
)

// SessionOverrides параметры, которые запрос может переопределить
type SessionOverrides struct {
	Strategy  string   `json:"strategy,omitempty" form:"strategy" example:"keep_best"`
	Threshold *float64 `json:"threshold,omitempty" form:"threshold" example:"0.9"`
	Fuzzy     *bool    `json:"fuzzy,omitempty" form:"fuzzy"`
	TextField string   `json:"text_field,omitempty" form:"text_field" example:"comment"`
}

// CreateSessionRequest тексты для обработки в памяти
type CreateSessionRequest struct {
	Texts []string `json:"texts" example:"Excelente servicio,Muy malo"`
	SessionOverrides
}

// SessionResponse состояние сессии
type SessionResponse struct {
	SessionID string               `json:"session_id"`
	Status    session.Status       `json:"status"`
	StartedAt *time.Time           `json:"started_at,omitempty"`
	Progress  *batch.ProgressEvent `json:"progress,omitempty"`
	Report    *report.Report       `json:"report,omitempty"`
}

func sessionResponse(sess *session.Session, withReport bool) SessionResponse {
	resp := SessionResponse{SessionID: sess.ID, Status: sess.Status()}
	if started := sess.StartedAt(); !started.IsZero() {
		resp.StartedAt = &started
	}
	if ev, ok := sess.Progress().Last(); ok {
		resp.Progress = &ev
	}
	if withReport {
		if result, ok := sess.Result(); ok {
			resp.Report = result.Report
		}
	}
	return resp
}

// apply переносит переопределения в копию конфигурации
func (o SessionOverrides) apply(cfg *config.Config) {
	if o.Strategy != "" {
		cfg.ResolutionStrategy = o.Strategy
	}
	if o.Threshold != nil {
		cfg.SimilarityThreshold = *o.Threshold
	}
	if o.Fuzzy != nil {
		cfg.EnableFuzzyMatching = *o.Fuzzy
	}
	if o.TextField != "" {
		cfg.TextField = o.TextField
	}
}

var uploadExtensions = map[string]bool{".csv": true, ".tsv": true, ".txt": true, ".xlsx": true}

// handleCreateSession запускает новую сессию
// @Summary Запуск сессии дедупликации
// @Description Принимает JSON с массивом текстов или multipart-файл CSV/XLSX. Обработка идет в фоне.
// @Tags sessions
// @Accept json,mpfd
// @Produce json
// @Param request body CreateSessionRequest false "Тексты и параметры"
// @Param file formData file false "CSV/TSV/XLSX файл с колонкой текста"
// @Success 202 {object} SessionResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 429 {object} middleware.ErrorResponse
// @Router /sessions [post]
func (s *Server) handleCreateSession(c *gin.Context) {
	cfg := *s.config.Dedup

	var (
		source  importer.Source
		cleanup = func() {}
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		var overrides SessionOverrides
		if err := c.ShouldBind(&overrides); err != nil {
			middleware.AbortWithError(c, apperrors.NewValidationError("invalid form fields", err))
			return
		}
		overrides.apply(&cfg)

		src, dir, err := s.openUpload(c)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		source = src
		cleanup = func() { _ = os.RemoveAll(dir) }
	} else {
		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.AbortWithError(c, apperrors.NewValidationError("invalid request body", err))
			return
		}
		if len(req.Texts) == 0 {
			middleware.AbortWithError(c, apperrors.NewValidationError("texts must not be empty", nil))
			return
		}
		req.SessionOverrides.apply(&cfg)

		rows := make([][]string, len(req.Texts))
		for i, t := range req.Texts {
			rows[i] = []string{t}
		}
		source = importer.NewMemorySource([]string{cfg.TextField}, rows)
	}

	sess, reader, err := s.prepareSession(&cfg, source)
	if err != nil {
		_ = source.Close()
		cleanup()
		middleware.AbortWithError(c, err)
		return
	}

	s.registry.Add(sess)
	s.launch(sess, reader, cleanup)

	c.JSON(http.StatusAccepted, sessionResponse(sess, false))
}

// prepareSession проверяет конфигурацию и колонку текста до запуска,
// чтобы ошибка вернулась клиенту, а не осталась в логах
func (s *Server) prepareSession(cfg *config.Config, source importer.Source) (*session.Session, *importer.ChunkReader, error) {
	sess, err := session.New(cfg, session.Options{
		Logger:        s.logger,
		MemorySampler: s.config.MemorySampler,
	})
	if err != nil {
		return nil, nil, err
	}
	reader, err := importer.NewChunkReader(source, importer.ChunkReaderOptions{
		TextField: cfg.TextField,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, reader, nil
}

// openUpload сохраняет загруженный файл во временный каталог и открывает его
func (s *Server) openUpload(c *gin.Context) (importer.Source, string, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, "", apperrors.NewValidationError("file is required", err)
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !uploadExtensions[ext] {
		return nil, "", apperrors.NewValidationError(fmt.Sprintf("unsupported file type %q", ext), nil)
	}

	dir, err := os.MkdirTemp(s.config.UploadDir, "upload-*")
	if err != nil {
		return nil, "", apperrors.NewInternalError("failed to create upload dir", err)
	}
	path := filepath.Join(dir, "source"+ext)
	if err := c.SaveUploadedFile(file, path); err != nil {
		_ = os.RemoveAll(dir)
		return nil, "", apperrors.NewInternalError("failed to save upload", err)
	}

	source, err := importer.Open(path, importer.OpenOptions{Encoding: c.PostForm("encoding")})
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, "", apperrors.NewValidationError("failed to open uploaded file", err)
	}
	return source, dir, nil
}

// handleListSessions список сессий
// @Summary Список сессий
// @Tags sessions
// @Produce json
// @Success 200 {array} SessionResponse
// @Router /sessions [get]
func (s *Server) handleListSessions(c *gin.Context) {
	list := s.registry.List()
	resp := make([]SessionResponse, len(list))
	for i, sess := range list {
		resp[i] = sessionResponse(sess, false)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) lookup(c *gin.Context) (*session.Session, bool) {
	id := c.Param("id")
	sess, ok := s.registry.Get(id)
	if !ok {
		middleware.AbortWithError(c, apperrors.NewNotFoundError(fmt.Sprintf("session %s not found", id), nil))
		return nil, false
	}
	return sess, true
}

func (s *Server) finishedResult(c *gin.Context) (*session.Session, *session.Result, bool) {
	sess, ok := s.lookup(c)
	if !ok {
		return nil, nil, false
	}
	result, ok := sess.Result()
	if !ok {
		middleware.AbortWithError(c, apperrors.NewConflictError(
			fmt.Sprintf("session %s is %s", sess.ID, sess.Status()), nil))
		return nil, nil, false
	}
	return sess, result, true
}

// handleGetSession состояние и отчет сессии
// @Summary Состояние сессии
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /sessions/{id} [get]
func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse(sess, true))
}

// handleCancelSession отменяет сессию
// @Summary Отмена сессии
// @Description Новые порции не читаются, уже выданные дорабатываются. Результат остается доступным.
// @Tags sessions
// @Produce json
// @Param id path string true "ID сессии"
// @Success 202 {object} SessionResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /sessions/{id} [delete]
func (s *Server) handleCancelSession(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	sess.Cancel()
	c.JSON(http.StatusAccepted, sessionResponse(sess, false))
}

var recordContentTypes = map[report.ExportFormat]string{
	report.FormatJSON:  "application/json",
	report.FormatCSV:   "text/csv; charset=utf-8",
	report.FormatExcel: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// handleGetRecords выгрузка очищенных записей
// @Summary Очищенные записи
// @Tags sessions
// @Produce json,text/csv,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "ID сессии"
// @Param format query string false "json, csv или excel" default(json)
// @Param unprocessed query bool false "выгрузить записи необработанных порций"
// @Success 200 {file} file
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /sessions/{id}/records [get]
func (s *Server) handleGetRecords(c *gin.Context) {
	sess, result, ok := s.finishedResult(c)
	if !ok {
		return
	}

	format := report.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(report.FormatJSON))))
	contentType, supported := recordContentTypes[format]
	if !supported {
		middleware.AbortWithError(c, apperrors.NewValidationError(fmt.Sprintf("unsupported format %q", format), nil))
		return
	}

	store := result.Stores.Records
	if c.Query("unprocessed") == "true" {
		store = result.Stores.Unprocessed
	}

	c.Header("Content-Type", contentType)
	if format == report.FormatExcel {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, sess.ID))
	}
	c.Status(http.StatusOK)

	exporter := report.NewExporter(result.Columns, sess.Config().TextField)
	if err := exporter.WriteStore(c.Writer, format, store); err != nil {
		s.logger.Error("[Server] failed to write records", "session_id", sess.ID, "error", err)
		_ = c.Error(err)
	}
}

// handleGetReport отчет сессии
// @Summary Отчет сессии
// @Tags sessions
// @Produce json,application/yaml
// @Param id path string true "ID сессии"
// @Param format query string false "json или yaml" default(json)
// @Success 200 {object} report.Report
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /sessions/{id}/report [get]
func (s *Server) handleGetReport(c *gin.Context) {
	sess, result, ok := s.finishedResult(c)
	if !ok {
		return
	}

	switch format := report.ExportFormat(strings.ToLower(c.DefaultQuery("format", "json"))); format {
	case report.FormatJSON:
		c.JSON(http.StatusOK, result.Report)
	case report.FormatYAML:
		c.Header("Content-Type", "application/yaml")
		c.Status(http.StatusOK)
		if err := report.WriteReport(c.Writer, format, result.Report); err != nil {
			s.logger.Error("[Server] failed to write report", "session_id", sess.ID, "error", err)
			_ = c.Error(err)
		}
	default:
		middleware.AbortWithError(c, apperrors.NewValidationError(fmt.Sprintf("unsupported format %q", format), nil))
	}
}

// handleProgressStream поток событий прогресса (SSE).
// Каждое событие progress самодостаточно: клиент может подключиться в любой момент.
// По завершении сессии отправляется событие done.
// @Summary Поток прогресса
// @Tags sessions
// @Produce text/event-stream
// @Param id path string true "ID сессии"
// @Success 200 {object} batch.ProgressEvent
// @Failure 404 {object} middleware.ErrorResponse
// @Router /sessions/{id}/progress [get]
func (s *Server) handleProgressStream(c *gin.Context) {
	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	events, unsubscribe := sess.Progress().Subscribe(32)
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				c.SSEvent("done", gin.H{"session_id": sess.ID, "status": sess.Status()})
				return false
			}
			c.SSEvent("progress", ev)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// handleHealth проверка живости
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": len(s.registry.List()),
		"time":     time.Now().UTC(),
	})
}
