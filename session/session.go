package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"commentdedup/batch"
	"commentdedup/dedup"
	"commentdedup/importer"
	"commentdedup/internal/config"
	"commentdedup/internal/infrastructure/monitoring"
	"commentdedup/report"
)

// Status состояние сессии
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"   // часть порций не обработана
	StatusCancelled Status = "cancelled" // отменена, результат частичный
)

// ErrAlreadyStarted сессию нельзя запустить повторно: источник не перечитывается
var ErrAlreadyStarted = errors.New("session already started")

// Options дополнительные параметры сессии
type Options struct {
	Logger *slog.Logger
	// MemorySampler источник измерений памяти; nil - статистика рантайма
	MemorySampler monitoring.MemorySampler
	// ProgressLogInterval частота записи прогресса в лог
	ProgressLogInterval time.Duration
	// TopN сколько самых частых текстов попадает в отчет
	TopN int
	// Spill хранить записи во временном файле SQLite в SpillDir, а не в памяти.
	// Срезы Result.Records и Result.Unprocessed тогда не заполняются,
	// записи читаются из Result.Stores.
	Spill    bool
	SpillDir string
}

// Result результат сессии
type Result struct {
	// Records итоговые записи в исходном порядке
	Records []dedup.Record
	// Unprocessed записи порций, не обработанных после всех попыток
	Unprocessed []dedup.Record
	// Stores хранилища записей; действительны до Session.Close
	Stores  *report.Stores
	Columns []string
	Report  *report.Report
	Partial bool
}

// Session одна сессия обработки: владеет общим состоянием дедупликации,
// агрегатором и трекером прогресса
type Session struct {
	ID string

	cfg      config.Config
	pipeline *pipeline
	agg      *report.Aggregator
	stores   *report.Stores
	spill    bool
	progress *report.ProgressTracker
	logger   *slog.Logger

	mu         sync.Mutex
	status     Status
	startedAt  time.Time
	finishedAt time.Time
	cancel    context.CancelFunc
	cancelled bool
	result    *Result
}

// New проверяет конфигурацию и создает сессию. Ошибки конфигурации
// обнаруживаются здесь, до чтения данных.
func New(cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, dedup.NewConfigurationError("config is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	p, err := buildPipeline(cfg, opts.MemorySampler, logger)
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}

	stores := report.NewMemoryStores()
	if opts.Spill {
		if stores, err = report.OpenSpillStores(opts.SpillDir); err != nil {
			return nil, dedup.NewConfigurationError("failed to open spill storage", err).
				WithDetail("spill_dir", opts.SpillDir)
		}
	}

	return &Session{
		ID:       id,
		cfg:      *cfg,
		pipeline: p,
		agg: report.NewAggregator(report.AggregatorOptions{
			TopN:           opts.TopN,
			Strategy:       strategy,
			TimestampField: cfg.TimestampField,
			Stores:         stores,
		}),
		stores:   stores,
		spill:    opts.Spill,
		progress: report.NewProgressTracker(logger, opts.ProgressLogInterval),
		logger:   logger,
		status:   StatusPending,
	}, nil
}

// Run читает источник порциями и обрабатывает его. Источник закрывает
// вызывающая сторона. Ошибки порций не прерывают обработку: они попадают
// в отчет, а результат помечается частичным. Ошибка возвращается только
// для проблем конфигурации (например, нет текстовой колонки).
func (s *Session) Run(ctx context.Context, source importer.Source) (*Result, error) {
	reader, err := importer.NewChunkReader(source, importer.ChunkReaderOptions{
		TextField: s.cfg.TextField,
		Logger:    s.logger,
	})
	if err != nil {
		return nil, err
	}
	return s.RunReader(ctx, reader, reader.Columns())
}

// RunReader обрабатывает уже подготовленный поток порций
func (s *Session) RunReader(ctx context.Context, reader batch.Reader, columns []string) (*Result, error) {
	s.mu.Lock()
	if s.status != StatusPending {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancel = cancel
	if s.cancelled {
		cancel()
	}
	s.status = StatusRunning
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("[Session] started",
		"strategy", s.cfg.ResolutionStrategy,
		"threshold", s.cfg.SimilarityThreshold,
		"workers", s.cfg.WorkerCount,
		"initial_batch_size", s.cfg.InitialBatchSize,
		"fuzzy", s.cfg.EnableFuzzyMatching)

	summary := s.pipeline.scheduler.Run(runCtx, reader, batch.SinkFuncs{
		Outcome:  s.agg.HandleOutcome,
		Progress: s.progress.HandleProgress,
	})

	rep := s.agg.Report(report.RunInfo{
		SessionID:  s.ID,
		StartedAt:  s.startedAt,
		Summary:    summary,
		MemoryPeak: s.pipeline.monitor.Stats().PeakBytes,
		State:      s.pipeline.state.Stats(),
	})
	result := &Result{
		Stores:  s.stores,
		Columns: columns,
		Report:  rep,
		Partial: rep.Partial,
	}
	if !s.spill {
		// Хранилища в памяти не возвращают ошибок
		result.Records, _ = s.agg.Records()
		result.Unprocessed, _ = s.agg.Unprocessed()
	}

	status := StatusCompleted
	switch {
	case rep.Cancelled:
		status = StatusCancelled
	case rep.Partial:
		status = StatusPartial
	}

	s.mu.Lock()
	s.status = status
	s.result = result
	s.finishedAt = time.Now()
	s.mu.Unlock()
	// Подписчики прогресса видят закрытие канала уже после смены статуса
	s.progress.Close()

	s.logger.Info("[Session] finished",
		"status", status,
		"input", rep.TotalInput,
		"output", rep.TotalOutput,
		"removed", rep.DuplicatesRemoved,
		"unprocessed", rep.Unprocessed,
		"errors", len(rep.Errors),
		"elapsed", rep.Performance.Elapsed)
	return result, nil
}

// Cancel останавливает чтение новых порций. Уже выданные порции
// обрабатываются до конца, результат остается доступным.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Status текущее состояние
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result результат, если сессия завершена
func (s *Session) Result() (*Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.result != nil
}

// Progress трекер прогресса сессии
func (s *Session) Progress() *report.ProgressTracker {
	return s.progress
}

// Config конфигурация сессии
func (s *Session) Config() config.Config {
	return s.cfg
}

// StartedAt время запуска
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// FinishedAt время завершения; нулевое, пока сессия не завершена
func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// Close освобождает хранилища записей. После Close записи результата
// из Result.Stores недоступны.
func (s *Session) Close() error {
	return s.stores.Close()
}

// Deduplicate обрабатывает тексты в памяти одной сессией
func Deduplicate(ctx context.Context, cfg *config.Config, texts []string, opts Options) (*Result, error) {
	s, err := New(cfg, opts)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(texts))
	for i, t := range texts {
		rows[i] = []string{t}
	}
	return s.Run(ctx, importer.NewMemorySource([]string{cfg.TextField}, rows))
}
