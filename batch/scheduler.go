package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"commentdedup/dedup"
	"commentdedup/internal/infrastructure/monitoring"
)

const (
	// MaxRecoveryAttempts предельное число повторных попыток для порции
	MaxRecoveryAttempts = 3
	// DefaultInitialBatchSize размер первой порции по умолчанию
	DefaultInitialBatchSize = 100

	// recoveryDivisor во сколько раз уменьшается размер части на каждой попытке
	recoveryDivisor = 4
)

// DefaultWorkers размер пула по умолчанию: min(4, число ядер)
func DefaultWorkers() int {
	return min(4, runtime.NumCPU())
}

// Reader источник порций (importer.ChunkReader)
type Reader interface {
	Next(ctx context.Context, size int) (dedup.Batch, error)
	TotalHint() int64
}

// Processor обработчик порции (dedup.Resolver)
type Processor interface {
	Resolve(ctx context.Context, batch dedup.Batch, opts dedup.ResolveOptions) (*dedup.BatchResult, error)
}

// ProgressEvent событие прогресса. Каждое событие самодостаточно.
type ProgressEvent struct {
	BatchID         int           `json:"batch_id"`
	PercentComplete float64       `json:"percent_complete"`
	ItemsPerSecond  float64       `json:"items_per_second"`
	ETA             time.Duration `json:"eta"`
	Processed       int64         `json:"processed"`
	Total           int64         `json:"total"` // -1, если размер источника неизвестен
	Timestamp       time.Time     `json:"timestamp"`
}

// Sink получает итоги порций и события прогресса.
// Методы вызываются последовательно из одной горутины.
type Sink interface {
	HandleOutcome(outcome *Outcome)
	HandleProgress(event ProgressEvent)
}

// SinkFuncs адаптер функций к Sink, nil-функции пропускаются
type SinkFuncs struct {
	Outcome  func(outcome *Outcome)
	Progress func(event ProgressEvent)
}

// HandleOutcome реализует Sink
func (f SinkFuncs) HandleOutcome(outcome *Outcome) {
	if f.Outcome != nil {
		f.Outcome(outcome)
	}
}

// HandleProgress реализует Sink
func (f SinkFuncs) HandleProgress(event ProgressEvent) {
	if f.Progress != nil {
		f.Progress(event)
	}
}

// Config параметры планировщика
type Config struct {
	Workers             int           // 0 - DefaultWorkers()
	InitialBatchSize    int           // 0 - DefaultInitialBatchSize
	BatchTimeout        time.Duration // 0 - без ограничения
	MaxRecoveryAttempts int           // 0..MaxRecoveryAttempts
	Fuzzy               bool

	// Monitor советует размер следующей порции; nil - размер постоянный
	Monitor *monitoring.MemoryMonitor
	Logger  *slog.Logger
}

// Summary итог работы планировщика
type Summary struct {
	Batches        int           `json:"batches"`
	BatchSizes     []int         `json:"batch_sizes"`
	Cancelled      bool          `json:"cancelled"`
	Elapsed        time.Duration `json:"elapsed"`
	PressureErrors []error       `json:"-"`
	// ReadErr фатальная ошибка источника, после которой чтение прекращено
	ReadErr error `json:"-"`
}

// Scheduler раздает порции ограниченному пулу обработчиков
// и восстанавливает порции после сбоев
type Scheduler struct {
	cfg       Config
	processor Processor
	logger    *slog.Logger
}

// NewScheduler создает планировщик
func NewScheduler(cfg Config, processor Processor) (*Scheduler, error) {
	if processor == nil {
		return nil, dedup.NewConfigurationError("batch processor is required", nil)
	}
	if cfg.Workers < 0 {
		return nil, dedup.NewConfigurationError(fmt.Sprintf("worker count must be positive, got %d", cfg.Workers), nil)
	}
	if cfg.InitialBatchSize < 0 {
		return nil, dedup.NewConfigurationError(fmt.Sprintf("initial batch size must be positive, got %d", cfg.InitialBatchSize), nil)
	}
	if cfg.MaxRecoveryAttempts < 0 || cfg.MaxRecoveryAttempts > MaxRecoveryAttempts {
		return nil, dedup.NewConfigurationError(
			fmt.Sprintf("max recovery attempts must be between 0 and %d, got %d", MaxRecoveryAttempts, cfg.MaxRecoveryAttempts), nil)
	}
	if cfg.BatchTimeout < 0 {
		return nil, dedup.NewConfigurationError("batch timeout must not be negative", nil)
	}

	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.InitialBatchSize == 0 {
		cfg.InitialBatchSize = DefaultInitialBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{cfg: cfg, processor: processor, logger: logger}, nil
}

// Run читает порции и обрабатывает их до конца источника или отмены ctx.
// После отмены новые порции не читаются, уже выданные обрабатываются до конца.
// Ошибки порций не прерывают работу и передаются в sink вместе с итогами.
func (s *Scheduler) Run(ctx context.Context, reader Reader, sink Sink) Summary {
	start := time.Now()
	total := reader.TotalHint()

	jobs := make(chan dedup.Batch, s.cfg.Workers)
	outcomes := make(chan *Outcome, s.cfg.Workers)

	var summary Summary
	produced := make(chan struct{})
	go func() {
		defer close(produced)
		defer close(jobs)
		s.produce(ctx, reader, jobs, &summary)
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for b := range jobs {
				outcomes <- s.process(ctx, worker, b)
			}
		}(i)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var processed int64
	for outcome := range outcomes {
		processed += int64(outcome.Size)
		sink.HandleOutcome(outcome)
		sink.HandleProgress(progressEvent(outcome.BatchID, processed, total, start))
	}
	<-produced

	summary.Elapsed = time.Since(start)
	s.logger.Info("[Scheduler] run finished",
		"batches", summary.Batches,
		"processed", processed,
		"cancelled", summary.Cancelled,
		"elapsed", summary.Elapsed)
	return summary
}

// produce читает порции, сверяясь с монитором памяти перед каждой
func (s *Scheduler) produce(ctx context.Context, reader Reader, jobs chan<- dedup.Batch, summary *Summary) {
	size := s.cfg.InitialBatchSize
	for {
		if ctx.Err() != nil {
			summary.Cancelled = true
			return
		}

		size = s.adaptSize(size, summary)
		b, err := reader.Next(ctx, size)
		switch {
		case errors.Is(err, io.EOF):
			return
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			summary.Cancelled = true
			return
		case err != nil:
			s.logger.Error("[Scheduler] source failed, stopping", "error", err)
			summary.ReadErr = dedup.NewSourceReadError(0, err)
			return
		}

		summary.Batches++
		summary.BatchSizes = append(summary.BatchSizes, size)
		// Выданная порция обрабатывается даже после отмены
		jobs <- b
	}
}

// adaptSize размер следующей порции по давлению памяти
func (s *Scheduler) adaptSize(current int, summary *Summary) int {
	m := s.cfg.Monitor
	if m == nil {
		return current
	}
	// Пиковое потребление учитывается и без потолка
	pressure := m.Sample()
	if !m.Enabled() {
		return current
	}
	if m.Exceeded() {
		ceilingMB := int(m.Stats().CeilingBytes / (1024 * 1024))
		summary.PressureErrors = append(summary.PressureErrors, dedup.NewMemoryPressureError(pressure, ceilingMB))
	}
	if m.ShouldForceCleanup() {
		m.ForceCleanup()
	}

	next := monitoring.RecommendBatchSize(current, pressure)
	if next != current {
		s.logger.Debug("[Scheduler] batch size adjusted", "from", current, "to", next, "pressure", pressure)
	}
	return next
}

// process проводит порцию через попытки восстановления:
// на каждой повторной попытке части дробятся вчетверо,
// последняя попытка выполняется только с точным сравнением.
func (s *Scheduler) process(ctx context.Context, worker int, b dedup.Batch) *Outcome {
	run := newBatchRun(b)
	pending := []dedup.Batch{b}
	pieceSize := b.Size

	for attempt := 0; attempt <= s.cfg.MaxRecoveryAttempts && len(pending) > 0; attempt++ {
		if attempt > 0 {
			pieceSize = max(1, pieceSize/recoveryDivisor)
			pending = split(pending, pieceSize)
		}
		fuzzy := s.cfg.Fuzzy && (attempt == 0 || attempt < s.cfg.MaxRecoveryAttempts)

		run.transition(Running)
		started := time.Now()

		var (
			failed  []dedup.Batch
			lastErr error
		)
		for _, piece := range pending {
			result, err := s.attempt(ctx, piece, fuzzy)
			if err != nil {
				failed = append(failed, piece)
				lastErr = err
				continue
			}
			run.outcome.Results = append(run.outcome.Results, result)
		}

		record := Attempt{
			Number:   attempt,
			Pieces:   len(pending),
			Size:     pieceSize,
			Fuzzy:    fuzzy,
			Failed:   len(failed),
			Duration: time.Since(started),
		}
		pending = failed
		if len(failed) == 0 {
			run.outcome.Attempts = append(run.outcome.Attempts, record)
			run.outcome.Err = nil
			run.transition(Completed)
			break
		}

		record.Error = lastErr.Error()
		run.outcome.Attempts = append(run.outcome.Attempts, record)
		run.outcome.Err = lastErr
		run.transition(Failed)
		s.logger.Warn("[Scheduler] batch attempt failed",
			"worker", worker,
			"batch_id", b.ID,
			"attempt", attempt,
			"failed_pieces", len(failed),
			"error", lastErr)
	}

	for _, piece := range pending {
		run.outcome.Unprocessed = append(run.outcome.Unprocessed, piece.Records...)
		run.outcome.UnprocessedCount += piece.Size
	}
	if len(pending) > 0 {
		s.logger.Error("[Scheduler] batch left unprocessed",
			"batch_id", b.ID,
			"offset", b.Offset,
			"unprocessed", run.outcome.UnprocessedCount,
			"error", run.outcome.Err)
	}
	return run.outcome
}

// attempt одна попытка обработки части. Отмена ctx не прерывает попытку,
// ограничивает ее только таймаут порции.
func (s *Scheduler) attempt(parent context.Context, piece dedup.Batch, fuzzy bool) (result *dedup.BatchResult, err error) {
	// Поврежденную порцию нельзя перечитать
	if piece.ReadErr != nil {
		return nil, piece.ReadErr
	}

	ctx := context.WithoutCancel(parent)
	if s.cfg.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.BatchTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("[Scheduler] panic recovered",
				"panic", r,
				"stack", string(debug.Stack()),
				"batch_id", piece.ID,
				"offset", piece.Offset)
			result = nil
			err = dedup.NewBatchProcessingError(piece.ID, fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	result, err = s.processor.Resolve(ctx, piece, dedup.ResolveOptions{Fuzzy: fuzzy})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, context.DeadlineExceeded):
		return nil, dedup.NewBatchTimeoutError(piece.ID, s.cfg.BatchTimeout, err)
	case dedup.KindOf(err) != "":
		return nil, err
	default:
		return nil, dedup.NewBatchProcessingError(piece.ID, "failed to resolve batch", err)
	}
}

// split делит части на куски не больше size записей.
// Поврежденные части не делятся: их границы в источнике неизвестны.
func split(pieces []dedup.Batch, size int) []dedup.Batch {
	var out []dedup.Batch
	for _, piece := range pieces {
		if piece.ReadErr != nil || len(piece.Records) <= size {
			out = append(out, piece)
			continue
		}
		for start := 0; start < len(piece.Records); start += size {
			end := min(start+size, len(piece.Records))
			records := piece.Records[start:end]
			out = append(out, dedup.Batch{
				ID:      piece.ID,
				Records: records,
				Offset:  records[0].ID,
				Size:    len(records),
			})
		}
	}
	return out
}

func progressEvent(batchID int, processed, total int64, start time.Time) ProgressEvent {
	elapsed := time.Since(start)
	event := ProgressEvent{
		BatchID:   batchID,
		Processed: processed,
		Total:     total,
		Timestamp: time.Now(),
	}
	if elapsed > 0 {
		event.ItemsPerSecond = float64(processed) / elapsed.Seconds()
	}
	if total > 0 {
		event.PercentComplete = min(100, float64(processed)/float64(total)*100)
		if remaining := total - processed; remaining > 0 && event.ItemsPerSecond > 0 {
			event.ETA = time.Duration(float64(remaining) / event.ItemsPerSecond * float64(time.Second))
		}
	}
	return event
}
