package report

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"commentdedup/batch"
)

// DefaultProgressLogInterval как часто прогресс пишется в лог
const DefaultProgressLogInterval = 2 * time.Second

// ProgressTracker хранит последнее событие прогресса и раздает события подписчикам
type ProgressTracker struct {
	mu          sync.RWMutex
	last        batch.ProgressEvent
	hasLast     bool
	closed      bool
	subscribers map[int]chan batch.ProgressEvent
	nextID      int

	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewProgressTracker создает трекер. logInterval ограничивает частоту записей в лог.
func NewProgressTracker(logger *slog.Logger, logInterval time.Duration) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if logInterval <= 0 {
		logInterval = DefaultProgressLogInterval
	}
	return &ProgressTracker{
		subscribers: make(map[int]chan batch.ProgressEvent),
		limiter:     rate.NewLimiter(rate.Every(logInterval), 1),
		logger:      logger,
	}
}

// HandleProgress принимает событие (реализует часть batch.Sink).
// Медленный подписчик пропускает события: каждое событие самодостаточно.
func (t *ProgressTracker) HandleProgress(event batch.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.last = event
	t.hasLast = true

	for _, ch := range t.subscribers {
		select {
		case ch <- event:
		default:
		}
	}

	if t.limiter.Allow() {
		t.logger.Info("[Progress] batch completed",
			"batch_id", event.BatchID,
			"percent", event.PercentComplete,
			"items_per_second", event.ItemsPerSecond,
			"eta", event.ETA)
	}
}

// HandleOutcome не используется трекером
func (t *ProgressTracker) HandleOutcome(*batch.Outcome) {}

// Last последнее полученное событие
func (t *ProgressTracker) Last() (batch.ProgressEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.hasLast
}

// Subscribe возвращает канал событий и функцию отписки.
// Последнее известное событие сразу попадает в канал.
// После Close канал закрывается.
func (t *ProgressTracker) Subscribe(buffer int) (<-chan batch.ProgressEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan batch.ProgressEvent, buffer)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasLast {
		ch <- t.last
	}
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if sub, ok := t.subscribers[id]; ok {
				delete(t.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close закрывает каналы всех подписчиков
func (t *ProgressTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
}
