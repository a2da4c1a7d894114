package monitoring

import (
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// Границы размера порции
const (
	MinBatchSize      = 10   // нижняя граница при критическом давлении
	ReducedBatchFloor = 50   // нижняя граница при повышенном давлении
	MaxBatchSize      = 2000 // верхняя граница при росте
)

// Пороги давления памяти (доля от потолка)
const (
	criticalPressure = 0.9
	highPressure     = 0.7
	cleanupPressure  = 0.8
	lowPressure      = 0.3
)

// MemorySampler возвращает текущий объем используемой памяти в байтах
type MemorySampler func() uint64

// RuntimeSampler читает размер кучи из статистики рантайма
func RuntimeSampler() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// MemoryStats статистика монитора
type MemoryStats struct {
	CeilingBytes uint64    `json:"ceiling_bytes"`
	PeakBytes    uint64    `json:"peak_bytes"`
	LastBytes    uint64    `json:"last_bytes"`
	LastPressure float64   `json:"last_pressure"`
	Samples      int64     `json:"samples"`
	Cleanups     int       `json:"cleanups"`
	LastSampleAt time.Time `json:"last_sample_at"`
}

// MemoryMonitor измеряет давление памяти относительно потолка
// и рекомендует размер следующей порции
type MemoryMonitor struct {
	ceiling   uint64
	sampler   MemorySampler
	releasers []func()
	logger    *slog.Logger

	mu    sync.Mutex
	stats MemoryStats
}

// NewMemoryMonitor создает монитор. ceilingMB == 0 отключает адаптацию,
// но пиковое потребление все равно отслеживается.
func NewMemoryMonitor(ceilingMB int, sampler MemorySampler, logger *slog.Logger) *MemoryMonitor {
	if sampler == nil {
		sampler = RuntimeSampler
	}
	if logger == nil {
		logger = slog.Default()
	}
	ceiling := uint64(0)
	if ceilingMB > 0 {
		ceiling = uint64(ceilingMB) * 1024 * 1024
	}
	return &MemoryMonitor{
		ceiling: ceiling,
		sampler: sampler,
		logger:  logger,
		stats:   MemoryStats{CeilingBytes: ceiling},
	}
}

// Enabled задан ли потолок памяти
func (m *MemoryMonitor) Enabled() bool {
	return m.ceiling > 0
}

// Sample измеряет память и возвращает давление (0 при отключенном потолке)
func (m *MemoryMonitor) Sample() float64 {
	used := m.sampler()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.Samples++
	m.stats.LastBytes = used
	m.stats.LastSampleAt = time.Now()
	if used > m.stats.PeakBytes {
		m.stats.PeakBytes = used
	}
	if m.ceiling == 0 {
		m.stats.LastPressure = 0
		return 0
	}
	m.stats.LastPressure = float64(used) / float64(m.ceiling)
	return m.stats.LastPressure
}

// Pressure последнее измеренное давление
func (m *MemoryMonitor) Pressure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.LastPressure
}

// ShouldForceCleanup требуется ли принудительное освобождение памяти
func (m *MemoryMonitor) ShouldForceCleanup() bool {
	return m.Enabled() && m.Pressure() > cleanupPressure
}

// Exceeded превышен ли потолок
func (m *MemoryMonitor) Exceeded() bool {
	return m.Enabled() && m.Pressure() > 1.0
}

// RegisterReleaser добавляет функцию освобождения временных кэшей
func (m *MemoryMonitor) RegisterReleaser(release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releasers = append(m.releasers, release)
}

// ForceCleanup освобождает кэши и возвращает память системе
func (m *MemoryMonitor) ForceCleanup() {
	m.mu.Lock()
	releasers := append([]func(){}, m.releasers...)
	m.stats.Cleanups++
	m.mu.Unlock()

	for _, release := range releasers {
		release()
	}
	runtime.GC()
	debug.FreeOSMemory()

	m.logger.Info("[MemoryMonitor] forced cleanup", "pressure", m.Pressure())
}

// Stats возвращает копию статистики
func (m *MemoryMonitor) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// RecommendBatchSize размер следующей порции по давлению памяти:
// > 0.9 - четверть (не меньше 10), > 0.7 - половина (не меньше 50),
// < 0.3 - удвоение (не больше 2000), иначе без изменений.
// Под давлением размер никогда не растет.
func RecommendBatchSize(current int, pressure float64) int {
	if current < 1 {
		current = 1
	}

	switch {
	case pressure > criticalPressure:
		return min(current, max(current/4, MinBatchSize))
	case pressure > highPressure:
		return min(current, max(current/2, ReducedBatchFloor))
	case pressure < lowPressure:
		return max(current, min(current*2, MaxBatchSize))
	default:
		return current
	}
}
