package dedup

import (
	"fmt"
	"math/rand"
	"strings"

	"commentdedup/normalization/algorithms"
)

// EvictionPolicy политика вытеснения из выборки кандидатов
type EvictionPolicy string

const (
	// EvictFIFO кольцевой буфер последних якорей
	EvictFIFO EvictionPolicy = "fifo"
	// EvictReservoir равномерная резервуарная выборка с фиксированным seed
	EvictReservoir EvictionPolicy = "reservoir"
)

// ParseEvictionPolicy разбирает название политики
func ParseEvictionPolicy(name string) (EvictionPolicy, error) {
	switch EvictionPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case EvictFIFO, "":
		return EvictFIFO, nil
	case EvictReservoir:
		return EvictReservoir, nil
	default:
		return "", NewConfigurationError(fmt.Sprintf("unknown sample eviction policy %q", name), nil)
	}
}

// SampleEntry ранее встреченный текст для межпорционного нечеткого сравнения
type SampleEntry struct {
	ID      int64
	Profile *algorithms.TextProfile
}

// CandidateSample ограниченная выборка якорей из уже обработанных порций.
// Сравнение с выборкой приблизительно: якоря, не попавшие в нее, пропускаются.
type CandidateSample struct {
	capacity int
	policy   EvictionPolicy
	entries  []SampleEntry
	next     int   // позиция записи для fifo
	seen     int64 // сколько записей предлагалось (для reservoir)
	rng      *rand.Rand
}

// NewCandidateSample создает выборку. capacity == 0 отключает нечеткое
// межпорционное сравнение.
func NewCandidateSample(capacity int, policy EvictionPolicy, seed int64) *CandidateSample {
	if capacity < 0 {
		capacity = 0
	}
	return &CandidateSample{
		capacity: capacity,
		policy:   policy,
		entries:  make([]SampleEntry, 0, capacity),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Add предлагает запись в выборку
func (s *CandidateSample) Add(entry SampleEntry) {
	if s.capacity == 0 {
		return
	}
	s.seen++

	if len(s.entries) < s.capacity {
		s.entries = append(s.entries, entry)
		return
	}

	switch s.policy {
	case EvictReservoir:
		if j := s.rng.Int63n(s.seen); j < int64(s.capacity) {
			s.entries[j] = entry
		}
	default:
		s.entries[s.next] = entry
		s.next = (s.next + 1) % s.capacity
	}
}

// Snapshot возвращает копию текущей выборки
func (s *CandidateSample) Snapshot() []SampleEntry {
	snapshot := make([]SampleEntry, len(s.entries))
	copy(snapshot, s.entries)
	return snapshot
}

// Len текущий размер выборки
func (s *CandidateSample) Len() int {
	return len(s.entries)
}

// Capacity максимальный размер выборки
func (s *CandidateSample) Capacity() int {
	return s.capacity
}
