package dedup

import (
	"sync"

	"commentdedup/normalization/algorithms"
)

// Registration привязка хеша к группе, фиксируемая после обработки порции
type Registration struct {
	Hash  algorithms.TextHash
	Entry IndexEntry
	// Replace перезаписывает существующую привязку. Используется для якоря,
	// поглощенного другой группой той же порции.
	Replace bool
}

// StateStats счетчики общего состояния
type StateStats struct {
	Hashes      int   `json:"hashes" yaml:"hashes"`
	Sampled     int   `json:"sampled" yaml:"sampled"`
	Lookups     int64 `json:"lookups" yaml:"lookups"`
	CrossHits   int64 `json:"cross_hits" yaml:"cross_hits"`
	RaceRetries int64 `json:"race_retries" yaml:"race_retries"`
}

// GlobalDedupState общее для всех обработчиков состояние сессии:
// индекс хешей и выборка кандидатов. Все обращения проходят через один замок,
// поэтому проверка и вставка хеша атомарны.
type GlobalDedupState struct {
	mu     sync.Mutex
	index  *ExactMatchIndex
	sample *CandidateSample
	stats  StateStats
}

// NewGlobalDedupState создает состояние для одной сессии
func NewGlobalDedupState(sampleSize int, policy EvictionPolicy, seed int64) *GlobalDedupState {
	return &GlobalDedupState{
		index:  NewExactMatchIndex(),
		sample: NewCandidateSample(sampleSize, policy, seed),
	}
}

// Lookup ищет хеш среди уже зарегистрированных
func (g *GlobalDedupState) Lookup(hash algorithms.TextHash) (IndexEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stats.Lookups++
	entry, ok := g.index.Lookup(hash)
	if ok {
		g.stats.CrossHits++
	}
	return entry, ok
}

// LookupOrInsert атомарно регистрирует якорь. Если хеш успел зарегистрировать
// другой обработчик, возвращает его запись.
func (g *GlobalDedupState) LookupOrInsert(hash algorithms.TextHash, id int64) (IndexEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, found := g.index.lookupOrInsert(hash, IndexEntry{ID: id, Score: 1.0})
	if found && entry.ID != id {
		g.stats.RaceRetries++
	}
	return entry, found
}

// Snapshot копия выборки кандидатов. Сравнение с ней выполняется без замка.
func (g *GlobalDedupState) Snapshot() []SampleEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sample.Snapshot()
}

// SampleEnabled включено ли межпорционное нечеткое сравнение
func (g *GlobalDedupState) SampleEnabled() bool {
	return g.sample.Capacity() > 0
}

// Commit фиксирует результаты порции: хеши нечетких участников групп
// (уже занятые хеши перезаписываются только с Replace) и новые якоря в выборке.
func (g *GlobalDedupState) Commit(registrations []Registration, anchors []SampleEntry) {
	if len(registrations) == 0 && len(anchors) == 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, r := range registrations {
		if r.Replace {
			g.index.put(r.Hash, r.Entry)
			continue
		}
		g.index.lookupOrInsert(r.Hash, r.Entry)
	}
	for _, a := range anchors {
		g.sample.Add(a)
	}
}

// Stats возвращает счетчики состояния
func (g *GlobalDedupState) Stats() StateStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := g.stats
	stats.Hashes = g.index.Len()
	stats.Sampled = g.sample.Len()
	return stats
}
