package dedup

import (
	"commentdedup/normalization/algorithms"
)

// IndexEntry запись индекса: к какой группе относится хеш.
// Score - схожесть текста с этим хешем с якорем группы (1.0 для самого якоря).
type IndexEntry struct {
	ID    int64
	Score float64
}

// ExactMatchIndex индекс точных дубликатов по хешу нормализованного текста.
// Сам по себе не потокобезопасен: общий индекс используется только под
// замком GlobalDedupState.
type ExactMatchIndex struct {
	entries map[algorithms.TextHash]IndexEntry
}

// NewExactMatchIndex создает пустой индекс
func NewExactMatchIndex() *ExactMatchIndex {
	return &ExactMatchIndex{entries: make(map[algorithms.TextHash]IndexEntry)}
}

// LookupOrInsert возвращает id, впервые зарегистрированный для хеша.
// Если хеш новый, регистрирует id и возвращает found == false.
// Пустой хеш никогда не регистрируется.
func (x *ExactMatchIndex) LookupOrInsert(hash algorithms.TextHash, id int64) (existing int64, found bool) {
	entry, found := x.lookupOrInsert(hash, IndexEntry{ID: id, Score: 1.0})
	if !found {
		return 0, false
	}
	return entry.ID, true
}

func (x *ExactMatchIndex) lookupOrInsert(hash algorithms.TextHash, entry IndexEntry) (IndexEntry, bool) {
	if hash == algorithms.EmptyHash {
		return IndexEntry{}, false
	}
	if existing, ok := x.entries[hash]; ok {
		return existing, true
	}
	x.entries[hash] = entry
	return IndexEntry{}, false
}

func (x *ExactMatchIndex) put(hash algorithms.TextHash, entry IndexEntry) {
	if hash != algorithms.EmptyHash {
		x.entries[hash] = entry
	}
}

// Lookup ищет хеш без вставки
func (x *ExactMatchIndex) Lookup(hash algorithms.TextHash) (IndexEntry, bool) {
	entry, ok := x.entries[hash]
	return entry, ok
}

// Len количество зарегистрированных хешей
func (x *ExactMatchIndex) Len() int {
	return len(x.entries)
}
