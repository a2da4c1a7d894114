package dedup

import (
	"commentdedup/normalization/algorithms"
)

// Field одно поле метаданных записи
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Metadata упорядоченный набор вспомогательных полей записи.
// Порядок совпадает с порядком колонок источника.
type Metadata []Field

// Get возвращает значение поля по ключу
func (m Metadata) Get(key string) (string, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Keys возвращает ключи в исходном порядке
func (m Metadata) Keys() []string {
	keys := make([]string, len(m))
	for i, f := range m {
		keys[i] = f.Key
	}
	return keys
}

// Record запись с комментарием. После чтения не изменяется.
type Record struct {
	ID       int64    `json:"id"` // Порядковый индекс в источнике
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata,omitempty"`

	// Заполняются только для записей, синтезированных стратегией merge
	MergedFrom []int64 `json:"merged_from,omitempty"`
	MergeCount int     `json:"merge_count,omitempty"`
}

// GroupKind тип группы дубликатов
type GroupKind string

const (
	GroupExact GroupKind = "exact" // Все участники совпадают по хешу
	GroupFuzzy GroupKind = "fuzzy" // Есть хотя бы один нечеткий дубликат
)

// DuplicateGroup группа дубликатов.
// RepresentativeID - якорь группы: самая ранняя запись, с которой сравнивались
// все остальные участники. KeptID - запись, оставленная стратегией разрешения.
type DuplicateGroup struct {
	RepresentativeID int64             `json:"representative_id" yaml:"representative_id"`
	KeptID           int64             `json:"kept_id" yaml:"kept_id"`
	MemberIDs        []int64           `json:"member_ids" yaml:"member_ids,flow"`
	SimilarityScores map[int64]float64 `json:"similarity_scores" yaml:"similarity_scores"`
	Kind             GroupKind         `json:"kind" yaml:"kind"`
	CrossBatch       bool              `json:"cross_batch,omitempty" yaml:"cross_batch,omitempty"`
	NormalizedText   string            `json:"normalized_text" yaml:"normalized_text"`
}

// Size количество участников группы
func (g *DuplicateGroup) Size() int {
	return len(g.MemberIDs)
}

// Batch порция записей, которой владеет ровно один обработчик
type Batch struct {
	ID      int      `json:"batch_id"`
	Records []Record `json:"-"`
	Offset  int64    `json:"origin_offset"`

	// Size число строк источника, покрытых порцией. Совпадает с len(Records),
	// если чтение прошло без ошибок.
	Size int `json:"size"`

	// ReadErr ошибка чтения порции (поврежденные строки)
	ReadErr error `json:"-"`
}

// QualityStats накопленная статистика качества записей
type QualityStats struct {
	Sum    float64 `json:"sum"`
	Count  int     `json:"count"`
	High   int     `json:"high"`   // >= 0.7
	Medium int     `json:"medium"` // >= 0.4
	Low    int     `json:"low"`
}

// Add учитывает оценку одной записи
func (q *QualityStats) Add(score float64) {
	q.Sum += score
	q.Count++
	switch {
	case score >= 0.7:
		q.High++
	case score >= 0.4:
		q.Medium++
	default:
		q.Low++
	}
}

// Merge прибавляет статистику другой порции
func (q *QualityStats) Merge(other QualityStats) {
	q.Sum += other.Sum
	q.Count += other.Count
	q.High += other.High
	q.Medium += other.Medium
	q.Low += other.Low
}

// Mean средняя оценка, взвешенная по числу записей
func (q QualityStats) Mean() float64 {
	if q.Count == 0 {
		return 0
	}
	return q.Sum / float64(q.Count)
}

// BatchResult результат обработки одной порции
type BatchResult struct {
	BatchID int   `json:"batch_id"`
	Offset  int64 `json:"origin_offset"`
	Input   int   `json:"input"`

	// Records оставшиеся записи в исходном порядке
	Records []Record         `json:"-"`
	Groups  []DuplicateGroup `json:"groups"`
	// Members исходные записи всех участников групп порции. Нужны, чтобы
	// заново применить стратегию, когда группа пополнится из других порций.
	Members []Record `json:"-"`

	ExactDuplicates int          `json:"exact_duplicates"`
	FuzzyDuplicates int          `json:"fuzzy_duplicates"`
	EmptyRecords    int          `json:"empty_records"`
	Comparisons     int64        `json:"comparisons"`
	Quality         QualityStats `json:"quality"`
	FuzzyEnabled    bool         `json:"fuzzy_enabled"`
}

// Removed количество удаленных записей
func (r *BatchResult) Removed() int {
	return r.Input - len(r.Records)
}

// normalizedRecord запись вместе с формой для сравнения
type normalizedRecord struct {
	record     Record
	normalized algorithms.NormalizedText
	profile    *algorithms.TextProfile
}
