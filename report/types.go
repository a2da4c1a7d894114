package report

import (
	"time"

	"commentdedup/dedup"
)

// ErrorEntry ошибка, накопленная за сессию
type ErrorEntry struct {
	BatchID     int             `json:"batch_id" yaml:"batch_id"` // 0 - ошибка уровня сессии
	Kind        dedup.ErrorKind `json:"kind" yaml:"kind"`
	Message     string          `json:"message" yaml:"message"`
	Attempts    int             `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Unprocessed int             `json:"unprocessed,omitempty" yaml:"unprocessed,omitempty"`
	Occurrences int             `json:"occurrences,omitempty" yaml:"occurrences,omitempty"`
}

// Performance показатели производительности
type Performance struct {
	Elapsed          time.Duration `json:"elapsed" yaml:"elapsed"`
	ItemsPerSecond   float64       `json:"items_per_second" yaml:"items_per_second"`
	MemoryPeakBytes  uint64        `json:"memory_peak" yaml:"memory_peak"`
	Batches          int           `json:"batches" yaml:"batches"`
	RecoveredBatches int           `json:"recovered_batches" yaml:"recovered_batches"`
	BatchSizes       []int         `json:"batch_sizes" yaml:"batch_sizes,flow"`
	Comparisons      int64         `json:"comparisons" yaml:"comparisons"`
}

// QualitySummary статистика качества, взвешенная по числу записей
type QualitySummary struct {
	Mean    float64 `json:"mean" yaml:"mean"`
	Records int     `json:"records" yaml:"records"`
	High    int     `json:"high" yaml:"high"`
	Medium  int     `json:"medium" yaml:"medium"`
	Low     int     `json:"low" yaml:"low"`
}

// TextFrequency нормализованный текст и размер его группы
type TextFrequency struct {
	Text  string `json:"text" yaml:"text"`
	Count int    `json:"count" yaml:"count"`
}

// Report итоговый отчет сессии
type Report struct {
	SessionID  string    `json:"session_id" yaml:"session_id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	TotalInput          int     `json:"total_input" yaml:"total_input"`
	TotalOutput         int     `json:"total_output" yaml:"total_output"`
	DuplicatesRemoved   int     `json:"duplicates_removed" yaml:"duplicates_removed"`
	ExactDuplicateCount int     `json:"exact_duplicate_count" yaml:"exact_duplicate_count"`
	FuzzyDuplicateCount int     `json:"fuzzy_duplicate_count" yaml:"fuzzy_duplicate_count"`
	DuplicateRate       float64 `json:"duplicate_rate" yaml:"duplicate_rate"`
	EmptyRecords        int     `json:"empty_records" yaml:"empty_records"`
	Unprocessed         int     `json:"unprocessed" yaml:"unprocessed"`

	DuplicateGroups    []dedup.DuplicateGroup `json:"duplicate_groups" yaml:"duplicate_groups"`
	GroupSizeHistogram map[int]int            `json:"group_size_histogram" yaml:"group_size_histogram"`
	TopTexts           []TextFrequency        `json:"top_texts" yaml:"top_texts"`

	Quality     QualitySummary   `json:"quality" yaml:"quality"`
	Performance Performance      `json:"performance" yaml:"performance"`
	State       dedup.StateStats `json:"state" yaml:"state"`
	Errors      []ErrorEntry     `json:"errors" yaml:"errors"`

	Partial   bool `json:"partial" yaml:"partial"`
	Cancelled bool `json:"cancelled" yaml:"cancelled"`
}
