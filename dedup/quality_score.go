package dedup

import (
	"strings"
	"unicode/utf8"
)

// Веса оценки качества записи
const (
	qualityLengthWeight    = 0.4
	qualityNonEmptyWeight  = 0.2
	qualityMetadataWeight  = 0.2
	qualityTimestampWeight = 0.2

	// Длина текста, начиная с которой вклад длины максимален
	qualityLengthCap = 200
)

// QualityScorer оценивает качество записи в диапазоне [0, 1]
type QualityScorer struct {
	timestampField string
}

// NewQualityScorer создает оценщик; timestampField - имя поля с датой
func NewQualityScorer(timestampField string) *QualityScorer {
	return &QualityScorer{timestampField: timestampField}
}

// Score вычисляет оценку: длина текста (с ограничением), непустота,
// доля заполненных полей метаданных и наличие отметки времени.
func (q *QualityScorer) Score(r Record) float64 {
	text := strings.TrimSpace(r.Text)
	if text == "" {
		return 0
	}

	length := utf8.RuneCountInString(text)
	score := qualityLengthWeight * float64(min(length, qualityLengthCap)) / qualityLengthCap
	score += qualityNonEmptyWeight

	filled, total := 0, 0
	hasTimestamp := false
	for _, f := range r.Metadata {
		value := strings.TrimSpace(f.Value)
		if f.Key == q.timestampField {
			hasTimestamp = value != ""
			continue
		}
		total++
		if value != "" {
			filled++
		}
	}
	if total > 0 {
		score += qualityMetadataWeight * float64(filled) / float64(total)
	}
	if hasTimestamp {
		score += qualityTimestampWeight
	}

	return score
}
