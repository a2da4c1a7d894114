package algorithms

import (
	"math"
	"sort"
)

// PositionalTokenSimilarity сравнивает тексты по общим токенам с учетом их позиций:
// совпадающий токен дает вклад 1.0, если стоит на той же позиции, и меньше,
// чем дальше он сдвинут.
type PositionalTokenSimilarity struct{}

// NewPositionalTokenSimilarity создает вычислитель позиционной схожести
func NewPositionalTokenSimilarity() *PositionalTokenSimilarity {
	return &PositionalTokenSimilarity{}
}

// Similarity вычисляет схожесть двух последовательностей токенов
func (pt *PositionalTokenSimilarity) Similarity(tokens1, tokens2 []string) float64 {
	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 1.0
	}
	if len(tokens1) == 0 || len(tokens2) == 0 {
		return 0.0
	}

	pos1 := tokenPositions(tokens1)
	pos2 := tokenPositions(tokens2)

	// Общие токены в фиксированном порядке, чтобы сумма не зависела от обхода map
	common := make([]string, 0, len(pos1))
	for token := range pos1 {
		if _, ok := pos2[token]; ok {
			common = append(common, token)
		}
	}
	if len(common) == 0 {
		return 0.0
	}
	sort.Strings(common)

	maxLen := float64(max(len(tokens1), len(tokens2)))
	total := 0.0
	for _, token := range common {
		minDist := math.MaxFloat64
		for _, p1 := range pos1[token] {
			for _, p2 := range pos2[token] {
				if dist := math.Abs(float64(p1 - p2)); dist < minDist {
					minDist = dist
				}
			}
		}

		// Чем ближе позиции, тем выше вклад
		positionSimilarity := 1.0 - minDist/maxLen
		if positionSimilarity < 0 {
			positionSimilarity = 0
		}
		total += positionSimilarity
	}

	// Нормируем на размер большего словаря: лишние токены снижают оценку
	vocabulary := max(len(pos1), len(pos2))
	return total / float64(vocabulary)
}

// tokenPositions строит индекс позиций токенов
func tokenPositions(tokens []string) map[string][]int {
	positions := make(map[string][]int, len(tokens))
	for i, token := range tokens {
		positions[token] = append(positions[token], i)
	}
	return positions
}
