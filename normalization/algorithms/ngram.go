package algorithms

import (
	"strings"
)

// NGramGenerator генерирует символьные N-граммы из текста
type NGramGenerator struct {
	n int // размер граммы (2 для биграмм, 3 для триграмм)
}

// NewNGramGenerator создает новый генератор N-грамм
func NewNGramGenerator(n int) *NGramGenerator {
	if n < 1 {
		n = 3
	}
	return &NGramGenerator{n: n}
}

// Generate создает N-граммы из уже нормализованного текста.
// Добавляет padding символы в начале и конце, чтобы короткие слова
// тоже давали граммы.
func (ng *NGramGenerator) Generate(text string) []string {
	if text == "" {
		return []string{}
	}

	pad := strings.Repeat("_", ng.n-1)
	runes := []rune(pad + text + pad)

	ngrams := make([]string, 0, len(runes))
	for i := 0; i <= len(runes)-ng.n; i++ {
		ngram := string(runes[i : i+ng.n])
		// Пропускаем граммы, состоящие только из padding
		if strings.Trim(ngram, "_") != "" {
			ngrams = append(ngrams, ngram)
		}
	}

	return ngrams
}

// Set возвращает множество N-грамм текста
func (ng *NGramGenerator) Set(text string) map[string]struct{} {
	return toSet(ng.Generate(text))
}

// Similarity вычисляет схожесть двух текстов по множествам N-грамм (Жаккар)
func (ng *NGramGenerator) Similarity(text1, text2 string) float64 {
	return NewJaccardIndex().SimilaritySets(ng.Set(text1), ng.Set(text2))
}
