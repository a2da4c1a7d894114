package algorithms

import (
	"strings"
)

// SimilarityWeights веса составляющих комбинированной метрики
type SimilarityWeights struct {
	EditDistance    float64 `json:"edit_distance"`    // Дамерау-Левенштейн по символам
	WordSet         float64 `json:"word_set"`         // Жаккар по множествам слов
	PositionalToken float64 `json:"positional_token"` // Совпадение токенов с учетом позиции
	CharNGram       float64 `json:"char_ngram"`       // Жаккар по символьным триграммам
}

// DefaultSimilarityWeights возвращает веса по умолчанию
func DefaultSimilarityWeights() *SimilarityWeights {
	return &SimilarityWeights{
		EditDistance:    0.3,
		WordSet:         0.3,
		PositionalToken: 0.2,
		CharNGram:       0.2,
	}
}

// Total сумма весов
func (w *SimilarityWeights) Total() float64 {
	return w.EditDistance + w.WordSet + w.PositionalToken + w.CharNGram
}

// SimilarityScores значения отдельных метрик для пары текстов
type SimilarityScores struct {
	EditDistance    float64 `json:"edit_distance"`
	WordSet         float64 `json:"word_set"`
	PositionalToken float64 `json:"positional_token"`
	CharNGram       float64 `json:"char_ngram"`
}

// TextProfile заранее вычисленные признаки нормализованного текста.
// В пакетной обработке каждый текст сравнивается с многими другими,
// поэтому токены и граммы строятся один раз.
type TextProfile struct {
	Text     NormalizedText
	runes    []rune
	tokens   []string
	wordSet  map[string]struct{}
	trigrams map[string]struct{}
}

// Len длина текста в рунах
func (p *TextProfile) Len() int {
	return len(p.runes)
}

// SimilarityEngine комбинирует четыре независимые метрики с фиксированными весами.
// Порог схожести в движке не хранится: решение о дубликате принимает вызывающий код.
type SimilarityEngine struct {
	weights      SimilarityWeights
	editDistance *DamerauLevenshtein
	jaccard      *JaccardIndex
	positional   *PositionalTokenSimilarity
	ngrams       *NGramGenerator
	stemmer      Stemmer
}

// NewSimilarityEngine создает движок. weights == nil означает веса по умолчанию,
// stemmer может быть nil (слова сравниваются без стемминга).
func NewSimilarityEngine(weights *SimilarityWeights, stemmer Stemmer) (*SimilarityEngine, error) {
	if weights == nil {
		weights = DefaultSimilarityWeights()
	}
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	return &SimilarityEngine{
		weights:      *weights,
		editDistance: NewDamerauLevenshtein(),
		jaccard:      NewJaccardIndex(),
		positional:   NewPositionalTokenSimilarity(),
		ngrams:       NewNGramGenerator(3),
		stemmer:      stemmer,
	}, nil
}

// Weights возвращает копию весов движка
func (e *SimilarityEngine) Weights() SimilarityWeights {
	return e.weights
}

// Profile строит признаки текста
func (e *SimilarityEngine) Profile(text NormalizedText) *TextProfile {
	profile := &TextProfile{Text: text}
	if text.IsEmpty() {
		return profile
	}

	profile.runes = []rune(text.Cleaned)
	profile.tokens = strings.Fields(text.Cleaned)

	words := profile.tokens
	if e.stemmer != nil {
		words = e.stemmer.StemTokens(words)
	}
	profile.wordSet = toSet(words)
	profile.trigrams = e.ngrams.Set(text.Cleaned)

	return profile
}

// Similarity вычисляет схожесть двух нормализованных текстов, значение в [0, 1].
// Пустой текст не похож ни на что; функция симметрична.
func (e *SimilarityEngine) Similarity(a, b NormalizedText) float64 {
	return e.Compare(e.Profile(a), e.Profile(b))
}

// Compare вычисляет схожесть по заранее построенным профилям
func (e *SimilarityEngine) Compare(a, b *TextProfile) float64 {
	if a.Text.IsEmpty() || b.Text.IsEmpty() {
		return 0.0
	}
	if a.Text.Hash == b.Text.Hash {
		return 1.0
	}

	a, b = canonicalOrder(a, b)
	return e.combine(e.scores(a, b))
}

// Matches проверяет, достигает ли схожесть порога. Перед дорогим расчетом
// редакционного расстояния оценивается верхняя граница: расстояние не меньше
// разницы длин. Точное значение score гарантируется только при ok == true.
func (e *SimilarityEngine) Matches(a, b *TextProfile, threshold float64) (score float64, ok bool) {
	if a.Text.IsEmpty() || b.Text.IsEmpty() {
		return 0.0, false
	}
	if a.Text.Hash == b.Text.Hash {
		return 1.0, true
	}

	a, b = canonicalOrder(a, b)

	scores := SimilarityScores{
		WordSet:         e.jaccard.SimilaritySets(a.wordSet, b.wordSet),
		PositionalToken: e.positional.Similarity(a.tokens, b.tokens),
		CharNGram:       e.jaccard.SimilaritySets(a.trigrams, b.trigrams),
	}

	longer := max(a.Len(), b.Len())
	shorter := min(a.Len(), b.Len())
	scores.EditDistance = float64(shorter) / float64(longer)
	if upper := e.combine(scores); upper < threshold {
		return upper, false
	}

	scores.EditDistance = e.editSimilarity(a, b)
	score = e.combine(scores)
	return score, score >= threshold
}

// Scores возвращает значения отдельных метрик (для отчетов и отладки)
func (e *SimilarityEngine) Scores(a, b NormalizedText) SimilarityScores {
	pa, pb := canonicalOrder(e.Profile(a), e.Profile(b))
	if pa.Text.IsEmpty() || pb.Text.IsEmpty() {
		return SimilarityScores{}
	}
	return e.scores(pa, pb)
}

func (e *SimilarityEngine) scores(a, b *TextProfile) SimilarityScores {
	return SimilarityScores{
		EditDistance:    e.editSimilarity(a, b),
		WordSet:         e.jaccard.SimilaritySets(a.wordSet, b.wordSet),
		PositionalToken: e.positional.Similarity(a.tokens, b.tokens),
		CharNGram:       e.jaccard.SimilaritySets(a.trigrams, b.trigrams),
	}
}

func (e *SimilarityEngine) editSimilarity(a, b *TextProfile) float64 {
	maxLen := max(len(a.runes), len(b.runes))
	if maxLen == 0 {
		return 1.0
	}
	similarity := 1.0 - float64(e.editDistance.DistanceRunes(a.runes, b.runes))/float64(maxLen)
	if similarity < 0 {
		return 0
	}
	return similarity
}

// combine взвешенное среднее, ограниченное отрезком [0, 1]
func (e *SimilarityEngine) combine(s SimilarityScores) float64 {
	w := e.weights
	combined := (s.EditDistance*w.EditDistance +
		s.WordSet*w.WordSet +
		s.PositionalToken*w.PositionalToken +
		s.CharNGram*w.CharNGram) / w.Total()

	switch {
	case combined < 0:
		return 0
	case combined > 1:
		return 1
	default:
		return combined
	}
}

// ClearCache освобождает кэш стеммера
func (e *SimilarityEngine) ClearCache() {
	if e.stemmer != nil {
		e.stemmer.ClearCache()
	}
}

// canonicalOrder упорядочивает пару, чтобы результат не зависел от порядка аргументов
func canonicalOrder(a, b *TextProfile) (*TextProfile, *TextProfile) {
	if a.Text.Cleaned > b.Text.Cleaned {
		return b, a
	}
	return a, b
}
