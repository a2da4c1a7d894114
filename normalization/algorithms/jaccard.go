package algorithms

// JaccardIndex вычисляет индекс Жаккара для сравнения множеств
// Индекс Жаккара = |A ∩ B| / |A ∪ B|
// Значение от 0.0 (нет общих элементов) до 1.0 (полное совпадение)
type JaccardIndex struct{}

// NewJaccardIndex создает новый вычислитель индекса Жаккара
func NewJaccardIndex() *JaccardIndex {
	return &JaccardIndex{}
}

// Similarity вычисляет индекс Жаккара для двух списков токенов
func (j *JaccardIndex) Similarity(tokens1, tokens2 []string) float64 {
	return j.SimilaritySets(toSet(tokens1), toSet(tokens2))
}

// SimilaritySets вычисляет индекс Жаккара для двух множеств напрямую
func (j *JaccardIndex) SimilaritySets(set1, set2 map[string]struct{}) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	// Перебираем меньшее множество
	if len(set1) > len(set2) {
		set1, set2 = set2, set1
	}

	intersection := 0
	for elem := range set1 {
		if _, ok := set2[elem]; ok {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// toSet строит множество из списка
func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}
