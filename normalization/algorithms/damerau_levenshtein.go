package algorithms

// DamerauLevenshtein вычисляет расстояние Дамерау-Левенштейна
// (вариант optimal string alignment: вставка, удаление, замена и
// транспозиция соседних символов).
// Хранит только три строки матрицы, поэтому память O(min(n, m)).
type DamerauLevenshtein struct{}

// NewDamerauLevenshtein создает новый вычислитель расстояния Дамерау-Левенштейна
func NewDamerauLevenshtein() *DamerauLevenshtein {
	return &DamerauLevenshtein{}
}

// Distance вычисляет расстояние между двумя строками
func (dl *DamerauLevenshtein) Distance(str1, str2 string) int {
	return dl.DistanceRunes([]rune(str1), []rune(str2))
}

// DistanceRunes вычисляет расстояние для рун
func (dl *DamerauLevenshtein) DistanceRunes(r1, r2 []rune) int {
	// Короткая строка по столбцам
	if len(r1) < len(r2) {
		r1, r2 = r2, r1
	}
	len1 := len(r1)
	len2 := len(r2)

	if len2 == 0 {
		return len1
	}

	prevPrev := make([]int, len2+1)
	prev := make([]int, len2+1)
	curr := make([]int, len2+1)
	for j := 0; j <= len2; j++ {
		prev[j] = j
	}

	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}

			best := min(
				prev[j]+1,      // удаление
				curr[j-1]+1,    // вставка
				prev[j-1]+cost, // замена
			)

			// Транспозиция соседних символов
			if i > 1 && j > 1 && r1[i-1] == r2[j-2] && r1[i-2] == r2[j-1] {
				best = min(best, prevPrev[j-2]+1)
			}
			curr[j] = best
		}
		prevPrev, prev, curr = prev, curr, prevPrev
	}

	return prev[len2]
}

// Similarity вычисляет схожесть двух строк на основе расстояния Дамерау-Левенштейна
// Возвращает значение от 0.0 (полностью разные) до 1.0 (идентичные)
func (dl *DamerauLevenshtein) Similarity(str1, str2 string) float64 {
	r1 := []rune(str1)
	r2 := []rune(str2)

	maxLen := max(len(r1), len(r2))
	if maxLen == 0 {
		return 1.0
	}

	// Схожесть = 1 - (расстояние / максимальная длина)
	similarity := 1.0 - float64(dl.DistanceRunes(r1, r2))/float64(maxLen)
	if similarity < 0.0 {
		similarity = 0.0
	}

	return similarity
}
