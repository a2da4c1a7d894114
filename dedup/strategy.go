package dedup

import (
	"fmt"
	"strings"
)

// Strategy стратегия разрешения группы дубликатов
type Strategy int

const (
	// KeepFirst оставляет самую раннюю запись
	KeepFirst Strategy = iota
	// KeepLast оставляет самую позднюю запись
	KeepLast
	// KeepBest оставляет запись с наибольшей оценкой качества
	KeepBest
	// Merge синтезирует одну запись из всех участников
	Merge
)

var strategyNames = map[Strategy]string{
	KeepFirst: "keep_first",
	KeepLast:  "keep_last",
	KeepBest:  "keep_best",
	Merge:     "merge",
}

// String возвращает название стратегии
func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Valid проверяет, что значение входит в перечисление
func (s Strategy) Valid() bool {
	_, ok := strategyNames[s]
	return ok
}

// ParseStrategy разбирает название стратегии. Неизвестное название -
// ошибка конфигурации, обнаруживаемая до обработки.
func ParseStrategy(name string) (Strategy, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == normalized {
			return s, nil
		}
	}
	return 0, NewConfigurationError(fmt.Sprintf("unknown resolution strategy %q", name), nil).
		WithDetail("allowed", StrategyNames())
}

// StrategyNames список допустимых названий
func StrategyNames() []string {
	return []string{"keep_first", "keep_last", "keep_best", "merge"}
}

// MarshalText реализует encoding.TextMarshaler
func (s Strategy) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ResolveGroup выбирает или синтезирует запись, которая останется от группы.
// members упорядочены по ID.
func ResolveGroup(strategy Strategy, members []Record, scorer *QualityScorer) Record {
	switch strategy {
	case KeepFirst:
		return members[0]
	case KeepLast:
		return members[len(members)-1]
	case KeepBest:
		best := members[0]
		bestScore := scorer.Score(best)
		for _, m := range members[1:] {
			// Строго больше: при равенстве остается более ранняя запись
			if score := scorer.Score(m); score > bestScore {
				best, bestScore = m, score
			}
		}
		return best
	case Merge:
		return mergeRecords(members, scorer.timestampField)
	default:
		panic(fmt.Sprintf("dedup: unhandled strategy %v", strategy))
	}
}
