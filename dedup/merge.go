package dedup

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// timestampLayouts форматы дат, встречающиеся в выгрузках комментариев
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
	"01/02/2006 15:04",
	"01/02/2006",
}

// parseTimestamp пытается разобрать дату в одном из известных форматов
func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// mergeRecords синтезирует запись из группы:
// самый длинный текст, самая ранняя отметка времени, среднее для числовых полей
// и самое частое значение для категориальных. ID берется у якоря.
func mergeRecords(members []Record, timestampField string) Record {
	merged := Record{
		ID:         members[0].ID,
		MergedFrom: make([]int64, 0, len(members)),
		MergeCount: len(members),
	}

	longest := -1
	for _, m := range members {
		merged.MergedFrom = append(merged.MergedFrom, m.ID)
		if n := utf8.RuneCountInString(m.Text); n > longest {
			merged.Text, longest = m.Text, n
		}
	}

	// Значения полей в порядке первого появления ключа
	var keys []string
	values := make(map[string][]string)
	for _, m := range members {
		for _, f := range m.Metadata {
			if _, seen := values[f.Key]; !seen {
				keys = append(keys, f.Key)
				values[f.Key] = nil
			}
			if v := strings.TrimSpace(f.Value); v != "" {
				values[f.Key] = append(values[f.Key], v)
			}
		}
	}

	merged.Metadata = make(Metadata, 0, len(keys))
	for _, key := range keys {
		var value string
		if key == timestampField {
			value = earliestTimestamp(values[key])
		} else {
			value = mergeValues(values[key])
		}
		merged.Metadata = append(merged.Metadata, Field{Key: key, Value: value})
	}

	return merged
}

// earliestTimestamp возвращает самое раннее из значений в исходном формате.
// Нераспознанные даты учитываются, только если распознанных нет.
func earliestTimestamp(values []string) string {
	var (
		earliest    time.Time
		earliestRaw string
	)
	for _, v := range values {
		t, ok := parseTimestamp(v)
		if !ok {
			continue
		}
		if earliestRaw == "" || t.Before(earliest) {
			earliest, earliestRaw = t, v
		}
	}
	if earliestRaw != "" {
		return earliestRaw
	}
	if len(values) > 0 {
		return values[0]
	}
	return ""
}

// mergeValues среднее для числовых значений, мода для остальных
func mergeValues(values []string) string {
	if len(values) == 0 {
		return ""
	}

	sum := 0.0
	numeric := true
	for _, v := range values {
		f, ok := parseNumber(v)
		if !ok {
			numeric = false
			break
		}
		sum += f
	}
	if numeric {
		return strconv.FormatFloat(sum/float64(len(values)), 'f', -1, 64)
	}

	// Мода; при равенстве частот побеждает значение, встреченное раньше
	counts := make(map[string]int, len(values))
	mode, modeCount := "", 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if counts[v] > modeCount {
			mode, modeCount = v, counts[v]
		}
	}
	return mode
}

// decimalPattern десятичное число без разделителей разрядов
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// parseNumber разбирает конечное десятичное число. Запятая считается
// десятичным разделителем, только если точки нет, запятая одна и после нее
// не ровно три цифры ("1,234" неотличимо от разделителя разрядов).
func parseNumber(value string) (float64, bool) {
	if i := strings.IndexByte(value, ','); i >= 0 {
		if strings.Contains(value, ".") || strings.Count(value, ",") > 1 || len(value)-i-1 == 3 {
			return 0, false
		}
		value = value[:i] + "." + value[i+1:]
	}
	if !decimalPattern.MatchString(value) {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
