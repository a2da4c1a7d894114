package algorithms

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TextHash 128-битный отпечаток нормализованного текста
type TextHash [md5.Size]byte

// EmptyHash фиксированный отпечаток для пустого текста.
// Записи с таким отпечатком никогда не группируются между собой.
var EmptyHash TextHash

// String возвращает hex-представление отпечатка
func (h TextHash) String() string {
	return hex.EncodeToString(h[:])
}

// NormalizedText форма текста для сравнения: очищенная строка и ее отпечаток.
// Исходный текст записи при этом не меняется.
type NormalizedText struct {
	Cleaned string
	Hash    TextHash
}

// IsEmpty сообщает, что после нормализации текст пуст
func (n NormalizedText) IsEmpty() bool {
	return n.Cleaned == ""
}

// TextNormalizer приводит текст к канонической форме для сравнения
type TextNormalizer struct {
	stripHTML      bool
	foldDiacritics bool
}

// NormalizerOptions настройки нормализатора
type NormalizerOptions struct {
	StripHTML      bool // Сводить HTML-разметку к тексту
	FoldDiacritics bool // Убирать диакритические знаки (é -> e)
}

// DefaultNormalizerOptions настройки по умолчанию
func DefaultNormalizerOptions() NormalizerOptions {
	return NormalizerOptions{
		StripHTML:      true,
		FoldDiacritics: true,
	}
}

// NewTextNormalizer создает новый нормализатор текста
func NewTextNormalizer(opts NormalizerOptions) *TextNormalizer {
	return &TextNormalizer{
		stripHTML:      opts.StripHTML,
		foldDiacritics: opts.FoldDiacritics,
	}
}

// Normalize выполняет полную нормализацию текста.
// Результат детерминирован: одинаковый вход всегда дает одинаковый отпечаток.
func (tn *TextNormalizer) Normalize(text string) NormalizedText {
	cleaned := tn.Clean(text)
	if cleaned == "" {
		return NormalizedText{Hash: EmptyHash}
	}
	return NormalizedText{
		Cleaned: cleaned,
		Hash:    md5.Sum([]byte(cleaned)),
	}
}

// Clean возвращает форму текста для сравнения без вычисления отпечатка
func (tn *TextNormalizer) Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// 1. HTML-разметка (комментарии, выгруженные из веб-форм)
	if tn.stripHTML && looksLikeHTML(text) {
		text = stripMarkup(text)
	}

	// 2. Unicode: совместимая декомпозиция, удаление диакритики
	text = normalizeUnicode(text, tn.foldDiacritics)

	// 3. Приведение к нижнему регистру
	text = strings.ToLower(text)

	// 4. Пунктуация и символы заменяются пробелами
	text = RemovePunctuation(text)

	// 5. Схлопывание пробельных последовательностей
	return NormalizeWhitespace(text)
}

// looksLikeHTML грубая проверка наличия тегов
func looksLikeHTML(text string) bool {
	open := strings.IndexByte(text, '<')
	return open >= 0 && strings.IndexByte(text[open:], '>') > 0
}

// stripMarkup сводит HTML-фрагмент к видимому тексту
func stripMarkup(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}
	// Блочные элементы разделяем пробелами, иначе соседние абзацы склеиваются
	doc.Find("br, p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return doc.Text()
}

// normalizeUnicode приводит текст к NFKC; при foldDiacritics удаляет комбинирующие знаки
func normalizeUnicode(text string, foldDiacritics bool) string {
	if !foldDiacritics {
		return norm.NFKC.String(text)
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFKC)
	result, _, err := transform.String(t, text)
	if err != nil {
		return norm.NFKC.String(text)
	}
	return result
}

// RemovePunctuation заменяет знаки пунктуации и символы пробелами
func RemovePunctuation(text string) string {
	var builder strings.Builder
	builder.Grow(len(text))
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			builder.WriteRune(' ')
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

// NormalizeWhitespace нормализует пробельные символы
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
