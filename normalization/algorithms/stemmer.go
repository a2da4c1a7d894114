package algorithms

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kljensen/snowball"
)

// Stemmer interface defines methods for stemming words
type Stemmer interface {
	// Stem returns the stemmed version of a word
	Stem(word string) string

	// StemTokens returns stemmed versions of multiple words
	StemTokens(tokens []string) []string

	// ClearCache releases cached stems
	ClearCache()
}

// supportedStemLanguages languages understood by the snowball package
var supportedStemLanguages = map[string]bool{
	"english":   true,
	"spanish":   true,
	"french":    true,
	"russian":   true,
	"swedish":   true,
	"norwegian": true,
	"hungarian": true,
}

// IsSupportedStemLanguage reports whether the language has a Snowball stemmer
func IsSupportedStemLanguage(language string) bool {
	return supportedStemLanguages[strings.ToLower(strings.TrimSpace(language))]
}

// SnowballStemmer implements stemming using the Snowball algorithm
type SnowballStemmer struct {
	language string
	cache    map[string]string
	mu       sync.RWMutex
}

// NewSnowballStemmer creates a cached stemmer for the given language
func NewSnowballStemmer(language string) (*SnowballStemmer, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if !IsSupportedStemLanguage(language) {
		return nil, NewSimilarityError(ErrCodeInvalidInput,
			fmt.Sprintf("unsupported stem language %q", language), nil)
	}
	return &SnowballStemmer{
		language: language,
		cache:    make(map[string]string),
	}, nil
}

// Stem returns the stemmed version of a word, using the cache when possible.
// Example (spanish): "servicios" -> "servici"
func (s *SnowballStemmer) Stem(word string) string {
	if word == "" {
		return ""
	}

	s.mu.RLock()
	if cached, found := s.cache[word]; found {
		s.mu.RUnlock()
		return cached
	}
	s.mu.RUnlock()

	stemmed, err := snowball.Stem(word, s.language, true)
	if err != nil || stemmed == "" {
		// If stemming fails, keep the word as is
		stemmed = word
	}

	s.mu.Lock()
	s.cache[word] = stemmed
	s.mu.Unlock()

	return stemmed
}

// StemTokens returns stemmed versions of multiple words
func (s *SnowballStemmer) StemTokens(tokens []string) []string {
	stemmed := make([]string, len(tokens))
	for i, token := range tokens {
		stemmed[i] = s.Stem(token)
	}
	return stemmed
}

// ClearCache clears the internal cache
func (s *SnowballStemmer) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// CacheSize returns the number of cached items
func (s *SnowballStemmer) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
