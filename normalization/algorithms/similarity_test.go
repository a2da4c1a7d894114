package algorithms

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*SimilarityEngine, *TextNormalizer) {
	t.Helper()
	engine, err := NewSimilarityEngine(nil, nil)
	require.NoError(t, err)
	return engine, NewTextNormalizer(DefaultNormalizerOptions())
}

func TestSimilarityEngine_Identity(t *testing.T) {
	engine, normalizer := newTestEngine(t)

	gofakeit.Seed(42)
	for i := 0; i < 50; i++ {
		text := normalizer.Normalize(gofakeit.Sentence(8))
		assert.Equal(t, 1.0, engine.Similarity(text, text))
	}
}

func TestSimilarityEngine_Symmetric(t *testing.T) {
	engine, normalizer := newTestEngine(t)

	gofakeit.Seed(7)
	for i := 0; i < 100; i++ {
		a := normalizer.Normalize(gofakeit.Sentence(6))
		b := normalizer.Normalize(gofakeit.Sentence(6))

		ab := engine.Similarity(a, b)
		ba := engine.Similarity(b, a)
		if ab != ba {
			t.Fatalf("similarity(%q, %q) = %v, reverse = %v", a.Cleaned, b.Cleaned, ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("similarity out of range: %v", ab)
		}
	}
}

func TestSimilarityEngine_EmptyText(t *testing.T) {
	engine, normalizer := newTestEngine(t)

	empty := normalizer.Normalize("  !!! ")
	text := normalizer.Normalize("Muy malo")

	assert.Equal(t, 0.0, engine.Similarity(empty, text))
	assert.Equal(t, 0.0, engine.Similarity(text, empty))
	assert.Equal(t, 0.0, engine.Similarity(empty, empty), "empty texts are never similar")
}

func TestSimilarityEngine_Ordering(t *testing.T) {
	engine, normalizer := newTestEngine(t)

	base := normalizer.Normalize("excelente servicio muy rapido")
	typo := normalizer.Normalize("excelente servicio muy rapdo")
	unrelated := normalizer.Normalize("el paquete llego roto y tarde")

	typoScore := engine.Similarity(base, typo)
	unrelatedScore := engine.Similarity(base, unrelated)

	assert.Greater(t, typoScore, 0.7)
	assert.Less(t, typoScore, 1.0)
	assert.Less(t, unrelatedScore, 0.3)
}

func TestSimilarityEngine_Matches(t *testing.T) {
	engine, normalizer := newTestEngine(t)

	a := engine.Profile(normalizer.Normalize("el producto llego en perfecto estado"))
	b := engine.Profile(normalizer.Normalize("el producto llego en perfecto estado gracias"))
	short := engine.Profile(normalizer.Normalize("ok"))

	score, ok := engine.Matches(a, b, 0.5)
	assert.True(t, ok)
	assert.InDelta(t, engine.Compare(a, b), score, 1e-12)

	_, ok = engine.Matches(a, short, 0.5)
	assert.False(t, ok)

	score, ok = engine.Matches(a, a, 0.99)
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)
}

func TestSimilarityEngine_WithStemmer(t *testing.T) {
	stemmer, err := NewSnowballStemmer("english")
	require.NoError(t, err)

	plain, err := NewSimilarityEngine(nil, nil)
	require.NoError(t, err)
	stemmed, err := NewSimilarityEngine(nil, stemmer)
	require.NoError(t, err)

	normalizer := NewTextNormalizer(DefaultNormalizerOptions())
	a := normalizer.Normalize("fast connection and running service")
	b := normalizer.Normalize("fast connections and run services")

	assert.Greater(t, stemmed.Scores(a, b).WordSet, plain.Scores(a, b).WordSet)
	assert.Greater(t, stemmer.CacheSize(), 0)

	stemmed.ClearCache()
	assert.Equal(t, 0, stemmer.CacheSize())
}

func TestNewSimilarityEngine_InvalidWeights(t *testing.T) {
	_, err := NewSimilarityEngine(&SimilarityWeights{EditDistance: -1, WordSet: 1}, nil)
	require.Error(t, err)

	var se *SimilarityError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeInvalidWeights, se.Code)

	_, err = NewSimilarityEngine(&SimilarityWeights{}, nil)
	assert.Error(t, err)
}

func TestValidateThreshold(t *testing.T) {
	assert.NoError(t, ValidateThreshold(0.95))
	assert.NoError(t, ValidateThreshold(1.0))
	assert.Error(t, ValidateThreshold(0))
	assert.Error(t, ValidateThreshold(1.01))
	assert.Error(t, ValidateThreshold(-0.5))
}
