package algorithms

import (
	"math"
	"testing"
)

func TestDamerauLevenshtein_Distance(t *testing.T) {
	dl := NewDamerauLevenshtein()

	tests := []struct {
		s1, s2   string
		expected int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"ca", "ac", 1}, // транспозиция
		{"servicio", "sevricio", 1},
		{"привет", "првиет", 1},
	}

	for _, tt := range tests {
		if got := dl.Distance(tt.s1, tt.s2); got != tt.expected {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.expected)
		}
		if got := dl.Distance(tt.s2, tt.s1); got != tt.expected {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.s2, tt.s1, got, tt.expected)
		}
	}
}

func TestDamerauLevenshtein_Similarity(t *testing.T) {
	dl := NewDamerauLevenshtein()

	if got := dl.Similarity("", ""); got != 1.0 {
		t.Errorf("Expected 1.0 for two empty strings, got %f", got)
	}
	if got := dl.Similarity("abcd", "abce"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Expected 0.75, got %f", got)
	}
	if got := dl.Similarity("abc", "xyz"); got != 0.0 {
		t.Errorf("Expected 0.0, got %f", got)
	}
}

func TestJaccardIndex_Similarity(t *testing.T) {
	j := NewJaccardIndex()

	tests := []struct {
		name     string
		a, b     []string
		expected float64
	}{
		{"identical", []string{"muy", "malo"}, []string{"malo", "muy"}, 1.0},
		{"half", []string{"a", "b"}, []string{"b", "c", "a", "d"}, 0.5},
		{"disjoint", []string{"a"}, []string{"b"}, 0.0},
		{"one empty", []string{"a"}, nil, 0.0},
		{"both empty", nil, nil, 1.0},
		{"duplicates ignored", []string{"a", "a", "b"}, []string{"a", "b"}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := j.Similarity(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("Similarity() = %f, want %f", got, tt.expected)
			}
		})
	}
}

func TestNGramGenerator_Generate(t *testing.T) {
	ng := NewNGramGenerator(3)

	grams := ng.Generate("ab")
	expected := []string{"__a", "_ab", "ab_", "b__"}
	if len(grams) != len(expected) {
		t.Fatalf("Expected %d grams, got %d: %v", len(expected), len(grams), grams)
	}
	for i, g := range expected {
		if grams[i] != g {
			t.Errorf("gram[%d] = %q, want %q", i, grams[i], g)
		}
	}

	if len(ng.Generate("")) != 0 {
		t.Error("Expected no grams for empty text")
	}
	if NewNGramGenerator(0).n != 3 {
		t.Error("Expected default gram size 3")
	}
}

func TestNGramGenerator_Similarity(t *testing.T) {
	ng := NewNGramGenerator(3)

	if got := ng.Similarity("servicio", "servicio"); got != 1.0 {
		t.Errorf("Expected 1.0, got %f", got)
	}
	near := ng.Similarity("servicio", "servicios")
	far := ng.Similarity("servicio", "paquete")
	if near <= far {
		t.Errorf("Expected near (%f) > far (%f)", near, far)
	}
}

func TestPositionalTokenSimilarity(t *testing.T) {
	pt := NewPositionalTokenSimilarity()

	same := []string{"muy", "buen", "servicio"}
	if got := pt.Similarity(same, same); got != 1.0 {
		t.Errorf("Expected 1.0 for identical tokens, got %f", got)
	}

	reordered := []string{"servicio", "buen", "muy"}
	got := pt.Similarity(same, reordered)
	if got <= 0 || got >= 1 {
		t.Errorf("Expected partial similarity for reordered tokens, got %f", got)
	}
	if rev := pt.Similarity(reordered, same); rev != got {
		t.Errorf("Expected symmetric result, got %f and %f", got, rev)
	}

	if got := pt.Similarity(same, []string{"otro"}); got != 0 {
		t.Errorf("Expected 0 for disjoint tokens, got %f", got)
	}
	if got := pt.Similarity(nil, same); got != 0 {
		t.Errorf("Expected 0 when one side is empty, got %f", got)
	}
}

func TestSnowballStemmer(t *testing.T) {
	stemmer, err := NewSnowballStemmer("English")
	if err != nil {
		t.Fatalf("NewSnowballStemmer() error = %v", err)
	}

	if got := stemmer.Stem("running"); got != "run" {
		t.Errorf("Stem(running) = %q, want run", got)
	}
	if stemmer.Stem("connection") != stemmer.Stem("connections") {
		t.Error("Expected plural and singular forms to share a stem")
	}
	if stemmer.CacheSize() != 3 {
		t.Errorf("Expected 3 cached stems, got %d", stemmer.CacheSize())
	}

	stemmer.ClearCache()
	if stemmer.CacheSize() != 0 {
		t.Error("Expected empty cache after ClearCache")
	}
}

func TestNewSnowballStemmer_Unsupported(t *testing.T) {
	_, err := NewSnowballStemmer("klingon")
	if !IsInvalidInput(err) {
		t.Errorf("Expected invalid input error, got %v", err)
	}
	if IsSupportedStemLanguage("") {
		t.Error("Empty language must not be supported")
	}
}
