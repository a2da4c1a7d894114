package dedup

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commentdedup/normalization/algorithms"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input    string
		expected Strategy
	}{
		{"keep_first", KeepFirst},
		{"KEEP_LAST", KeepLast},
		{" keep_best ", KeepBest},
		{"merge", Merge},
	}
	for _, tt := range tests {
		s, err := ParseStrategy(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, s)
	}

	_, err := ParseStrategy("keep_random")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestStrategy_TextRoundTrip(t *testing.T) {
	var s Strategy
	require.NoError(t, s.UnmarshalText([]byte("merge")))
	assert.Equal(t, Merge, s)

	text, err := KeepBest.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "keep_best", string(text))

	_, err = Strategy(9).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "Strategy(9)", Strategy(9).String())
}

func TestExactMatchIndex_LookupOrInsert(t *testing.T) {
	idx := NewExactMatchIndex()
	normalizer := algorithms.NewTextNormalizer(algorithms.DefaultNormalizerOptions())
	hash := normalizer.Normalize("Muy malo").Hash

	_, found := idx.LookupOrInsert(hash, 7)
	assert.False(t, found)

	existing, found := idx.LookupOrInsert(hash, 9)
	assert.True(t, found)
	assert.Equal(t, int64(7), existing)

	_, found = idx.LookupOrInsert(algorithms.EmptyHash, 1)
	assert.False(t, found)
	_, found = idx.LookupOrInsert(algorithms.EmptyHash, 2)
	assert.False(t, found, "empty hash is never registered")
	assert.Equal(t, 1, idx.Len())
}

func TestGlobalDedupState_ConcurrentInsert(t *testing.T) {
	state := NewGlobalDedupState(0, EvictFIFO, 1)
	hash := algorithms.NewTextNormalizer(algorithms.DefaultNormalizerOptions()).Normalize("mismo").Hash

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, found := state.LookupOrInsert(hash, id); !found {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}(int64(i))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	entry, ok := state.Lookup(hash)
	require.True(t, ok)
	assert.Equal(t, winners[0], entry.ID)
	assert.Equal(t, 1, state.Stats().Hashes)
}

func TestCandidateSample_FIFO(t *testing.T) {
	sample := NewCandidateSample(3, EvictFIFO, 1)
	for i := int64(0); i < 5; i++ {
		sample.Add(SampleEntry{ID: i})
	}

	ids := map[int64]bool{}
	for _, e := range sample.Snapshot() {
		ids[e.ID] = true
	}
	assert.Equal(t, map[int64]bool{2: true, 3: true, 4: true}, ids)
}

func TestCandidateSample_Reservoir(t *testing.T) {
	run := func() []int64 {
		sample := NewCandidateSample(10, EvictReservoir, 42)
		for i := int64(0); i < 1000; i++ {
			sample.Add(SampleEntry{ID: i})
		}
		var ids []int64
		for _, e := range sample.Snapshot() {
			ids = append(ids, e.ID)
		}
		return ids
	}

	first := run()
	assert.Len(t, first, 10)
	assert.Equal(t, first, run(), "same seed gives the same sample")

	late := 0
	for _, id := range first {
		if id >= 10 {
			late++
		}
	}
	assert.Positive(t, late, "reservoir must replace early entries")
}

func TestCandidateSample_Disabled(t *testing.T) {
	sample := NewCandidateSample(0, EvictFIFO, 1)
	sample.Add(SampleEntry{ID: 1})
	assert.Zero(t, sample.Len())
}

func TestParseEvictionPolicy(t *testing.T) {
	p, err := ParseEvictionPolicy("Reservoir")
	require.NoError(t, err)
	assert.Equal(t, EvictReservoir, p)

	p, err = ParseEvictionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, EvictFIFO, p)

	_, err = ParseEvictionPolicy("lru")
	assert.True(t, IsConfigurationError(err))
}

func TestQualityScorer(t *testing.T) {
	scorer := NewQualityScorer("timestamp")

	assert.Zero(t, scorer.Score(Record{Text: "   "}))

	short := scorer.Score(Record{Text: "ok"})
	long := scorer.Score(Record{Text: strings.Repeat("a", 500)})
	assert.Less(t, short, long)
	assert.InDelta(t, 0.6, long, 1e-9, "length contribution is capped")

	full := scorer.Score(Record{
		Text:     strings.Repeat("b", 200),
		Metadata: Metadata{{"city", "Lima"}, {"timestamp", "2024-01-01"}},
	})
	assert.InDelta(t, 1.0, full, 1e-9)
}

func TestMergeValues(t *testing.T) {
	assert.Equal(t, "4.5", mergeValues([]string{"4", "5"}))
	assert.Equal(t, "3", mergeValues([]string{"2,5", "3,5"}))
	assert.Equal(t, "app", mergeValues([]string{"web", "app", "app"}))
	assert.Equal(t, "web", mergeValues([]string{"web", "app"}), "tie goes to the first value")
	assert.Equal(t, "", mergeValues(nil))
}

func TestMergeValues_NonNumericLookalikes(t *testing.T) {
	// NaN и Inf разбираются strconv, но это категориальные значения
	assert.Equal(t, "NaN", mergeValues([]string{"NaN", "NaN", "Inf"}))
	assert.Equal(t, "infinity", mergeValues([]string{"infinity", "3"}))
	assert.Equal(t, "1,234", mergeValues([]string{"1,234", "1,234", "2"}))
	assert.Equal(t, "0x10", mergeValues([]string{"0x10", "0x10"}))
	assert.Equal(t, "2.25", mergeValues([]string{"1,5", "3"}))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"4", 4, true},
		{"-2.5", -2.5, true},
		{"3,75", 3.75, true},
		{"1e3", 1000, true},
		{"1,234", 0, false},
		{"1,234.5", 0, false},
		{"1,2,3", 0, false},
		{"NaN", 0, false},
		{"+Inf", 0, false},
		{"infinity", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestEarliestTimestamp(t *testing.T) {
	assert.Equal(t, "01.02.2023", earliestTimestamp([]string{"2023-03-01", "01.02.2023", "garbage"}))
	assert.Equal(t, "garbage", earliestTimestamp([]string{"garbage"}))
	assert.Equal(t, "", earliestTimestamp(nil))
}

func TestError_Kinds(t *testing.T) {
	cause := errors.New("bad row")
	err := fmt.Errorf("reading: %w", NewSourceReadError(3, cause))

	assert.True(t, IsSourceReadError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindSourceRead, KindOf(err))
	assert.Contains(t, err.Error(), "batch 3")

	timeout := NewBatchTimeoutError(2, time.Second, nil)
	assert.True(t, IsBatchTimeoutError(timeout))
	assert.False(t, IsConfigurationError(timeout))

	pressure := NewMemoryPressureError(1.2, 64)
	assert.True(t, IsMemoryPressureError(pressure))
	assert.Equal(t, 1.2, pressure.Details["pressure"])

	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
