package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBatch(id int, offset int64, texts ...string) Batch {
	records := make([]Record, len(texts))
	for i, text := range texts {
		records[i] = Record{ID: offset + int64(i), Text: text}
	}
	return Batch{ID: id, Records: records, Offset: offset, Size: len(records)}
}

func newTestResolver(t *testing.T, strategy Strategy, state *GlobalDedupState) *Resolver {
	t.Helper()
	resolver, err := NewResolver(ResolverConfig{
		Threshold:      0.95,
		Strategy:       strategy,
		TimestampField: "timestamp",
		State:          state,
	})
	require.NoError(t, err)
	return resolver
}

func recordIDs(records []Record) []int64 {
	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestResolver_CommentScenario(t *testing.T) {
	resolver := newTestResolver(t, KeepFirst, nil)
	batch := makeBatch(1, 0, "Excelente servicio", "EXCELENTE SERVICIO!!!", "Muy malo", "Excelente servicio")

	result, err := resolver.Resolve(context.Background(), batch, ResolveOptions{Fuzzy: true})
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 2}, recordIDs(result.Records))
	assert.Equal(t, 2, result.Removed())
	require.Len(t, result.Groups, 1)

	group := result.Groups[0]
	assert.Equal(t, int64(0), group.RepresentativeID)
	assert.Equal(t, int64(0), group.KeptID)
	assert.Equal(t, []int64{0, 1, 3}, group.MemberIDs)
	assert.Equal(t, GroupExact, group.Kind)
	assert.Equal(t, "excelente servicio", group.NormalizedText)
	assert.Equal(t, 2, result.ExactDuplicates)
}

func TestResolver_FuzzyGroup(t *testing.T) {
	resolver, err := NewResolver(ResolverConfig{Threshold: 0.8, Strategy: KeepFirst})
	require.NoError(t, err)

	batch := makeBatch(1, 0,
		"El pedido llego a tiempo y en perfecto estado",
		"Nada que ver con lo anterior",
		"El pedido llego a tiempo y en perfecto estado!!",
		"El pedido llego a tiempo y en perfecto estadoo",
	)

	result, err := resolver.Resolve(context.Background(), batch, ResolveOptions{Fuzzy: true})
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 1}, recordIDs(result.Records))
	require.Len(t, result.Groups, 1)
	group := result.Groups[0]
	assert.Equal(t, GroupFuzzy, group.Kind)
	assert.Equal(t, 1, result.ExactDuplicates)
	assert.Equal(t, 1, result.FuzzyDuplicates)
	for id, score := range group.SimilarityScores {
		assert.GreaterOrEqual(t, score, 0.8, "member %d below threshold", id)
	}

	// Без нечеткого сравнения остается только точный дубликат
	exactOnly, err := resolver.Resolve(context.Background(), batch, ResolveOptions{Fuzzy: false})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 3}, recordIDs(exactOnly.Records))
	assert.Zero(t, exactOnly.Comparisons)
}

func TestResolver_EmptyRecordsNeverGrouped(t *testing.T) {
	resolver := newTestResolver(t, KeepFirst, NewGlobalDedupState(10, EvictFIFO, 1))

	batch := makeBatch(1, 0, "", "   ", "!!!", "hola")
	result, err := resolver.Resolve(context.Background(), batch, ResolveOptions{Fuzzy: true})
	require.NoError(t, err)

	assert.Len(t, result.Records, 4)
	assert.Empty(t, result.Groups)
	assert.Equal(t, 3, result.EmptyRecords)
}

func TestResolver_Strategies(t *testing.T) {
	records := []Record{
		{ID: 10, Text: "buen producto", Metadata: Metadata{{"rating", "4"}, {"channel", "web"}}},
		{ID: 11, Text: "Buen producto.", Metadata: Metadata{{"rating", "5"}, {"channel", "app"}, {"timestamp", "2024-03-01"}}},
		{ID: 12, Text: "BUEN PRODUCTO", Metadata: Metadata{{"rating", ""}, {"channel", "app"}}},
	}
	batch := Batch{ID: 1, Records: records, Size: len(records), Offset: 10}

	tests := []struct {
		strategy Strategy
		keptID   int64
	}{
		{KeepFirst, 10},
		{KeepLast, 12},
		{KeepBest, 11},
		{Merge, 10},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			resolver := newTestResolver(t, tt.strategy, nil)
			result, err := resolver.Resolve(context.Background(), batch, ResolveOptions{Fuzzy: true})
			require.NoError(t, err)

			require.Len(t, result.Records, 1)
			require.Len(t, result.Groups, 1)
			assert.Equal(t, tt.keptID, result.Records[0].ID)
			assert.Equal(t, tt.keptID, result.Groups[0].KeptID)
			assert.Equal(t, int64(10), result.Groups[0].RepresentativeID)
		})
	}
}

func TestResolver_KeepBestRetainsHighestQuality(t *testing.T) {
	gofakeit.Seed(11)
	scorer := NewQualityScorer("timestamp")

	for round := 0; round < 20; round++ {
		base := gofakeit.Sentence(6)
		var records []Record
		for i := 0; i < 5; i++ {
			md := Metadata{{"city", ""}}
			if gofakeit.Bool() {
				md[0].Value = gofakeit.City()
			}
			if gofakeit.Bool() {
				md = append(md, Field{"timestamp", gofakeit.Date().Format("2006-01-02")})
			}
			text := base
			if i%2 == 1 {
				text = strings.ToUpper(base)
			}
			records = append(records, Record{ID: int64(round*10 + i), Text: text, Metadata: md})
		}

		resolver := newTestResolver(t, KeepBest, nil)
		result, err := resolver.Resolve(context.Background(), Batch{ID: 1, Records: records}, ResolveOptions{Fuzzy: true})
		require.NoError(t, err)
		require.Len(t, result.Records, 1)

		best := 0.0
		for _, r := range records {
			best = max(best, scorer.Score(r))
		}
		assert.Equal(t, best, scorer.Score(result.Records[0]))
	}
}

func TestResolver_MergeKeepsLongestText(t *testing.T) {
	resolver, err := NewResolver(ResolverConfig{Threshold: 0.8, Strategy: Merge, TimestampField: "timestamp"})
	require.NoError(t, err)

	records := []Record{
		{ID: 0, Text: "entrega rapida y buena atencion", Metadata: Metadata{{"rating", "4"}, {"timestamp", "2024-05-02"}}},
		{ID: 1, Text: "Entrega rápida y buena atención!!!", Metadata: Metadata{{"rating", "5"}, {"timestamp", "2024-05-01"}}},
		{ID: 2, Text: "entrega rapida y buena atencion", Metadata: Metadata{{"rating", "3"}, {"timestamp", "2024-05-03"}}},
	}

	result, err := resolver.Resolve(context.Background(), Batch{ID: 1, Records: records}, ResolveOptions{Fuzzy: true})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	merged := result.Records[0]
	maxLen := 0
	for _, r := range records {
		maxLen = max(maxLen, utf8.RuneCountInString(r.Text))
	}
	assert.GreaterOrEqual(t, utf8.RuneCountInString(merged.Text), maxLen)
	assert.Equal(t, []int64{0, 1, 2}, merged.MergedFrom)
	assert.Equal(t, 3, merged.MergeCount)

	rating, _ := merged.Metadata.Get("rating")
	assert.Equal(t, "4", rating)
	ts, _ := merged.Metadata.Get("timestamp")
	assert.Equal(t, "2024-05-01", ts)
}

func TestResolver_Idempotent(t *testing.T) {
	gofakeit.Seed(3)
	var texts []string
	for i := 0; i < 60; i++ {
		sentence := gofakeit.Sentence(5)
		texts = append(texts, sentence)
		if i%3 == 0 {
			texts = append(texts, strings.ToUpper(sentence)+"!!")
		}
	}

	resolver := newTestResolver(t, KeepFirst, nil)
	first, err := resolver.Resolve(context.Background(), makeBatch(1, 0, texts...), ResolveOptions{Fuzzy: true})
	require.NoError(t, err)
	assert.Positive(t, first.Removed())

	second, err := resolver.Resolve(context.Background(), Batch{ID: 2, Records: first.Records}, ResolveOptions{Fuzzy: true})
	require.NoError(t, err)
	assert.Zero(t, second.Removed())
	assert.Empty(t, second.Groups)
}

func TestResolver_IdempotentForEveryStrategy(t *testing.T) {
	// Цепочка: b похож на a и на c, a и c между собой ниже порога
	const threshold = 0.7786
	base := "el servicio fue muy bueno"
	texts := []string{base, base + " hoy", base + " hoy si", "la entrega llego tarde"}

	tests := []struct {
		strategy Strategy
		output   []int64
	}{
		{KeepFirst, []int64{0, 2, 3}},
		{KeepLast, []int64{2, 3}},
		{KeepBest, nil},
		{Merge, []int64{0, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy.String(), func(t *testing.T) {
			resolver, err := NewResolver(ResolverConfig{Threshold: threshold, Strategy: tt.strategy, TimestampField: "timestamp"})
			require.NoError(t, err)

			first, err := resolver.Resolve(context.Background(), makeBatch(1, 0, texts...), ResolveOptions{Fuzzy: true})
			require.NoError(t, err)
			assert.Positive(t, first.Removed())
			if tt.output != nil {
				assert.Equal(t, tt.output, recordIDs(first.Records))
			}

			seen := make(map[int64]bool)
			for _, g := range first.Groups {
				for _, id := range g.MemberIDs {
					assert.False(t, seen[id], "record %d belongs to two groups", id)
					seen[id] = true
				}
			}

			second, err := resolver.Resolve(context.Background(),
				Batch{ID: 2, Records: first.Records, Size: len(first.Records)}, ResolveOptions{Fuzzy: true})
			require.NoError(t, err)
			assert.Zero(t, second.Removed())
			assert.Empty(t, second.Groups)
		})
	}
}

func TestResolver_IdempotentOnGeneratedVariants(t *testing.T) {
	faker := gofakeit.New(17)
	var texts []string
	for i := 0; i < 40; i++ {
		sentence := faker.Sentence(6)
		texts = append(texts, sentence)
		switch i % 4 {
		case 0:
			texts = append(texts, sentence+" "+faker.Word())
		case 1:
			texts = append(texts, sentence+" "+faker.Word()+" "+faker.Word(), strings.ToUpper(sentence))
		}
	}

	for _, strategy := range []Strategy{KeepFirst, KeepLast, KeepBest, Merge} {
		t.Run(strategy.String(), func(t *testing.T) {
			resolver, err := NewResolver(ResolverConfig{Threshold: 0.8, Strategy: strategy, TimestampField: "timestamp"})
			require.NoError(t, err)

			first, err := resolver.Resolve(context.Background(), makeBatch(1, 0, texts...), ResolveOptions{Fuzzy: true})
			require.NoError(t, err)
			require.Positive(t, first.Removed())

			removedByGroups := 0
			for _, g := range first.Groups {
				removedByGroups += g.Size() - 1
			}
			assert.Equal(t, first.Removed(), removedByGroups)

			second, err := resolver.Resolve(context.Background(),
				Batch{ID: 2, Records: first.Records, Size: len(first.Records)}, ResolveOptions{Fuzzy: true})
			require.NoError(t, err)
			assert.Zero(t, second.Removed())
		})
	}
}

func TestResolver_FoldedAnchorRedirectsLaterBatches(t *testing.T) {
	state := NewGlobalDedupState(0, EvictFIFO, 1)
	base := "el servicio fue muy bueno"
	resolver, err := NewResolver(ResolverConfig{Threshold: 0.7786, Strategy: KeepLast, State: state})
	require.NoError(t, err)

	first, err := resolver.Resolve(context.Background(),
		makeBatch(1, 0, base, base+" hoy", base+" hoy si"), ResolveOptions{Fuzzy: true})
	require.NoError(t, err)
	require.Len(t, first.Groups, 1)
	assert.Equal(t, []int64{0, 1, 2}, first.Groups[0].MemberIDs)
	assert.Len(t, first.Members, 3)

	// Точная копия поглощенного якоря относится к группе записи 0
	second, err := resolver.Resolve(context.Background(),
		makeBatch(2, 3, base+" hoy si"), ResolveOptions{Fuzzy: false})
	require.NoError(t, err)
	require.Len(t, second.Groups, 1)
	assert.Equal(t, int64(0), second.Groups[0].RepresentativeID)
	assert.Empty(t, second.Records)
}

func TestResolver_CrossBatch(t *testing.T) {
	state := NewGlobalDedupState(100, EvictFIFO, 1)
	resolver, err := NewResolver(ResolverConfig{Threshold: 0.8, Strategy: KeepFirst, State: state})
	require.NoError(t, err)

	first, err := resolver.Resolve(context.Background(),
		makeBatch(1, 0, "la aplicacion se cierra sola al abrir el carrito", "todo bien"),
		ResolveOptions{Fuzzy: true})
	require.NoError(t, err)
	assert.Len(t, first.Records, 2)

	second, err := resolver.Resolve(context.Background(),
		makeBatch(2, 2, "TODO BIEN", "La aplicación se cierra sola al abrir carrito", "nuevo comentario"),
		ResolveOptions{Fuzzy: true})
	require.NoError(t, err)

	assert.Equal(t, []int64{4}, recordIDs(second.Records))
	require.Len(t, second.Groups, 2)
	for _, g := range second.Groups {
		assert.True(t, g.CrossBatch)
	}
	assert.Equal(t, int64(0), second.Groups[0].RepresentativeID)
	assert.Equal(t, []int64{0, 3}, second.Groups[0].MemberIDs)
	assert.Equal(t, int64(1), second.Groups[1].RepresentativeID)
	assert.Equal(t, GroupExact, second.Groups[1].Kind)

	stats := state.Stats()
	assert.Equal(t, 4, stats.Hashes, "three anchors plus the fuzzy member hash")
	assert.Equal(t, 3, stats.Sampled)
}

func TestResolver_RetryKeepsOwnRegistration(t *testing.T) {
	state := NewGlobalDedupState(100, EvictFIFO, 1)
	resolver := newTestResolver(t, KeepFirst, state)

	// Имитация прерванной попытки: якорь уже зарегистрирован
	state.LookupOrInsert(resolver.normalizer.Normalize("hola mundo").Hash, 5)

	result, err := resolver.Resolve(context.Background(), makeBatch(3, 5, "Hola mundo", "hola, mundo"), ResolveOptions{Fuzzy: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, recordIDs(result.Records))
	require.Len(t, result.Groups, 1)
	assert.False(t, result.Groups[0].CrossBatch)
}

func TestResolver_ConcurrentBatchesRegisterOnce(t *testing.T) {
	state := NewGlobalDedupState(0, EvictFIFO, 1)
	resolver := newTestResolver(t, KeepFirst, state)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*BatchResult, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			texts := []string{"mismo texto", fmt.Sprintf("texto unico %d", w)}
			res, err := resolver.Resolve(context.Background(), makeBatch(w+1, int64(w*2), texts...), ResolveOptions{Fuzzy: false})
			assert.NoError(t, err)
			results[w] = res
		}(w)
	}
	wg.Wait()

	kept := 0
	for _, res := range results {
		for _, r := range res.Records {
			if r.Text == "mismo texto" {
				kept++
			}
		}
	}
	assert.Equal(t, 1, kept, "shared text must survive exactly once")
}

func TestResolver_ContextCancelled(t *testing.T) {
	resolver := newTestResolver(t, KeepFirst, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, makeBatch(1, 0, "a", "b"), ResolveOptions{Fuzzy: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewResolver_InvalidConfig(t *testing.T) {
	_, err := NewResolver(ResolverConfig{Threshold: 0, Strategy: KeepFirst})
	assert.True(t, IsConfigurationError(err))

	_, err = NewResolver(ResolverConfig{Threshold: 0.9, Strategy: Strategy(42)})
	assert.True(t, IsConfigurationError(err))
}
