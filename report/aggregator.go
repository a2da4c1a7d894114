package report

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"commentdedup/batch"
	"commentdedup/dedup"
)

// DefaultTopN сколько самых частых текстов попадает в отчет
const DefaultTopN = 10

// AggregatorOptions параметры агрегатора
type AggregatorOptions struct {
	TopN int

	// Strategy и TimestampField применяются заново к группам, которые
	// пополнились записями других порций
	Strategy       dedup.Strategy
	TimestampField string

	// Stores хранилища записей; nil - в памяти
	Stores *Stores
}

// RunInfo сведения о сессии для итогового отчета
type RunInfo struct {
	SessionID  string
	StartedAt  time.Time
	Summary    batch.Summary
	MemoryPeak uint64
	State      dedup.StateStats
}

// Aggregator сводит результаты порций в отчет сессии.
// Все накопления коммутативны: итог не зависит от порядка поступления порций.
type Aggregator struct {
	mu   sync.Mutex
	opts AggregatorOptions

	input       int
	output      int
	removed     int
	exact       int
	fuzzy       int
	empty       int
	unprocessed int
	comparisons int64
	recovered   int
	quality     dedup.QualityStats

	groups map[int64]*dedup.DuplicateGroup // локальные группы по якорю
	cross  map[int64][]dedup.DuplicateGroup

	stores *Stores
	scorer *dedup.QualityScorer
	// final группы после присоединения межпорционных, вычисляются один раз
	final    []dedup.DuplicateGroup
	storeErr error

	errors      []ErrorEntry
	partialSeen bool
}

// NewAggregator создает агрегатор
func NewAggregator(opts AggregatorOptions) *Aggregator {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	stores := opts.Stores
	if stores == nil {
		stores = NewMemoryStores()
	}
	return &Aggregator{
		opts:   opts,
		groups: make(map[int64]*dedup.DuplicateGroup),
		cross:  make(map[int64][]dedup.DuplicateGroup),
		stores: stores,
		scorer: dedup.NewQualityScorer(opts.TimestampField),
	}
}

// Stores хранилища записей агрегатора
func (a *Aggregator) Stores() *Stores {
	return a.stores
}

// keepStoreErr запоминает первую ошибку хранилища
func (a *Aggregator) keepStoreErr(err error) {
	if err != nil && a.storeErr == nil {
		a.storeErr = err
	}
}

// HandleOutcome учитывает итог порции (реализует часть batch.Sink)
func (a *Aggregator) HandleOutcome(outcome *batch.Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.input += outcome.Size
	a.unprocessed += outcome.UnprocessedCount
	a.keepStoreErr(a.stores.Unprocessed.Put(outcome.Unprocessed...))
	for _, result := range outcome.Results {
		a.addResult(result)
	}

	switch {
	case outcome.State == batch.Failed:
		a.partialSeen = true
		entry := ErrorEntry{
			BatchID:     outcome.BatchID,
			Kind:        dedup.KindOf(outcome.Err),
			Attempts:    len(outcome.Attempts),
			Unprocessed: outcome.UnprocessedCount,
		}
		if outcome.Err != nil {
			entry.Message = outcome.Err.Error()
		}
		if entry.Kind == "" {
			entry.Kind = dedup.KindBatchProcessing
		}
		a.errors = append(a.errors, entry)
	case len(outcome.Attempts) > 1:
		a.recovered++
	}
}

// HandleProgress не используется агрегатором
func (a *Aggregator) HandleProgress(batch.ProgressEvent) {}

func (a *Aggregator) addResult(r *dedup.BatchResult) {
	a.output += len(r.Records)
	a.removed += r.Removed()
	a.exact += r.ExactDuplicates
	a.fuzzy += r.FuzzyDuplicates
	a.empty += r.EmptyRecords
	a.comparisons += r.Comparisons
	a.quality.Merge(r.Quality)
	a.keepStoreErr(a.stores.Records.Put(r.Records...))
	a.keepStoreErr(a.stores.Members.Put(r.Members...))

	for _, g := range r.Groups {
		if g.CrossBatch {
			a.cross[g.RepresentativeID] = append(a.cross[g.RepresentativeID], g)
			continue
		}
		group := g
		a.groups[g.RepresentativeID] = &group
	}
}

// Records итоговые записи в исходном порядке. Межпорционные группы
// разрешаются при первом вызове Report, до него список предварительный.
func (a *Aggregator) Records() ([]dedup.Record, error) {
	return Collect(a.stores.Records)
}

// Unprocessed записи порций, не обработанных после всех попыток
func (a *Aggregator) Unprocessed() ([]dedup.Record, error) {
	return Collect(a.stores.Unprocessed)
}

// Report собирает итоговый отчет
func (a *Aggregator) Report(info RunInfo) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.final == nil {
		a.final = a.mergedGroups()
	}
	groups := a.final

	r := &Report{
		SessionID:           info.SessionID,
		StartedAt:           info.StartedAt,
		FinishedAt:          time.Now(),
		TotalInput:          a.input,
		TotalOutput:         a.output,
		DuplicatesRemoved:   a.removed,
		ExactDuplicateCount: a.exact,
		FuzzyDuplicateCount: a.fuzzy,
		EmptyRecords:        a.empty,
		Unprocessed:         a.unprocessed,
		DuplicateGroups:     groups,
		GroupSizeHistogram:  make(map[int]int),
		TopTexts:            topTexts(groups, a.opts.TopN),
		Quality: QualitySummary{
			Mean:    a.quality.Mean(),
			Records: a.quality.Count,
			High:    a.quality.High,
			Medium:  a.quality.Medium,
			Low:     a.quality.Low,
		},
		Performance: Performance{
			Elapsed:          info.Summary.Elapsed,
			MemoryPeakBytes:  info.MemoryPeak,
			Batches:          info.Summary.Batches,
			RecoveredBatches: a.recovered,
			BatchSizes:       info.Summary.BatchSizes,
			Comparisons:      a.comparisons,
		},
		State:     info.State,
		Cancelled: info.Summary.Cancelled,
	}
	if a.input > 0 {
		r.DuplicateRate = float64(a.removed) / float64(a.input)
	}
	if secs := info.Summary.Elapsed.Seconds(); secs > 0 {
		r.Performance.ItemsPerSecond = float64(a.input) / secs
	}
	for _, g := range groups {
		r.GroupSizeHistogram[g.Size()]++
	}

	r.Errors = append([]ErrorEntry{}, a.errors...)
	if n := len(info.Summary.PressureErrors); n > 0 {
		r.Errors = append(r.Errors, ErrorEntry{
			Kind:        dedup.KindMemoryPressure,
			Message:     info.Summary.PressureErrors[n-1].Error(),
			Occurrences: n,
		})
	}
	if info.Summary.ReadErr != nil {
		r.Errors = append(r.Errors, ErrorEntry{
			Kind:    dedup.KindOf(info.Summary.ReadErr),
			Message: info.Summary.ReadErr.Error(),
		})
	}
	if a.storeErr != nil {
		r.Errors = append(r.Errors, ErrorEntry{
			Kind:    dedup.KindBatchProcessing,
			Message: fmt.Sprintf("record store: %v", a.storeErr),
		})
	}
	sort.SliceStable(r.Errors, func(i, j int) bool {
		if r.Errors[i].BatchID != r.Errors[j].BatchID {
			return r.Errors[i].BatchID < r.Errors[j].BatchID
		}
		return r.Errors[i].Kind < r.Errors[j].Kind
	})

	r.Partial = a.partialSeen || r.Cancelled || info.Summary.ReadErr != nil || a.storeErr != nil
	return r
}

// mergedGroups присоединяет межпорционные группы к группам их якорей
// и заново применяет стратегию к пополненным группам.
func (a *Aggregator) mergedGroups() []dedup.DuplicateGroup {
	merged := make(map[int64]*dedup.DuplicateGroup, len(a.groups)+len(a.cross))
	// Якорь, поглощенный другой группой своей порции, указывает на нее
	owner := make(map[int64]int64)
	for id, g := range a.groups {
		copied := *g
		copied.MemberIDs = append([]int64(nil), g.MemberIDs...)
		copied.SimilarityScores = make(map[int64]float64, len(g.SimilarityScores))
		for k, v := range g.SimilarityScores {
			copied.SimilarityScores[k] = v
		}
		merged[id] = &copied
		if len(a.cross) > 0 {
			for _, member := range g.MemberIDs {
				owner[member] = id
			}
		}
	}

	anchors := make([]int64, 0, len(a.cross))
	for anchor := range a.cross {
		anchors = append(anchors, anchor)
	}
	sort.Slice(anchors, func(i, j int) bool { return anchors[i] < anchors[j] })

	// previous запись, оставленная для группы до присоединения
	previous := make(map[int64]int64)
	for _, anchor := range anchors {
		crossGroups := append([]dedup.DuplicateGroup(nil), a.cross[anchor]...)
		sort.Slice(crossGroups, func(i, j int) bool {
			return firstMember(crossGroups[i], anchor) < firstMember(crossGroups[j], anchor)
		})

		targetID := anchor
		if id, ok := owner[anchor]; ok {
			targetID = id
		}
		target, ok := merged[targetID]
		if !ok {
			target = &dedup.DuplicateGroup{
				RepresentativeID: anchor,
				KeptID:           anchor,
				MemberIDs:        []int64{anchor},
				SimilarityScores: map[int64]float64{anchor: 1.0},
				Kind:             dedup.GroupExact,
				NormalizedText:   crossGroups[0].NormalizedText,
			}
			merged[targetID] = target
		}
		if _, seen := previous[targetID]; !seen {
			previous[targetID] = target.KeptID
		}
		target.CrossBatch = true

		present := make(map[int64]bool, len(target.MemberIDs))
		for _, id := range target.MemberIDs {
			present[id] = true
		}
		for _, cg := range crossGroups {
			for _, id := range cg.MemberIDs {
				if present[id] {
					continue
				}
				present[id] = true
				target.MemberIDs = append(target.MemberIDs, id)
				target.SimilarityScores[id] = cg.SimilarityScores[id]
			}
			if cg.Kind == dedup.GroupFuzzy {
				target.Kind = dedup.GroupFuzzy
			}
		}
	}

	for targetID, kept := range previous {
		g := merged[targetID]
		sort.Slice(g.MemberIDs, func(i, j int) bool { return g.MemberIDs[i] < g.MemberIDs[j] })
		if !a.resolveCrossGroup(g, kept) {
			delete(merged, targetID)
		}
	}

	out := make([]dedup.DuplicateGroup, 0, len(merged))
	for _, g := range merged {
		sort.Slice(g.MemberIDs, func(i, j int) bool { return g.MemberIDs[i] < g.MemberIDs[j] })
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RepresentativeID < out[j].RepresentativeID })
	return out
}

// resolveCrossGroup применяет стратегию ко всем участникам группы,
// пополненной из других порций, и заменяет оставленную запись previous.
// Участники, чьи порции не обработаны, из группы исключаются; если среди них
// был якорь, одна из удаленных записей возвращается в результат.
// Возвращает false, если в группе осталось меньше двух участников.
func (a *Aggregator) resolveCrossGroup(g *dedup.DuplicateGroup, previous int64) bool {
	members := make([]dedup.Record, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		r, ok, err := a.stores.Members.Get(id)
		if err != nil {
			a.keepStoreErr(err)
			return true
		}
		if !ok {
			// Якорь без группы в своей порции хранится только среди итоговых
			if r, ok, err = a.stores.Records.Get(id); err != nil {
				a.keepStoreErr(err)
				return true
			}
		}
		if ok {
			members = append(members, r)
		}
	}
	if len(members) == 0 {
		return false
	}

	kept := members[0]
	if len(members) > 1 {
		kept = dedup.ResolveGroup(a.opts.Strategy, members, a.scorer)
	}
	if len(members) < len(g.MemberIDs) {
		a.dropMissing(g, members, previous, kept)
	} else if err := a.stores.Records.Delete(previous); err != nil {
		a.keepStoreErr(err)
		return true
	}
	a.keepStoreErr(a.stores.Records.Put(kept))
	g.KeptID = kept.ID
	return len(g.MemberIDs) >= 2
}

// dropMissing исключает из группы участников без записей. Если пропал
// ранее оставленный участник, kept становится новой итоговой записью
// и перестает считаться удаленным.
func (a *Aggregator) dropMissing(g *dedup.DuplicateGroup, members []dedup.Record, previous int64, kept dedup.Record) {
	available := make(map[int64]bool, len(members))
	for _, m := range members {
		available[m.ID] = true
	}

	ids := g.MemberIDs[:0]
	for _, id := range g.MemberIDs {
		if available[id] {
			ids = append(ids, id)
		} else {
			delete(g.SimilarityScores, id)
		}
	}
	g.MemberIDs = ids
	if !available[g.RepresentativeID] {
		g.RepresentativeID = ids[0]
	}

	if available[previous] {
		a.keepStoreErr(a.stores.Records.Delete(previous))
		return
	}
	a.output++
	a.removed--
	if score, ok := g.SimilarityScores[kept.ID]; ok && score < 1.0 {
		a.fuzzy--
	} else {
		a.exact--
	}
}

// firstMember наименьший идентификатор участника, не считая якоря
func firstMember(g dedup.DuplicateGroup, anchor int64) int64 {
	first := int64(-1)
	for _, id := range g.MemberIDs {
		if id != anchor && (first < 0 || id < first) {
			first = id
		}
	}
	return first
}

// topTexts самые крупные группы: по убыванию размера, затем по якорю
func topTexts(groups []dedup.DuplicateGroup, n int) []TextFrequency {
	ordered := append([]dedup.DuplicateGroup(nil), groups...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Size() > ordered[j].Size()
	})
	if len(ordered) > n {
		ordered = ordered[:n]
	}
	out := make([]TextFrequency, len(ordered))
	for i, g := range ordered {
		out[i] = TextFrequency{Text: g.NormalizedText, Count: g.Size()}
	}
	return out
}
