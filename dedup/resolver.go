package dedup

import (
	"context"
	"log/slog"
	"sort"

	"commentdedup/normalization/algorithms"
)

// ctxCheckInterval как часто (в записях) проверяется отмена контекста
const ctxCheckInterval = 64

// ResolverConfig параметры разрешения дубликатов
type ResolverConfig struct {
	Threshold      float64
	Strategy       Strategy
	TimestampField string

	Normalizer *algorithms.TextNormalizer
	Engine     *algorithms.SimilarityEngine

	// State общее состояние сессии; nil - порции обрабатываются независимо
	State *GlobalDedupState

	Logger *slog.Logger
}

// ResolveOptions параметры одного прохода
type ResolveOptions struct {
	// Fuzzy включает нечеткое сравнение. На последней попытке восстановления
	// выполняется только точное сравнение.
	Fuzzy bool
}

// Resolver группирует записи порции и применяет стратегию разрешения.
// Участник попадает в группу только по непосредственно вычисленному
// сравнению с якорем группы, транзитивного замыкания нет.
type Resolver struct {
	threshold  float64
	strategy   Strategy
	normalizer *algorithms.TextNormalizer
	engine     *algorithms.SimilarityEngine
	scorer     *QualityScorer
	state      *GlobalDedupState
	logger     *slog.Logger
}

// NewResolver создает Resolver. Ошибки параметров возвращаются как ошибки конфигурации.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := algorithms.ValidateThreshold(cfg.Threshold); err != nil {
		return nil, NewConfigurationError("invalid similarity threshold", err)
	}
	if !cfg.Strategy.Valid() {
		return nil, NewConfigurationError("invalid resolution strategy "+cfg.Strategy.String(), nil)
	}

	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = algorithms.NewTextNormalizer(algorithms.DefaultNormalizerOptions())
	}
	engine := cfg.Engine
	if engine == nil {
		var err error
		if engine, err = algorithms.NewSimilarityEngine(nil, nil); err != nil {
			return nil, NewConfigurationError("failed to create similarity engine", err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		threshold:  cfg.Threshold,
		strategy:   cfg.Strategy,
		normalizer: normalizer,
		engine:     engine,
		scorer:     NewQualityScorer(cfg.TimestampField),
		state:      cfg.State,
		logger:     logger,
	}, nil
}

// Strategy стратегия разрешения
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Engine движок схожести (нужен для освобождения кэшей)
func (r *Resolver) Engine() *algorithms.SimilarityEngine {
	return r.engine
}

// localGroup группа, собираемая внутри порции
type localGroup struct {
	anchor  int // индекс якоря в items
	members []int
	scores  map[int64]float64
	hashes  map[algorithms.TextHash]float64

	// crossID якорь из другой порции, если группа относится к нему
	crossID int64
	cross   bool

	// recheck якорь не сравнивался с якорями порции (повторная попытка)
	recheck bool
	// folded группа поглощена другой группой порции
	folded bool
	// absorbed хеши поглощенных якорей: они уже занесены в общий индекс
	absorbed map[algorithms.TextHash]bool

	kept        Record
	keptProfile *algorithms.TextProfile
}

// hashMember к какой группе относится хеш внутри порции
type hashMember struct {
	group int
	score float64
}

// Resolve обрабатывает порцию: нормализует тексты, находит точные и нечеткие
// дубликаты (внутри порции и относительно общего состояния) и применяет стратегию.
func (r *Resolver) Resolve(ctx context.Context, batch Batch, opts ResolveOptions) (*BatchResult, error) {
	result := &BatchResult{
		BatchID:      batch.ID,
		Offset:       batch.Offset,
		Input:        len(batch.Records),
		FuzzyEnabled: opts.Fuzzy,
	}

	items := make([]normalizedRecord, len(batch.Records))
	for i, rec := range batch.Records {
		items[i] = normalizedRecord{record: rec, normalized: r.normalizer.Normalize(rec.Text)}
		result.Quality.Add(r.scorer.Score(rec))
	}

	var snapshot []SampleEntry
	if opts.Fuzzy && r.state != nil && r.state.SampleEnabled() {
		snapshot = r.state.Snapshot()
	}

	var (
		groups      []*localGroup
		anchors     []int // индексы групп с локальным якорем, в порядке появления
		localHashes = make(map[algorithms.TextHash]hashMember)
		crossGroups = make(map[int64]int) // id внешнего якоря -> индекс группы
	)

	joinCross := func(anchorID int64, i int, score float64) {
		gi, ok := crossGroups[anchorID]
		if !ok {
			gi = len(groups)
			groups = append(groups, &localGroup{
				anchor:  -1,
				scores:  make(map[int64]float64),
				hashes:  make(map[algorithms.TextHash]float64),
				crossID: anchorID,
				cross:   true,
			})
			crossGroups[anchorID] = gi
		}
		g := groups[gi]
		g.members = append(g.members, i)
		g.scores[items[i].record.ID] = score
		g.hashes[items[i].normalized.Hash] = score
		localHashes[items[i].normalized.Hash] = hashMember{group: gi, score: score}
	}

	for i := range items {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		item := &items[i]
		id := item.record.ID

		// Пустые записи не группируются
		if item.normalized.IsEmpty() {
			result.EmptyRecords++
			continue
		}

		// 1. Точное совпадение внутри порции
		if hm, ok := localHashes[item.normalized.Hash]; ok {
			g := groups[hm.group]
			g.members = append(g.members, i)
			g.scores[id] = hm.score
			continue
		}

		// 2. Точное совпадение с другими порциями
		selfRegistered := false
		if r.state != nil {
			if entry, ok := r.state.Lookup(item.normalized.Hash); ok {
				if entry.ID != id {
					joinCross(entry.ID, i, entry.Score)
					continue
				}
				// Повторная попытка: запись уже зарегистрирована как якорь
				selfRegistered = true
			}
		}

		// 3. Нечеткое сравнение с якорями порции и выборкой других порций
		if opts.Fuzzy && !selfRegistered {
			item.profile = r.engine.Profile(item.normalized)

			bestGroup, bestScore := -1, 0.0
			for _, gi := range anchors {
				anchor := &items[groups[gi].anchor]
				result.Comparisons++
				if score, ok := r.engine.Matches(item.profile, anchor.profile, r.threshold); ok && score > bestScore {
					bestGroup, bestScore = gi, score
				}
			}

			bestCross, bestCrossScore := int64(-1), 0.0
			for _, candidate := range snapshot {
				if candidate.ID == id {
					continue
				}
				result.Comparisons++
				score, ok := r.engine.Matches(item.profile, candidate.Profile, r.threshold)
				if !ok {
					continue
				}
				if score > bestCrossScore || (score == bestCrossScore && candidate.ID < bestCross) {
					bestCross, bestCrossScore = candidate.ID, score
				}
			}

			// Приоритет у более раннего якоря при равной схожести
			switch {
			case bestCross >= 0 && (bestGroup < 0 || bestCrossScore > bestScore ||
				(bestCrossScore == bestScore && bestCross < items[groups[bestGroup].anchor].record.ID)):
				joinCross(bestCross, i, bestCrossScore)
				continue
			case bestGroup >= 0:
				g := groups[bestGroup]
				g.members = append(g.members, i)
				g.scores[id] = bestScore
				g.hashes[item.normalized.Hash] = bestScore
				localHashes[item.normalized.Hash] = hashMember{group: bestGroup, score: bestScore}
				continue
			}
		}

		// 4. Новый якорь: атомарная регистрация в общем индексе
		if r.state != nil && !selfRegistered {
			if entry, found := r.state.LookupOrInsert(item.normalized.Hash, id); found && entry.ID != id {
				// Другой обработчик успел зарегистрировать тот же текст
				joinCross(entry.ID, i, entry.Score)
				continue
			}
		}
		if opts.Fuzzy && item.profile == nil {
			item.profile = r.engine.Profile(item.normalized)
		}

		gi := len(groups)
		groups = append(groups, &localGroup{
			anchor:  i,
			members: []int{i},
			scores:  map[int64]float64{id: 1.0},
			hashes:  map[algorithms.TextHash]float64{item.normalized.Hash: 1.0},
			recheck: selfRegistered,
		})
		anchors = append(anchors, gi)
		localHashes[item.normalized.Hash] = hashMember{group: gi, score: 1.0}
	}

	r.finish(result, items, groups, opts.Fuzzy)
	return result, nil
}

// finish применяет стратегию, собирает итоговые записи и фиксирует общее состояние
func (r *Resolver) finish(result *BatchResult, items []normalizedRecord, groups []*localGroup, fuzzy bool) {
	var local []*localGroup
	for _, g := range groups {
		if !g.cross {
			g.kept = r.resolveLocal(g, items)
			local = append(local, g)
		}
	}
	if fuzzy {
		r.foldSurvivors(result, items, local)
	}

	removed := make([]bool, len(items))
	replacement := make(map[int]Record)

	var (
		registrations []Registration
		samples       []SampleEntry
	)

	for _, g := range groups {
		if g.cross {
			group := r.crossGroup(g, items)
			for _, m := range g.members {
				removed[m] = true
				result.Members = append(result.Members, items[m].record)
				score := g.scores[items[m].record.ID]
				r.countDuplicate(result, score)
				if score < 1.0 {
					registrations = append(registrations, Registration{
						Hash:  items[m].normalized.Hash,
						Entry: IndexEntry{ID: g.crossID, Score: score},
					})
				}
			}
			result.Groups = append(result.Groups, group)
			continue
		}
		if g.folded {
			continue
		}

		anchor := &items[g.anchor]
		anchorID := anchor.record.ID
		if anchor.profile != nil {
			samples = append(samples, SampleEntry{ID: anchorID, Profile: anchor.profile})
		}
		for hash, score := range g.hashes {
			if hash != anchor.normalized.Hash {
				registrations = append(registrations, Registration{
					Hash:    hash,
					Entry:   IndexEntry{ID: anchorID, Score: score},
					Replace: g.absorbed[hash],
				})
			}
		}

		if len(g.members) < 2 {
			continue
		}

		group := DuplicateGroup{
			RepresentativeID: anchorID,
			KeptID:           g.kept.ID,
			MemberIDs:        make([]int64, len(g.members)),
			SimilarityScores: g.scores,
			Kind:             GroupExact,
			NormalizedText:   anchor.normalized.Cleaned,
		}
		for k, m := range g.members {
			id := items[m].record.ID
			group.MemberIDs[k] = id
			result.Members = append(result.Members, items[m].record)
			if id == g.kept.ID {
				replacement[m] = g.kept
			} else {
				removed[m] = true
			}
			if m != g.anchor {
				if g.scores[id] < 1.0 {
					group.Kind = GroupFuzzy
				}
				r.countDuplicate(result, g.scores[id])
			}
		}
		result.Groups = append(result.Groups, group)
	}

	result.Records = make([]Record, 0, len(items))
	for i, item := range items {
		if removed[i] {
			continue
		}
		if rec, ok := replacement[i]; ok {
			result.Records = append(result.Records, rec)
			continue
		}
		result.Records = append(result.Records, item.record)
	}

	sort.Slice(result.Groups, func(a, b int) bool {
		return result.Groups[a].RepresentativeID < result.Groups[b].RepresentativeID
	})

	if r.state != nil {
		r.state.Commit(registrations, samples)
	}

	r.logger.Debug("[Resolver] batch resolved",
		"batch_id", result.BatchID,
		"input", result.Input,
		"output", len(result.Records),
		"groups", len(result.Groups),
		"comparisons", result.Comparisons)
}

// resolveLocal применяет стратегию к группе порции
func (r *Resolver) resolveLocal(g *localGroup, items []normalizedRecord) Record {
	if len(g.members) == 1 {
		return items[g.anchor].record
	}
	members := make([]Record, len(g.members))
	for k, m := range g.members {
		members[k] = items[m].record
	}
	return ResolveGroup(r.strategy, members, r.scorer)
}

// keepsAnchor остается ли от группы текст ее якоря
func keepsAnchor(g *localGroup, items []normalizedRecord) bool {
	anchor := items[g.anchor].record
	return g.kept.ID == anchor.ID && g.kept.Text == anchor.Text
}

// survivorProfile профиль записи, которая останется от группы
func (r *Resolver) survivorProfile(g *localGroup, items []normalizedRecord) *algorithms.TextProfile {
	if g.keptProfile != nil {
		return g.keptProfile
	}
	if keepsAnchor(g, items) {
		anchor := &items[g.anchor]
		if anchor.profile == nil {
			anchor.profile = r.engine.Profile(anchor.normalized)
		}
		g.keptProfile = anchor.profile
		return g.keptProfile
	}

	normalized, found := algorithms.NormalizedText{}, false
	for _, m := range g.members {
		if items[m].record.Text == g.kept.Text {
			normalized, found = items[m].normalized, true
			break
		}
	}
	if !found {
		normalized = r.normalizer.Normalize(g.kept.Text)
	}
	g.keptProfile = r.engine.Profile(normalized)
	return g.keptProfile
}

// foldSurvivors сравнивает записи, оставленные стратегией вместо якоря,
// с остальными оставшимися записями порции. Совпавшие группы объединяются,
// пока объединения не прекратятся: после этого никакие две оставшиеся
// записи порции не проходят порог схожести.
func (r *Resolver) foldSurvivors(result *BatchResult, items []normalizedRecord, local []*localGroup) {
	var queue []*localGroup
	for _, g := range local {
		if g.recheck || !keepsAnchor(g, items) {
			queue = append(queue, g)
		}
	}

	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		if g.folded {
			continue
		}

		profile := r.survivorProfile(g, items)
		for _, other := range local {
			if other == g || other.folded {
				continue
			}
			result.Comparisons++
			score, ok := r.engine.Matches(profile, r.survivorProfile(other, items), r.threshold)
			if !ok {
				continue
			}
			queue = append(queue, r.fold(g, other, score, items))
			break
		}
	}
}

// fold объединяет две группы порции. Якорем остается более ранний,
// поглощенный якорь получает схожесть, с которой совпали оставшиеся записи.
func (r *Resolver) fold(a, b *localGroup, score float64, items []normalizedRecord) *localGroup {
	target, source := a, b
	if items[b.anchor].record.ID < items[a.anchor].record.ID {
		target, source = b, a
	}

	sourceAnchor := &items[source.anchor]
	for _, m := range source.members {
		id := items[m].record.ID
		if m == source.anchor {
			target.scores[id] = score
		} else {
			target.scores[id] = source.scores[id]
		}
	}
	for hash, s := range source.hashes {
		if hash == sourceAnchor.normalized.Hash {
			s = score
		}
		target.hashes[hash] = s
	}

	if target.absorbed == nil {
		target.absorbed = make(map[algorithms.TextHash]bool)
	}
	target.absorbed[sourceAnchor.normalized.Hash] = true
	for hash := range source.absorbed {
		target.absorbed[hash] = true
	}

	target.members = append(target.members, source.members...)
	sort.Slice(target.members, func(i, j int) bool {
		return items[target.members[i]].record.ID < items[target.members[j]].record.ID
	})
	source.folded = true

	target.kept = r.resolveLocal(target, items)
	target.keptProfile = nil

	r.logger.Debug("[Resolver] groups folded",
		"anchor", items[target.anchor].record.ID,
		"absorbed", sourceAnchor.record.ID,
		"score", score)
	return target
}

// crossGroup группа участников порции, относящихся к якорю другой порции.
// Запись, которая останется, определяется при агрегации.
func (r *Resolver) crossGroup(g *localGroup, items []normalizedRecord) DuplicateGroup {
	group := DuplicateGroup{
		RepresentativeID: g.crossID,
		KeptID:           g.crossID,
		MemberIDs:        make([]int64, 0, len(g.members)+1),
		SimilarityScores: make(map[int64]float64, len(g.members)+1),
		Kind:             GroupExact,
		CrossBatch:       true,
		NormalizedText:   items[g.members[0]].normalized.Cleaned,
	}
	group.MemberIDs = append(group.MemberIDs, g.crossID)
	group.SimilarityScores[g.crossID] = 1.0
	for _, m := range g.members {
		id := items[m].record.ID
		group.MemberIDs = append(group.MemberIDs, id)
		group.SimilarityScores[id] = g.scores[id]
		if g.scores[id] < 1.0 {
			group.Kind = GroupFuzzy
		}
	}
	return group
}

// countDuplicate учитывает удаленного участника как точный или нечеткий дубликат
func (r *Resolver) countDuplicate(result *BatchResult, score float64) {
	if score >= 1.0 {
		result.ExactDuplicates++
	} else {
		result.FuzzyDuplicates++
	}
}
