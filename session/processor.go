package session

import (
	"log/slog"

	"commentdedup/batch"
	"commentdedup/dedup"
	"commentdedup/internal/config"
	"commentdedup/internal/infrastructure/monitoring"
	"commentdedup/normalization/algorithms"
)

// pipeline компоненты обработки одной сессии
type pipeline struct {
	state     *dedup.GlobalDedupState
	resolver  *dedup.Resolver
	monitor   *monitoring.MemoryMonitor
	scheduler *batch.Scheduler
}

// buildPipeline собирает нормализатор, движок схожести, разрешатель
// и планировщик по конфигурации. Ошибки - ошибки конфигурации.
func buildPipeline(cfg *config.Config, sampler monitoring.MemorySampler, logger *slog.Logger) (*pipeline, error) {
	strategy, err := cfg.Strategy()
	if err != nil {
		return nil, err
	}
	eviction, err := cfg.Eviction()
	if err != nil {
		return nil, err
	}

	var stemmer algorithms.Stemmer
	if cfg.StemLanguage != "" {
		snowball, err := algorithms.NewSnowballStemmer(cfg.StemLanguage)
		if err != nil {
			return nil, dedup.NewConfigurationError("failed to create stemmer", err)
		}
		stemmer = snowball
	}
	engine, err := algorithms.NewSimilarityEngine(algorithms.DefaultSimilarityWeights(), stemmer)
	if err != nil {
		return nil, dedup.NewConfigurationError("failed to create similarity engine", err)
	}

	normalizer := algorithms.NewTextNormalizer(algorithms.NormalizerOptions{
		StripHTML:      cfg.StripHTML,
		FoldDiacritics: cfg.FoldDiacritics,
	})

	state := dedup.NewGlobalDedupState(cfg.CrossBatchSampleSize, eviction, cfg.SampleSeed)
	resolver, err := dedup.NewResolver(dedup.ResolverConfig{
		Threshold:      cfg.SimilarityThreshold,
		Strategy:       strategy,
		TimestampField: cfg.TimestampField,
		Normalizer:     normalizer,
		Engine:         engine,
		State:          state,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	monitor := monitoring.NewMemoryMonitor(cfg.MemoryCeilingMB, sampler, logger)
	// Кэш стемминга - единственный временный кэш, переживающий порцию
	monitor.RegisterReleaser(engine.ClearCache)

	scheduler, err := batch.NewScheduler(batch.Config{
		Workers:             cfg.WorkerCount,
		InitialBatchSize:    cfg.InitialBatchSize,
		BatchTimeout:        cfg.BatchTimeout,
		MaxRecoveryAttempts: cfg.MaxRecoveryAttempts,
		Fuzzy:               cfg.EnableFuzzyMatching,
		Monitor:             monitor,
		Logger:              logger,
	}, resolver)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		state:     state,
		resolver:  resolver,
		monitor:   monitor,
		scheduler: scheduler,
	}, nil
}
