package config

import (
	"errors"
	"fmt"
	"strings"

	"commentdedup/batch"
	"commentdedup/dedup"
	"commentdedup/internal/logging"
	"commentdedup/normalization/algorithms"
)

// Validate проверяет корректность конфигурации. Все найденные проблемы
// собираются в одну ошибку конфигурации.
func (c *Config) Validate() error {
	var problems []string

	// Разрешение дубликатов
	if err := algorithms.ValidateThreshold(c.SimilarityThreshold); err != nil {
		problems = append(problems, fmt.Sprintf("similarity_threshold must be in (0, 1], got %v", c.SimilarityThreshold))
	}
	if _, err := dedup.ParseStrategy(c.ResolutionStrategy); err != nil {
		problems = append(problems, fmt.Sprintf("invalid resolution_strategy: %s (valid: %s)",
			c.ResolutionStrategy, strings.Join(dedup.StrategyNames(), ", ")))
	}

	// Планирование порций
	if c.InitialBatchSize < 1 {
		problems = append(problems, "initial_batch_size must be at least 1")
	}
	if c.WorkerCount < 1 {
		problems = append(problems, "worker_count must be at least 1")
	}
	if c.MemoryCeilingMB < 0 {
		problems = append(problems, "memory_ceiling_mb must not be negative")
	}
	if c.BatchTimeout < 0 {
		problems = append(problems, "batch_timeout must not be negative")
	}
	if c.MaxRecoveryAttempts < 0 || c.MaxRecoveryAttempts > batch.MaxRecoveryAttempts {
		problems = append(problems, fmt.Sprintf("max_recovery_attempts must be between 0 and %d, got %d",
			batch.MaxRecoveryAttempts, c.MaxRecoveryAttempts))
	}

	// Выборка
	if c.CrossBatchSampleSize < 0 {
		problems = append(problems, "cross_batch_sample_size must not be negative")
	}
	if _, err := dedup.ParseEvictionPolicy(c.SampleEviction); err != nil {
		problems = append(problems, fmt.Sprintf("invalid sample_eviction: %s (valid: fifo, reservoir)", c.SampleEviction))
	}

	// Источник
	if strings.TrimSpace(c.TextField) == "" {
		problems = append(problems, "text_field is required")
	}
	if c.StemLanguage != "" && !algorithms.IsSupportedStemLanguage(c.StemLanguage) {
		problems = append(problems, fmt.Sprintf("unsupported stem_language: %s", c.StemLanguage))
	}

	// Логирование
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("invalid log_level: %s (valid: DEBUG, INFO, WARN, ERROR)", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log_format: %s (valid: text, json)", c.LogFormat))
	}

	if c.ServerRateLimit < 0 {
		problems = append(problems, "server_rate_limit must not be negative")
	}
	if c.ServerSessionTTL < 0 {
		problems = append(problems, "server_session_ttl must not be negative")
	}
	if c.ServerMaxSessions < 0 {
		problems = append(problems, "server_max_sessions must not be negative")
	}

	if len(problems) > 0 {
		return dedup.NewConfigurationError("invalid configuration",
			errors.New(strings.Join(problems, "; "))).
			WithDetail("problems", problems)
	}
	return nil
}

// Strategy возвращает разобранную стратегию разрешения
func (c *Config) Strategy() (dedup.Strategy, error) {
	return dedup.ParseStrategy(c.ResolutionStrategy)
}

// Eviction возвращает разобранную политику вытеснения выборки
func (c *Config) Eviction() (dedup.EvictionPolicy, error) {
	return dedup.ParseEvictionPolicy(c.SampleEviction)
}
