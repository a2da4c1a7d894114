package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения (DEDUP_SIMILARITY_THRESHOLD и т.д.)
const EnvPrefix = "DEDUP"

// Config конфигурация сессии дедупликации
type Config struct {
	// Разрешение дубликатов
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold" yaml:"similarity_threshold"`
	ResolutionStrategy  string  `mapstructure:"resolution_strategy" json:"resolution_strategy" yaml:"resolution_strategy"`
	EnableFuzzyMatching bool    `mapstructure:"enable_fuzzy_matching" json:"enable_fuzzy_matching" yaml:"enable_fuzzy_matching"`

	// Планирование порций
	InitialBatchSize    int           `mapstructure:"initial_batch_size" json:"initial_batch_size" yaml:"initial_batch_size"`
	WorkerCount         int           `mapstructure:"worker_count" json:"worker_count" yaml:"worker_count"`
	MemoryCeilingMB     int           `mapstructure:"memory_ceiling_mb" json:"memory_ceiling_mb" yaml:"memory_ceiling_mb"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout" json:"batch_timeout" yaml:"batch_timeout"`
	MaxRecoveryAttempts int           `mapstructure:"max_recovery_attempts" json:"max_recovery_attempts" yaml:"max_recovery_attempts"`

	// Выборка для межпорционного нечеткого сравнения
	CrossBatchSampleSize int    `mapstructure:"cross_batch_sample_size" json:"cross_batch_sample_size" yaml:"cross_batch_sample_size"`
	SampleEviction       string `mapstructure:"sample_eviction" json:"sample_eviction" yaml:"sample_eviction"`
	SampleSeed           int64  `mapstructure:"sample_seed" json:"sample_seed" yaml:"sample_seed"`

	// Источник и нормализация
	TextField      string `mapstructure:"text_field" json:"text_field" yaml:"text_field"`
	TimestampField string `mapstructure:"timestamp_field" json:"timestamp_field" yaml:"timestamp_field"`
	StemLanguage   string `mapstructure:"stem_language" json:"stem_language" yaml:"stem_language"`
	StripHTML      bool   `mapstructure:"strip_html" json:"strip_html" yaml:"strip_html"`
	FoldDiacritics bool   `mapstructure:"fold_diacritics" json:"fold_diacritics" yaml:"fold_diacritics"`

	// Каталог временного файла с итоговыми записями при выгрузке в файл;
	// пусто - системный временный каталог
	SpillDir string `mapstructure:"spill_dir" json:"spill_dir" yaml:"spill_dir"`

	// Логирование
	LogLevel  string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" json:"log_format" yaml:"log_format"`
	LogFile   string `mapstructure:"log_file" json:"log_file" yaml:"log_file"`

	// HTTP API
	ServerAddr      string  `mapstructure:"server_addr" json:"server_addr" yaml:"server_addr"`
	ServerRateLimit float64 `mapstructure:"server_rate_limit" json:"server_rate_limit" yaml:"server_rate_limit"`
	// Завершенные сессии удаляются из реестра по истечении срока
	// или при превышении числа сессий
	ServerSessionTTL  time.Duration `mapstructure:"server_session_ttl" json:"server_session_ttl" yaml:"server_session_ttl"`
	ServerMaxSessions int           `mapstructure:"server_max_sessions" json:"server_max_sessions" yaml:"server_max_sessions"`
}

// defaults значения по умолчанию для всех ключей
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"similarity_threshold":    0.95,
		"resolution_strategy":     "keep_first",
		"enable_fuzzy_matching":   true,
		"initial_batch_size":      100,
		"worker_count":            min(4, runtime.NumCPU()),
		"memory_ceiling_mb":       0,
		"batch_timeout":           2 * time.Minute,
		"max_recovery_attempts":   3,
		"cross_batch_sample_size": 500,
		"sample_eviction":         "fifo",
		"sample_seed":             int64(1),
		"text_field":              "text",
		"timestamp_field":         "timestamp",
		"stem_language":           "",
		"strip_html":              true,
		"fold_diacritics":         true,
		"spill_dir":               "",
		"log_level":               "INFO",
		"log_format":              "text",
		"log_file":                "",
		"server_addr":             ":8090",
		"server_rate_limit":       20.0,
		"server_session_ttl":      time.Hour,
		"server_max_sessions":     100,
	}
}

// Default возвращает конфигурацию по умолчанию без учета окружения
func Default() *Config {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// SetDefaults регистрирует значения по умолчанию и привязку к окружению
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load загружает конфигурацию: значения по умолчанию, затем файл
// (YAML/JSON/TOML, если path не пуст), затем окружение DEDUP_*.
// Флаги командной строки привязываются к v вызывающей стороной.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
