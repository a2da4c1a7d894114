package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"commentdedup/internal/config"
	"commentdedup/internal/logging"
)

// Version задается при сборке через -ldflags "-X commentdedup/internal/cli.Version=..."
var Version = "dev"

// app общее состояние команд: viper с флагами и путь к файлу конфигурации
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
	closers []func() error
}

// NewRootCommand собирает дерево команд с собственным экземпляром viper
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	defaults := config.Default()

	root := &cobra.Command{
		Use:           "commentdedup",
		Short:         "commentdedup - batch deduplication of free-text customer comments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML, JSON or TOML)")
	flags.String("log-level", defaults.LogLevel, "log level: DEBUG, INFO, WARN, ERROR")
	flags.String("log-format", defaults.LogFormat, "log format: text or json")
	flags.String("log-file", "", "also write logs to this file")

	// Флаги перекрывают файл и окружение
	a.bind(root, map[string]string{
		"log_level":  "log-level",
		"log_format": "log-format",
		"log_file":   "log-file",
	})

	root.AddCommand(newRunCommand(a), newServeCommand(a), newShowConfigCommand(a), newGenerateCommand(), newVersionCommand())
	return root
}

// Execute запускает CLI
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bind связывает ключи конфигурации с флагами команды
func (a *app) bind(cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(flag)
		}
		if f != nil {
			_ = a.v.BindPFlag(key, f)
		}
	}
}

// load собирает итоговую конфигурацию (defaults < file < env < flags), проверяет ее
// и настраивает логирование
func (a *app) load() error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	a.closers = append(a.closers, closeLog)
	return nil
}

func (a *app) close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
