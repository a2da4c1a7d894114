package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"commentdedup/importer"
	"commentdedup/report"
	"commentdedup/session"
)

type runOptions struct {
	input       string
	output      string
	unprocessed string
	reportPath  string
	source      importer.OpenOptions
	delimiter   string
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions
	defaults := defaultsForFlags()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Deduplicate comments from a CSV, XLSX or SQLite source",
		Example: `  commentdedup run --input comments.csv --output cleaned.xlsx --report report.yaml
  commentdedup run -i comments.xlsx -o cleaned.csv --strategy keep_best --threshold 0.9`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			if opts.delimiter != "" {
				opts.source.Delimiter = []rune(opts.delimiter)[0]
			}
			return runDedup(cmd, a, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.input, "input", "i", "", "source file (.csv, .tsv, .txt, .xlsx, .db)")
	flags.StringVarP(&opts.output, "output", "o", "", "cleaned records file (.csv, .json, .xlsx)")
	flags.StringVar(&opts.unprocessed, "unprocessed", "", "file for records of batches that could not be processed")
	flags.StringVarP(&opts.reportPath, "report", "r", "", "session report file (.json, .yaml)")
	flags.StringVar(&opts.source.Sheet, "sheet", "", "XLSX sheet (default: first)")
	flags.StringVar(&opts.source.Table, "table", "", "SQLite table")
	flags.StringVar(&opts.source.Encoding, "encoding", "", "CSV encoding: utf-8 or windows-1251")
	flags.StringVar(&opts.delimiter, "delimiter", "", "CSV delimiter (default by extension)")
	_ = cmd.MarkFlagRequired("input")

	flags.String("strategy", defaults.ResolutionStrategy, "resolution strategy: keep_first, keep_last, keep_best, merge")
	flags.Float64("threshold", defaults.SimilarityThreshold, "similarity threshold in (0, 1]")
	flags.Bool("fuzzy", defaults.EnableFuzzyMatching, "enable fuzzy matching")
	flags.Int("batch-size", defaults.InitialBatchSize, "initial batch size")
	flags.Int("workers", defaults.WorkerCount, "number of workers")
	flags.Int("memory-ceiling", defaults.MemoryCeilingMB, "memory ceiling in MB (0 disables monitoring)")
	flags.String("text-field", defaults.TextField, "column holding the comment text")
	flags.String("stem-language", "", "stemming language for word-set similarity (e.g. spanish)")
	flags.String("spill-dir", defaults.SpillDir, "directory for the temporary record store (default: system temp)")
	a.bind(cmd, map[string]string{
		"resolution_strategy":   "strategy",
		"similarity_threshold":  "threshold",
		"enable_fuzzy_matching": "fuzzy",
		"initial_batch_size":    "batch-size",
		"worker_count":          "workers",
		"memory_ceiling_mb":     "memory-ceiling",
		"text_field":            "text-field",
		"stem_language":         "stem-language",
		"spill_dir":             "spill-dir",
	})

	return cmd
}

func runDedup(cmd *cobra.Command, a *app, opts runOptions) error {
	// Первый сигнал останавливает чтение; выданные порции дорабатываются
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := importer.Open(opts.input, opts.source)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", opts.input, err)
	}
	defer source.Close()

	// Итоговые записи копятся во временном файле, а не в памяти
	sess, err := session.New(a.cfg, session.Options{
		Logger:   a.logger,
		Spill:    true,
		SpillDir: a.cfg.SpillDir,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			a.logger.Warn("failed to remove spill storage", "error", err)
		}
	}()
	result, err := sess.Run(ctx, source)
	if err != nil {
		return err
	}

	exporter := report.NewExporter(result.Columns, a.cfg.TextField)
	if opts.output != "" {
		if err := exporter.ExportStore(opts.output, result.Stores.Records); err != nil {
			return fmt.Errorf("failed to export records: %w", err)
		}
	}
	if opts.unprocessed != "" && result.Report.Unprocessed > 0 {
		if err := exporter.ExportStore(opts.unprocessed, result.Stores.Unprocessed); err != nil {
			return fmt.Errorf("failed to export unprocessed records: %w", err)
		}
	}
	if opts.reportPath != "" {
		if err := report.ExportReport(opts.reportPath, result.Report); err != nil {
			return fmt.Errorf("failed to export report: %w", err)
		}
	}

	printSummary(cmd.OutOrStdout(), result.Report, opts)
	return nil
}

// printSummary краткая сводка сессии
func printSummary(w io.Writer, rep *report.Report, opts runOptions) {
	title := color.New(color.FgCyan, color.Bold).SprintFunc()
	good := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, title("Session "+rep.SessionID))
	fmt.Fprintf(w, "  input:       %d\n", rep.TotalInput)
	fmt.Fprintf(w, "  output:      %s\n", good(rep.TotalOutput))
	fmt.Fprintf(w, "  removed:     %d (exact %d, fuzzy %d, rate %.2f%%)\n",
		rep.DuplicatesRemoved, rep.ExactDuplicateCount, rep.FuzzyDuplicateCount, rep.DuplicateRate*100)
	fmt.Fprintf(w, "  groups:      %d\n", len(rep.DuplicateGroups))
	fmt.Fprintf(w, "  batches:     %d (recovered %d)\n", rep.Performance.Batches, rep.Performance.RecoveredBatches)
	fmt.Fprintf(w, "  elapsed:     %s (%.0f items/s)\n", rep.Performance.Elapsed, rep.Performance.ItemsPerSecond)
	if rep.Unprocessed > 0 {
		fmt.Fprintf(w, "  unprocessed: %s\n", bad(rep.Unprocessed))
	}
	for _, e := range rep.Errors {
		fmt.Fprintf(w, "  %s batch %d: %s\n", warn(string(e.Kind)), e.BatchID, e.Message)
	}

	switch {
	case rep.Cancelled:
		fmt.Fprintln(w, warn("Cancelled: result is partial"))
	case rep.Partial:
		fmt.Fprintln(w, warn("Completed with errors: result is partial"))
	default:
		fmt.Fprintln(w, good("Completed"))
	}
	if opts.output != "" {
		fmt.Fprintf(w, "Records written to %s\n", opts.output)
	}
	if opts.reportPath != "" {
		fmt.Fprintf(w, "Report written to %s\n", opts.reportPath)
	}
}
