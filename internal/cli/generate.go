package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"commentdedup/internal/testdata"
)

func newGenerateCommand() *cobra.Command {
	var (
		opts   testdata.Options
		output string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic comment dataset with a known share of duplicates",
		Example: `  commentdedup generate --count 10000 --duplicates 0.1 --output comments.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Count < 1 {
				return fmt.Errorf("count must be positive, got %d", opts.Count)
			}
			if opts.DuplicateRate < 0 || opts.DuplicateRate > 1 || opts.VariantRate < 0 || opts.VariantRate > 1 {
				return fmt.Errorf("rates must be in [0, 1]")
			}

			ds := testdata.Generate(opts)
			if testdata.IsExcelPath(output) {
				if err := testdata.WriteExcel(output, ds); err != nil {
					return err
				}
			} else {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", output, err)
				}
				if err := testdata.WriteCSV(f, ds); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d rows (%d duplicates, %d variants) to %s\n",
				len(ds.Rows), ds.Duplicates, ds.Variants, output)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&opts.Count, "count", "n", 1000, "number of rows")
	flags.Float64Var(&opts.DuplicateRate, "duplicates", 0.1, "share of rows repeating an earlier text")
	flags.Float64Var(&opts.VariantRate, "variants", 0.3, "share of duplicates changed in case and punctuation")
	flags.IntVar(&opts.Words, "words", 8, "words per comment")
	flags.Int64Var(&opts.Seed, "seed", 1, "random seed")
	flags.StringVarP(&output, "output", "o", "comments.csv", "output file (.csv or .xlsx)")
	return cmd
}
