package commands

import (
	"fmt"

	"undrgen/pkg/convert"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var resume bool

var convertCmd = &cobra.Command{
	Use:   "convert <dataset.yaml>",
	Short: "Convert a source tree into an UNDR dataset",
	Long: `Read a dataset description, walk its source tree and write the
converted dataset (compressed files plus -index.json manifests) to its target.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := convert.LoadDescription(args[0])
		if err != nil {
			return err
		}

		summary, err := convert.Run(cmd.Context(), desc, convert.Options{
			Workers:        viper.GetInt("workers"),
			DebouncePeriod: viper.GetDuration("debounce.period"),
			Codec:          UNDR.Codec,
			Logger:         UNDR.Logger,
			Journal:        UNDR.Journal,
			Resume:         resume,
		})
		if err != nil {
			return fmt.Errorf("convert failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Converted %d, copied %d, skipped %d file(s) into %s\n",
			summary.Converted, summary.Copied, summary.Skipped, desc.Target)
		if summary.Flagged > 0 {
			fmt.Fprintf(out, "%d file(s) had recoverable data problems (see log)\n", summary.Flagged)
		}
		if summary.RunID != "" {
			fmt.Fprintf(out, "Run: %s\n", summary.RunID)
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().BoolVar(&resume, "resume", false, "skip source files already converted to the same target")
	rootCmd.AddCommand(convertCmd)
}
