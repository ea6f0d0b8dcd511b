package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"undrgen/pkg/journal"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [run-id]",
	Short: "Show conversion runs recorded in the journal",
	Long:  `Without arguments, list recent runs. With a run id (or a unique prefix), list the tasks of that run.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if UNDR == nil || UNDR.Journal == nil {
			return errors.New("journal is disabled (journal.enabled=false)")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			runs, err := UNDR.Journal.ListRuns(ctx, logLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs yet.")
				return nil
			}
			for i := range runs {
				printRun(out, &runs[i])
			}
			return nil
		}

		run, err := UNDR.Journal.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("invalid run argument '%s': %w", args[0], err)
		}
		printRun(out, run)

		tasks, err := UNDR.Journal.ListTasks(ctx, run.ID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "STATUS\tFORMAT\tDURATION\tSOURCE\tERROR\n")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\t%s\n", t.Status, t.Format, t.DurationMS, t.Source, t.Error)
		}
		return tw.Flush()
	},
}

// printRun 格式化输出
func printRun(w io.Writer, r *journal.Run) {
	const (
		colorYellow = "\033[33m"
		colorReset  = "\033[0m"
	)

	fmt.Fprintf(w, "%srun %s%s\n", colorYellow, r.ID, colorReset)
	fmt.Fprintf(w, "Status: %s (%d tasks)\n", r.Status, r.Tasks)
	fmt.Fprintf(w, "Source: %s\n", r.Source)
	fmt.Fprintf(w, "Target: %s\n", r.Target)
	fmt.Fprintf(w, "Date:   %s\n", r.StartedAt.Local().Format(time.RFC1123))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "Took:   %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:  %s\n", r.Error)
	}
	fmt.Fprintln(w)
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 20, "number of runs to list")
	rootCmd.AddCommand(logCmd)
}
