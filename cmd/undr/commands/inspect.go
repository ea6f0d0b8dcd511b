package commands

import (
	"fmt"

	"undrgen/pkg/dataset"
	"undrgen/pkg/exporter"
	"undrgen/pkg/storage/disk"

	"github.com/spf13/cobra"
)

var (
	inspectRecursive bool
	inspectVerify    bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <dataset-dir> [subdir]",
	Short: "Print dataset manifests, optionally verifying every file",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := disk.NewAdapter(args[0])
		if err != nil {
			return err
		}
		exp := exporter.NewExporter(store)
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		dir := ""
		if len(args) > 1 {
			dir = args[1]
		}

		if inspectVerify {
			problems, err := exp.Verify(ctx, dir, func(key string) {
				UNDR.Logger.Debug("verifying", "file", key)
			})
			if err != nil {
				return err
			}
			for _, p := range problems {
				fmt.Fprintf(out, "CORRUPT %s: %v\n", p.Key, p.Err)
			}
			if len(problems) > 0 {
				return fmt.Errorf("%d file(s) failed verification", len(problems))
			}
			fmt.Fprintln(out, "All files match their manifests.")
			return nil
		}

		if !inspectRecursive {
			m, err := exp.Manifest(ctx, dir)
			if err != nil {
				return err
			}
			return exporter.PrintManifest(out, dir, m)
		}

		first := true
		return exp.Walk(ctx, dir, func(d string, m *dataset.Manifest) error {
			if !first {
				fmt.Fprintln(out)
			}
			first = false
			return exporter.PrintManifest(out, d, m)
		})
	},
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectRecursive, "recursive", "r", false, "print the manifests of all subdirectories")
	inspectCmd.Flags().BoolVar(&inspectVerify, "verify", false, "decompress every file and check it against the manifest")
	rootCmd.AddCommand(inspectCmd)
}
