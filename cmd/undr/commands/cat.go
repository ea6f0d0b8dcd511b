package commands

import (
	"fmt"
	"path"

	"undrgen/pkg/exporter"
	"undrgen/pkg/storage/disk"

	"github.com/spf13/cobra"
)

var catMeta bool

var catCmd = &cobra.Command{
	Use:   "cat <dataset-dir> <file>",
	Short: "Decompress a dataset file to stdout",
	Long: `Look up a file in the manifest of its directory, decompress it and write
the raw bytes to stdout. The content is checked against the hash and size
recorded in the manifest; a mismatch is reported as an error.

Example: undr cat ./out user01/walk.dvs > walk.dvs`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := disk.NewAdapter(args[0])
		if err != nil {
			return err
		}
		exp := exporter.NewExporter(store)

		dir, name := path.Split(path.Clean(args[1]))
		dir = path.Clean(dir)

		if catMeta {
			m, err := exp.Manifest(cmd.Context(), dir)
			if err != nil {
				return err
			}
			entry, ok := m.Lookup(name)
			if !ok {
				return fmt.Errorf("%w: %s", exporter.ErrEntryNotFound, args[1])
			}
			exporter.PrintMetadata(cmd.OutOrStdout(), entry)
			return nil
		}

		// 如果是文本文件，直接显示；如果是二进制，可以通过 > file 重定向
		if _, err := exp.ExportFile(cmd.Context(), dir, name, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		return nil
	},
}

func init() {
	catCmd.Flags().BoolVar(&catMeta, "meta", false, "print the file's metadata instead of its content")
	rootCmd.AddCommand(catCmd)
}
