package commands

import (
	"fmt"

	"undrgen/pkg/exporter"
	"undrgen/pkg/storage/disk"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var pushForce bool

var pushCmd = &cobra.Command{
	Use:   "push <dataset-dir> [subdir]",
	Short: "Mirror a converted dataset to the configured storage (disk or S3)",
	Long: `Upload every compressed file and manifest of the dataset to the storage
configured by storage.type. Files that already exist remotely are skipped
unless --force is given; manifests are always uploaded, after their files.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		src, err := disk.NewAdapter(args[0])
		if err != nil {
			return err
		}
		dst, err := UNDR.Mirror(ctx)
		if err != nil {
			return err
		}

		dir := ""
		if len(args) > 1 {
			dir = args[1]
		}

		stats, err := exporter.NewExporter(src).Push(ctx, dir, dst, exporter.PushOptions{
			Force:   pushForce,
			Workers: viper.GetInt("workers"),
			Logger:  UNDR.Logger,
		})
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d directories: %d file(s) uploaded (%d bytes), %d already present\n",
			stats.Directories, stats.Uploaded, stats.Bytes, stats.Skipped)
		return nil
	},
}

func init() {
	pushCmd.Flags().BoolVar(&pushForce, "force", false, "upload files even if they already exist remotely")
	rootCmd.AddCommand(pushCmd)
}
