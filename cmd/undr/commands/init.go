package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"undrgen/pkg/storage/disk"

	"github.com/spf13/cobra"
)

const configTemplate = `# undr configuration; every key can be overridden with UNDR_<KEY> (e.g. UNDR_S3_BUCKET)
workers: 0            # 0 = number of CPUs
compression:
  codec: zstd         # zstd or lz4
debounce:
  period: 1s
storage:
  type: disk          # disk or s3, target of "undr push"
  path: .undr/mirror
s3:
  endpoint: ""
  region: us-east-1
  bucket: undr
  prefix: ""
cache:
  redis_url: ""       # e.g. redis://localhost:6379/0
  ttl: 24h
journal:
  enabled: true
  driver: sqlite      # sqlite or postgres (see database.*)
  path: .undr/journal.db
log:
  level: info
  format: text
`

const descriptionTemplate = `name: my-dataset
source: raw
target: out
# sensor: {width: 240, height: 180}
formats:
  .aedat: aedat2
default_format: other
timestamps: forbid    # forbid, add, sort or keep
ignore: []
rules: []
#  - {kind: rename_extension, from: .dat, to: .aedat}
#  - {kind: skip_name, name: calibration}
metadata: {}
naming:
  stem_and_date: false
files: {}
`

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create an undr workspace",
	Long: `Create .undr/config.yaml and a dataset.yaml template in the given directory
(default: the current directory). Existing files are left untouched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 获取目标路径
		wd := "."
		if len(args) > 0 {
			wd = args[0]
		}
		wd, err := filepath.Abs(wd)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		files := []struct {
			path    string
			content string
		}{
			{filepath.Join(wd, ".undr", "config.yaml"), configTemplate},
			{filepath.Join(wd, "dataset.yaml"), descriptionTemplate},
		}

		// 2. 逐个创建，已存在的文件保留
		for _, f := range files {
			if _, err := os.Stat(f.path); err == nil {
				fmt.Fprintf(out, "exists  %s\n", f.path)
				continue
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if err := disk.WriteFileAtomic(f.path, []byte(f.content)); err != nil {
				return err
			}
			fmt.Fprintf(out, "created %s\n", f.path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
