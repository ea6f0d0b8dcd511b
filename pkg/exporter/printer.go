package exporter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"undrgen/pkg/dataset"
)

// PrintManifest 以类似 ls -l 的格式打印一个目录的索引
func PrintManifest(w io.Writer, dir string, m *dataset.Manifest) error {
	if dir == "" {
		dir = "."
	}
	fmt.Fprintf(w, "Directory: %s\n", dir)
	fmt.Fprintf(w, "Version:   %d.%d.%d\n\n", m.Version.Major, m.Version.Minor, m.Version.Patch)

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "TYPE\tHASH\tSIZE\tSTORED\tCODEC\tNAME\n")
	for _, name := range m.Directories {
		fmt.Fprintf(tw, "dir\t-\t-\t-\t-\t%s/\n", name)
	}
	for _, e := range m.Files {
		printEntry(tw, "file", e)
	}
	for _, e := range m.OtherFiles {
		printEntry(tw, "other", e)
	}
	return tw.Flush()
}

func printEntry(w io.Writer, kind string, e dataset.Entry) {
	stored, codecs := "-", "-"
	if len(e.Compressions) > 0 {
		stored = fmtSize(e.Compressions[0].Size)
		names := make([]string, 0, len(e.Compressions))
		for _, c := range e.Compressions {
			names = append(names, c.Codec)
		}
		codecs = strings.Join(names, ",")
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s%s\n",
		kind, e.Hash.Short(), fmtSize(e.Size), stored, codecs, e.Name, fmtProperties(e))
}

// fmtProperties 打印类型化文件的属性，例如 " [dvs 240x180]"
func fmtProperties(e dataset.Entry) string {
	if e.Properties == nil {
		return ""
	}
	p := e.Properties
	if p.Width != nil && p.Height != nil {
		return fmt.Sprintf(" [%s %dx%d]", p.Type, *p.Width, *p.Height)
	}
	return fmt.Sprintf(" [%s]", p.Type)
}

// PrintMetadata 按 key 排序打印元数据
func PrintMetadata(w io.Writer, e dataset.Entry) {
	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %v\n", k, e.Metadata[k])
	}
}

func fmtSize(s int64) string {
	if s < 1024 {
		return fmt.Sprintf("%dB", s)
	} else if s < 1024*1024 {
		return fmt.Sprintf("%.1fKB", float64(s)/1024)
	}
	return fmt.Sprintf("%.2fMB", float64(s)/1024/1024)
}
