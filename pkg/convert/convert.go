package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"undrgen/pkg/aer"
	"undrgen/pkg/compress"
	"undrgen/pkg/dataset"
	"undrgen/pkg/events"
	"undrgen/pkg/journal"
	"undrgen/pkg/tree"
)

var ErrResumeWithoutJournal = errors.New("resume requires the journal to be enabled")

// HeaderSuffix 是保存原始注释头的 other file 的后缀
const HeaderSuffix = ".header"

// Options 控制一次转换
type Options struct {
	Workers        int
	DebouncePeriod time.Duration
	Codec          compress.Codec
	Logger         *slog.Logger
	// Journal 为 nil 时不记录转换日志
	Journal *journal.Repository
	// Resume 跳过日志中已经成功转换到同一目标的源文件
	Resume bool
}

// Summary 是一次转换的统计
type Summary struct {
	RunID     string
	Converted int64
	Copied    int64
	Skipped   int64
	// Flagged 是带有可恢复数据问题的文件数
	Flagged int64
}

// Converter 把单个源文件转换为数据集文件，是 tree.Handler 的实现
type Converter struct {
	desc    *Description
	opts    Options
	logger  *slog.Logger
	runID   string
	target  string
	done    map[string]struct{}
	summary struct {
		converted, copied, skipped, flagged atomic.Int64
	}
}

// NewConverter 创建处理函数；runID 为空时不写日志
func NewConverter(desc *Description, opts Options, runID string, done map[string]struct{}) *Converter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{
		desc:   desc,
		opts:   opts,
		logger: logger,
		runID:  runID,
		target: desc.Target,
		done:   done,
	}
}

// Run 按描述转换整个源目录树
func Run(ctx context.Context, desc *Description, opts Options) (Summary, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
		opts.Logger = logger
	}
	if opts.Resume && opts.Journal == nil {
		return Summary{}, ErrResumeWithoutJournal
	}

	rules, err := desc.TreeRules()
	if err != nil {
		return Summary{}, err
	}

	// 1. 断点续跑：取出已完成的源文件
	var done map[string]struct{}
	if opts.Resume {
		done, err = opts.Journal.CompletedSources(ctx, desc.Target)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to read journal: %w", err)
		}
		logger.Info("resuming", "completed", len(done))
	}

	// 2. 登记本次运行
	var runID string
	if opts.Journal != nil {
		run, err := opts.Journal.BeginRun(ctx, desc.Source, desc.Target, desc)
		if err != nil {
			return Summary{}, err
		}
		runID = run.ID
	}

	conv := NewConverter(desc, opts, runID, done)
	start := time.Now()
	runErr := tree.CopyTree(ctx, desc.Source, desc.Target, rules, conv.Handle, tree.Options{
		Workers:        opts.Workers,
		DebouncePeriod: opts.DebouncePeriod,
		Codec:          opts.Codec,
		Logger:         logger,
	})
	summary := conv.Summary()

	// 3. 结束运行 (即使 ctx 已取消也要落盘)
	if opts.Journal != nil {
		tasks := int(summary.Converted + summary.Copied + summary.Skipped)
		if err := opts.Journal.FinishRun(context.WithoutCancel(ctx), runID, tasks, runErr); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	logger.Info("conversion finished",
		"run", runID,
		"converted", summary.Converted,
		"copied", summary.Copied,
		"skipped", summary.Skipped,
		"flagged", summary.Flagged,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return summary, runErr
}

// Summary 返回目前为止的统计
func (c *Converter) Summary() Summary {
	return Summary{
		RunID:     c.runID,
		Converted: c.summary.converted.Load(),
		Copied:    c.summary.copied.Load(),
		Skipped:   c.summary.skipped.Load(),
		Flagged:   c.summary.flagged.Load(),
	}
}

// outcome 是单个任务写出的内容
type outcome struct {
	files []journal.FileRecord
	flags map[string]any
}

func (o *outcome) add(e dataset.Entry) {
	o.files = append(o.files, journal.FileRecord{Name: e.Name, Hash: string(e.Hash), Size: e.Size})
}

// Handle 实现 tree.Handler
func (c *Converter) Handle(ctx context.Context, task tree.Task) error {
	rel := task.Relative
	log := c.logger.With("source", rel, "task", fmt.Sprintf("%d/%d", task.Index+1, task.Total))

	if _, ok := c.done[rel]; ok {
		c.summary.skipped.Add(1)
		log.Debug("already converted, skipping")
		return nil
	}

	format := c.desc.FormatOf(rel)
	start := time.Now()

	var out outcome
	var err error
	if format == aer.FormatOther {
		err = c.copyOther(task, &out)
	} else {
		err = c.decode(task, format, &out, log)
	}

	status := journal.TaskDone
	if err != nil {
		status = journal.TaskFailed
	}
	if recErr := c.record(ctx, task, format, status, &out, err, time.Since(start)); recErr != nil {
		err = errors.Join(err, recErr)
	}
	if err != nil {
		return err
	}

	if format == aer.FormatOther {
		c.summary.copied.Add(1)
	} else {
		c.summary.converted.Add(1)
	}
	if len(out.flags) > 0 {
		c.summary.flagged.Add(1)
	}
	log.Debug("done", "format", format, "files", len(out.files), "elapsed", time.Since(start))
	return nil
}

// copyOther 不解码，分块复制到 other file
func (c *Converter) copyOther(task tree.Task, out *outcome) error {
	name, md, err := c.desc.Resolve(task.Relative, task.Name, false)
	if err != nil {
		return err
	}

	src, err := os.Open(task.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	entry, err := task.Directory.WriteOtherFile(name, md, func(f *dataset.File) error {
		_, err := f.ReadFrom(src)
		return err
	})
	if err != nil {
		return err
	}
	out.add(entry)
	return nil
}

func (c *Converter) decode(task tree.Task, format aer.Format, out *outcome, log *slog.Logger) error {
	name, md, err := c.desc.Resolve(task.Relative, task.Name, true)
	if err != nil {
		return err
	}
	sensor := c.desc.SensorOf(format)

	// 1. 解码 (整个文件读入内存)
	data, err := os.ReadFile(task.Source)
	if err != nil {
		return err
	}
	res, err := aer.Decode(format, data, aer.Gen2Decoder{Width: int(sensor.Width), Height: int(sensor.Height)})
	if err != nil {
		return err
	}

	// 2. 数据问题标记
	flags := map[string]any{}
	if res.APSCorrupted {
		flags["aps_corrupted"] = true
	}
	if res.IMUCorrupted {
		flags["imu_corrupted"] = true
	}

	// 3. 时间戳
	if len(res.DVS) > 0 {
		policy := c.desc.PolicyOf(task.Relative)
		if resets := aer.Resets(res.DVS); len(resets) > 0 {
			flags["timestamp_resets"] = len(resets)
			flags["timestamp_policy"] = string(policy)
		}
		res.DVS, err = aer.RepairTimestamps(res.DVS, policy)
		if err != nil {
			return err
		}
	}
	if len(flags) > 0 {
		out.flags = flags
		log.Warn("recoverable data problems", flagAttrs(flags)...)
	}

	// 4. 写出
	dir := task.Directory
	if res.Header != "" {
		entry, err := dir.WriteOtherFile(name+HeaderSuffix, nil, func(f *dataset.File) error {
			_, err := f.WriteString(res.Header)
			return err
		})
		if err != nil {
			return err
		}
		out.add(entry)
	}

	arrays := []struct {
		layout events.Layout
		array  events.Array
		n      int
	}{
		{events.DVS(sensor.Width, sensor.Height), res.DVS, len(res.DVS)},
		{res.APS.Layout(), res.APS, len(res.APS)},
		{events.IMU(), res.IMU, len(res.IMU)},
	}
	for _, a := range arrays {
		if a.n == 0 {
			continue
		}
		entry, err := dir.WriteFile(a.layout, name, md.Clone(), func(f *dataset.File) error {
			return f.WriteArray(a.array)
		})
		if err != nil {
			return err
		}
		out.add(entry)
	}
	return nil
}

func flagAttrs(flags map[string]any) []any {
	attrs := make([]any, 0, 2*len(flags))
	for _, k := range []string{"aps_corrupted", "imu_corrupted", "timestamp_resets", "timestamp_policy"} {
		if v, ok := flags[k]; ok {
			attrs = append(attrs, k, v)
		}
	}
	return attrs
}

func (c *Converter) record(ctx context.Context, task tree.Task, format aer.Format, status string, out *outcome, taskErr error, elapsed time.Duration) error {
	if c.opts.Journal == nil || c.runID == "" {
		return nil
	}
	files, err := journal.NewFiles(out.files)
	if err != nil {
		return err
	}
	flags, err := journal.NewFlags(out.flags)
	if err != nil {
		return err
	}
	rec := &journal.TaskRecord{
		RunID:      c.runID,
		Target:     c.target,
		Source:     task.Relative,
		Status:     status,
		Format:     string(format),
		Files:      files,
		Flags:      flags,
		DurationMS: elapsed.Milliseconds(),
	}
	if taskErr != nil {
		rec.Error = taskErr.Error()
	}
	return c.opts.Journal.RecordTask(context.WithoutCancel(ctx), rec)
}
