package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"undrgen/pkg/compress"
	"undrgen/pkg/core"
	"undrgen/pkg/events"
	"undrgen/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptyIndex = `{
    "directories": [],
    "files": [],
    "other_files": [],
    "version": {
        "major": 1,
        "minor": 0,
        "patch": 0
    }
}
`

func TestOpenDirectory_CreatesDefaultIndex(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dataset")
	mustOpen(t, root, Options{})

	content, err := os.ReadFile(filepath.Join(root, IndexFileName))
	require.NoError(t, err)
	assert.Equal(t, emptyIndex, string(content))
}

func TestOpenDirectory_SortsLoadedIndex(t *testing.T) {
	root := t.TempDir()
	index := `{"directories": ["b", "a"], "files": [{"name": "z.dvs", "hash": "x", "size": 1, "metadata": {}, "compressions": []}, {"name": "c.dvs", "hash": "y", "size": 1, "metadata": {}, "compressions": []}], "other_files": [], "version": {"major": 1, "minor": 0, "patch": 0}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, IndexFileName), []byte(index), 0o644))

	d := mustOpen(t, root, Options{})
	m := d.Manifest()
	assert.Equal(t, []string{"a", "b"}, m.Directories)
	require.Len(t, m.Files, 2)
	assert.Equal(t, "c.dvs", m.Files[0].Name)
	assert.Equal(t, "z.dvs", m.Files[1].Name)
}

func TestOpenDirectory_DuplicateNames(t *testing.T) {
	tests := []struct {
		name  string
		index string
	}{
		{"directories", `{"directories": ["a", "a"], "files": [], "other_files": []}`},
		{"file vs directory", `{"directories": ["a"], "files": [{"name": "a", "hash": "x"}], "other_files": []}`},
		{"file vs other file", `{"directories": [], "files": [{"name": "a", "hash": "x"}], "other_files": [{"name": "a", "hash": "y"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, IndexFileName), []byte(tt.index), 0o644))
			_, err := OpenDirectory(root, Options{})
			assert.ErrorIs(t, err, ErrDuplicateName)
		})
	}
}

func TestFile_RoundTrip(t *testing.T) {
	for _, codec := range []compress.Codec{compress.Zstd, compress.LZ4} {
		t.Run(codec.Name(), func(t *testing.T) {
			root := t.TempDir()
			d := mustOpen(t, root, Options{Codec: codec})

			ev := sampleEvents(1000)
			entry, err := d.WriteFile(events.DVS(240, 180), "recording", types.Metadata{"scene": "office"}, func(f *File) error {
				// 分两次写，验证流式编码
				if err := f.WriteArray(ev[:400]); err != nil {
					return err
				}
				return f.WriteArray(ev[400:])
			})
			require.NoError(t, err)

			// 1. 解压后的内容与编码结果逐字节相同
			want, err := ev.AppendBinary(nil)
			require.NoError(t, err)
			stored := filepath.Join(root, "recording.dvs"+codec.Suffix())
			got := mustDecompress(t, stored, codec)
			assert.Equal(t, want, got)

			// 2. 索引条目
			assert.Equal(t, "recording.dvs", entry.Name)
			assert.Equal(t, int64(len(want)), entry.Size)
			assert.Equal(t, int64(1000*events.DVSStride), entry.Size)
			require.NotNil(t, entry.Properties)
			assert.Equal(t, "dvs", entry.Properties.Type)
			assert.Equal(t, uint16(240), *entry.Properties.Width)
			assert.Equal(t, uint16(180), *entry.Properties.Height)
			assert.Equal(t, "office", entry.Metadata["scene"])

			// 3. 持久化的索引里也有同样的条目
			m := mustLoadManifest(t, root)
			require.Len(t, m.Files, 1)
			assert.Equal(t, entry.Hash, m.Files[0].Hash)
			assert.Empty(t, tempFiles(t, root))
		})
	}
}

func TestFile_HashIntegrity(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})

	payload := []byte(strings.Repeat("event camera ", 5000))
	entry, err := d.WriteOtherFile("notes.txt", nil, func(f *File) error {
		_, err := f.Write(payload)
		return err
	})
	require.NoError(t, err)

	// 未压缩内容的哈希与大小
	assert.Equal(t, core.CalculateBlobHash(payload), entry.Hash)
	assert.Equal(t, int64(len(payload)), entry.Size)
	assert.True(t, entry.Hash.IsValid())

	// 磁盘上压缩字节的哈希与大小
	packed, err := os.ReadFile(filepath.Join(root, "notes.txt.zst"))
	require.NoError(t, err)
	require.Len(t, entry.Compressions, 1)
	c := entry.Compressions[0]
	assert.Equal(t, core.CalculateBlobHash(packed), c.Hash)
	assert.Equal(t, int64(len(packed)), c.Size)
	assert.Equal(t, ".zst", c.Suffix)
	assert.Equal(t, "zstd", c.Codec)
	assert.Nil(t, entry.Properties, "other file 没有类型属性")
	assert.NotNil(t, entry.Metadata, "nil metadata 写成空对象")
}

func TestFile_EmptyFile(t *testing.T) {
	for _, codec := range []compress.Codec{compress.Zstd, compress.LZ4} {
		t.Run(codec.Name(), func(t *testing.T) {
			root := t.TempDir()
			d := mustOpen(t, root, Options{Codec: codec})

			entry, err := d.WriteFile(events.IMU(), "empty", nil, func(f *File) error {
				return f.WriteArray(events.IMUSamples{})
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), entry.Size)
			assert.Equal(t, core.CalculateBlobHash(nil), entry.Hash)
			assert.Empty(t, mustDecompress(t, filepath.Join(root, "empty.imu"+codec.Suffix()), codec))
		})
	}
}

func TestFile_ReadFrom(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})

	// 超过一个分块的大小
	payload := make([]byte, copyChunkSize*2+123)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	f, err := d.CreateOtherFile("raw.bin", nil)
	require.NoError(t, err)
	n, err := f.ReadFrom(strings.NewReader(string(payload)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	require.NoError(t, f.Close())

	assert.Equal(t, payload, mustDecompress(t, filepath.Join(root, "raw.bin.zst"), compress.Zstd))

	// 类型化文件不能分块复制
	typed, err := d.CreateFile(events.DVS(240, 180), "typed", nil)
	require.NoError(t, err)
	defer typed.Abort()
	_, err = typed.ReadFrom(strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrLayoutMismatch)
}

func TestFile_Errors(t *testing.T) {
	t.Run("double close", func(t *testing.T) {
		d := mustOpen(t, t.TempDir(), Options{})
		f, err := d.CreateFile(events.DVS(240, 180), "a", nil)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.ErrorIs(t, f.Close(), ErrDoubleClose)

		_, err = f.Write(make([]byte, events.DVSStride))
		assert.ErrorIs(t, err, ErrFileClosed)
	})

	t.Run("misaligned write", func(t *testing.T) {
		d := mustOpen(t, t.TempDir(), Options{})
		f, err := d.CreateFile(events.DVS(240, 180), "a", nil)
		require.NoError(t, err)
		defer f.Abort()
		_, err = f.Write(make([]byte, events.DVSStride+1))
		assert.ErrorIs(t, err, ErrLayoutMismatch)
	})

	t.Run("wrong record kind", func(t *testing.T) {
		d := mustOpen(t, t.TempDir(), Options{})
		f, err := d.CreateFile(events.DVS(240, 180), "a", nil)
		require.NoError(t, err)
		defer f.Abort()
		err = f.WriteArray(events.IMUSamples{{T: 1}})
		assert.ErrorIs(t, err, ErrLayoutMismatch)
	})

	t.Run("aps dimensions", func(t *testing.T) {
		d := mustOpen(t, t.TempDir(), Options{})
		f, err := d.CreateFile(events.APS(4, 2), "a", nil)
		require.NoError(t, err)
		defer f.Abort()
		frame := events.APSFrame{Width: 2, Height: 2, Pixels: make([]uint16, 4)}
		err = f.WriteArray(events.APSFrames{frame})
		assert.ErrorIs(t, err, ErrLayoutMismatch)

		frame = events.APSFrame{Width: 4, Height: 2, Pixels: make([]uint16, 8)}
		assert.NoError(t, f.WriteArray(events.APSFrames{frame}))
	})

	t.Run("array into other file", func(t *testing.T) {
		d := mustOpen(t, t.TempDir(), Options{})
		f, err := d.CreateOtherFile("a.txt", nil)
		require.NoError(t, err)
		defer f.Abort()
		assert.ErrorIs(t, f.WriteArray(sampleEvents(1)), ErrLayoutMismatch)
	})

	t.Run("duplicate add", func(t *testing.T) {
		d := mustOpen(t, t.TempDir(), Options{})
		_, err := d.WriteFile(events.IMU(), "a", nil, func(*File) error { return nil })
		require.NoError(t, err)
		_, err = d.WriteFile(events.IMU(), "a", nil, func(*File) error { return nil })
		assert.ErrorIs(t, err, ErrDuplicateAdd)

		_, err = d.CreateSubdirectory("sub")
		require.NoError(t, err)
		_, err = d.CreateSubdirectory("sub")
		assert.ErrorIs(t, err, ErrDuplicateAdd)
	})

	t.Run("file named like a directory", func(t *testing.T) {
		root := t.TempDir()
		d := mustOpen(t, root, Options{})
		_, err := d.CreateSubdirectory("notes.txt")
		require.NoError(t, err)
		_, err = d.WriteOtherFile("notes.txt", nil, func(*File) error { return nil })
		assert.ErrorIs(t, err, ErrDuplicateAdd, "同一次运行内先报重复添加")

		// 新的一次运行：名称没有被本次运行占用，但与已登记的目录冲突
		d = mustOpen(t, root, Options{})
		_, err = d.WriteOtherFile("notes.txt", nil, func(*File) error { return nil })
		assert.ErrorIs(t, err, ErrDuplicateName)
	})

	t.Run("invalid names", func(t *testing.T) {
		d := mustOpen(t, t.TempDir(), Options{})
		for _, name := range []string{"", "..", "a/b", IndexFileName} {
			_, err := d.CreateOtherFile(name, nil)
			assert.Error(t, err, name)
		}
	})
}

func TestWriteFile_AbortsOnError(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})

	boom := fmt.Errorf("boom")
	_, err := d.WriteFile(events.DVS(240, 180), "broken", nil, func(f *File) error {
		if err := f.WriteArray(sampleEvents(10)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// 没有发布，没有登记，没有临时文件
	_, statErr := os.Stat(filepath.Join(root, "broken.dvs.zst"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, tempFiles(t, root))
	assert.Empty(t, mustLoadManifest(t, root).Files)

	// 名称没有被占用，可以重新写入
	_, err = d.WriteFile(events.DVS(240, 180), "broken", nil, func(f *File) error {
		return f.WriteArray(sampleEvents(10))
	})
	assert.NoError(t, err)
}

func TestDirectory_OrderingInvariant(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})

	for _, name := range []string{"m", "c", "x", "a"} {
		_, err := d.CreateSubdirectory("dir_" + name)
		require.NoError(t, err)
	}
	for _, name := range []string{"zeta", "beta", "alpha", "gamma"} {
		_, err := d.WriteFile(events.IMU(), name, nil, func(*File) error { return nil })
		require.NoError(t, err)
	}
	for _, name := range []string{"readme.md", "calib.txt", "b.header"} {
		_, err := d.WriteOtherFile(name, nil, func(*File) error { return nil })
		require.NoError(t, err)
	}

	m := mustLoadManifest(t, root)
	assert.True(t, sort.StringsAreSorted(m.Directories))
	assert.Equal(t, []string{"dir_a", "dir_c", "dir_m", "dir_x"}, m.Directories)

	names := func(list []Entry) []string {
		out := make([]string, len(list))
		for i, e := range list {
			out[i] = e.Name
		}
		return out
	}
	assert.Equal(t, []string{"alpha.imu", "beta.imu", "gamma.imu", "zeta.imu"}, names(m.Files))
	assert.Equal(t, []string{"b.header", "calib.txt", "readme.md"}, names(m.OtherFiles))

	// 子目录各自有索引
	for _, name := range m.Directories {
		_, err := os.Stat(filepath.Join(root, name, IndexFileName))
		assert.NoError(t, err)
	}
}

func TestDirectory_IdempotentPublish(t *testing.T) {
	root := t.TempDir()
	write := func() *Manifest {
		d := mustOpen(t, root, Options{})
		_, err := d.WriteFile(events.DVS(240, 180), "rec", types.Metadata{"run": 1}, func(f *File) error {
			return f.WriteArray(sampleEvents(50))
		})
		require.NoError(t, err)
		return d.Manifest()
	}

	first := write()

	// 模拟一次中断：留下一个写了一半的临时文件
	stale := filepath.Join(root, "rec.dvs.zst.write")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))

	second := write()

	assert.Equal(t, first.Files, second.Files, "重新运行产生相同的条目")
	assert.Empty(t, tempFiles(t, root))
	assert.Equal(t, sampleEventsBinary(t, 50), mustDecompress(t, filepath.Join(root, "rec.dvs.zst"), compress.Zstd))

	// 同名文件被替换，而不是追加
	m := mustLoadManifest(t, root)
	assert.Len(t, m.Files, 1)
}

func sampleEventsBinary(t *testing.T, n int) []byte {
	t.Helper()
	b, err := sampleEvents(n).AppendBinary(nil)
	require.NoError(t, err)
	return b
}

func TestDirectory_ReplaceAcrossLists(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})
	_, err := d.WriteOtherFile("rec.dvs", nil, func(*File) error { return nil })
	require.NoError(t, err)

	// 新的一次运行把同名条目改成类型化文件
	d = mustOpen(t, root, Options{})
	_, err = d.WriteFile(events.DVS(240, 180), "rec", nil, func(*File) error { return nil })
	require.NoError(t, err)

	m := mustLoadManifest(t, root)
	assert.Len(t, m.Files, 1)
	assert.Empty(t, m.OtherFiles)
}

func TestDirectory_ConcurrentWriters(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.WriteFile(events.DVS(240, 180), fmt.Sprintf("rec_%02d", i), nil, func(f *File) error {
				return f.WriteArray(sampleEvents(100 + i))
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	m := mustLoadManifest(t, root)
	require.Len(t, m.Files, workers)
	for i, e := range m.Files {
		assert.Equal(t, fmt.Sprintf("rec_%02d.dvs", i), e.Name)
		assert.Equal(t, int64((100+i)*events.DVSStride), e.Size)
	}
}

func TestDirectory_ManifestIsSnapshot(t *testing.T) {
	d := mustOpen(t, t.TempDir(), Options{})
	_, err := d.WriteFile(events.DVS(240, 180), "rec", types.Metadata{"scene": "office"}, func(f *File) error {
		return f.WriteArray(sampleEvents(1))
	})
	require.NoError(t, err)

	snap := d.Manifest()
	*snap.Files[0].Properties.Width = 7
	snap.Files[0].Metadata["scene"] = "street"

	e, ok := d.Manifest().Lookup("rec.dvs")
	require.True(t, ok)
	assert.Equal(t, uint16(240), *e.Properties.Width)
	assert.Equal(t, "office", e.Metadata["scene"])
}

func TestDirectory_SubdirectoryCollisionKeepsName(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})
	_, err := d.WriteOtherFile("notes.txt", nil, func(f *File) error {
		_, err := f.WriteString("v1")
		return err
	})
	require.NoError(t, err)

	// 新的一次运行：目录与已登记的文件冲突，失败后名称不应被占用
	d = mustOpen(t, root, Options{})
	_, err = d.CreateSubdirectory("notes.txt")
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.NoDirExists(t, filepath.Join(root, "notes.txt"))

	_, err = d.WriteOtherFile("notes.txt", nil, func(f *File) error {
		_, err := f.WriteString("v2")
		return err
	})
	require.NoError(t, err)
	got := mustDecompress(t, filepath.Join(root, "notes.txt"+d.Codec().Suffix()), d.Codec())
	assert.Equal(t, "v2", string(got))
}

func TestDirectory_OpenHandlesReserveName(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})

	first, err := d.CreateOtherFile("a.txt", nil)
	require.NoError(t, err)
	_, err = first.WriteString("first")
	require.NoError(t, err)

	// 第一个句柄还没关闭：同名的第二个句柄被拒绝，且不会截断临时文件
	_, err = d.CreateOtherFile("a.txt", nil)
	assert.ErrorIs(t, err, ErrDuplicateAdd)
	_, err = d.CreateSubdirectory("a.txt")
	assert.ErrorIs(t, err, ErrDuplicateAdd)

	require.NoError(t, first.Close())
	got := mustDecompress(t, filepath.Join(root, "a.txt"+d.Codec().Suffix()), d.Codec())
	assert.Equal(t, "first", string(got))

	// 关闭后名称已被本次运行添加
	_, err = d.CreateOtherFile("a.txt", nil)
	assert.ErrorIs(t, err, ErrDuplicateAdd)

	// 放弃的句柄释放名称
	aborted, err := d.CreateOtherFile("b.txt", nil)
	require.NoError(t, err)
	require.NoError(t, aborted.Abort())
	_, err = d.WriteOtherFile("b.txt", nil, func(*File) error { return nil })
	assert.NoError(t, err)
}

func TestDirectory_SyncSaveReleasesUpdateLock(t *testing.T) {
	d := mustOpen(t, t.TempDir(), Options{})

	// 同步保存时，索引写盘发生在 updateMu 之外
	var held []bool
	orig := writeIndexFile
	writeIndexFile = func(path string, data []byte) error {
		free := d.updateMu.TryLock()
		if free {
			d.updateMu.Unlock()
		}
		held = append(held, !free)
		return orig(path, data)
	}
	t.Cleanup(func() { writeIndexFile = orig })

	_, err := d.WriteOtherFile("a.txt", nil, func(*File) error { return nil })
	require.NoError(t, err)
	_, err = d.CreateSubdirectory("sub")
	require.NoError(t, err)

	require.NotEmpty(t, held)
	assert.NotContains(t, held, true)
	m := mustLoadManifest(t, d.Path())
	_, ok := m.Lookup("a.txt")
	assert.True(t, ok)
	assert.True(t, m.HasDirectory("sub"))
}
