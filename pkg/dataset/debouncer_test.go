package dataset

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"undrgen/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_FlushesEverythingOnClose(t *testing.T) {
	root := t.TempDir()
	// 周期足够长，所有写盘都只能来自 Close 的最终刷新
	deb := NewDebouncer(time.Hour, nil)

	top := mustOpen(t, root, Options{Debouncer: deb})

	const dirs = 12
	const filesPerDir = 5
	var wg sync.WaitGroup
	errs := make(chan error, dirs)
	for i := range dirs {
		sub, err := top.CreateSubdirectory(fmt.Sprintf("dir_%02d", i))
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range filesPerDir {
				_, err := sub.WriteFile(events.DVS(240, 180), fmt.Sprintf("rec_%d", j), nil, func(f *File) error {
					return f.WriteArray(sampleEvents(j + 1))
				})
				if err != nil {
					errs <- err
					return
				}
			}
			errs <- nil
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// 关闭前，顶层索引仍然是空的
	assert.Empty(t, mustLoadManifest(t, root).Directories)

	require.NoError(t, deb.Close())

	m := mustLoadManifest(t, root)
	require.Len(t, m.Directories, dirs)
	for _, name := range m.Directories {
		sub := mustLoadManifest(t, filepath.Join(root, name))
		assert.Len(t, sub.Files, filesPerDir, name)
	}
}

func TestDebouncer_PeriodicFlush(t *testing.T) {
	root := t.TempDir()
	deb := NewDebouncer(10*time.Millisecond, nil)
	defer deb.Close()

	d := mustOpen(t, root, Options{Debouncer: deb})
	_, err := d.WriteFile(events.IMU(), "imu", nil, func(*File) error { return nil })
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		m, err := LoadManifest(filepath.Join(root, IndexFileName))
		return err == nil && len(m.Files) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDebouncer_UpdatesAfterCloseAreSynchronous(t *testing.T) {
	root := t.TempDir()
	deb := NewDebouncer(time.Hour, nil)
	d := mustOpen(t, root, Options{Debouncer: deb})

	require.NoError(t, deb.Close())
	require.NoError(t, deb.Close(), "重复关闭是安全的")

	_, err := d.WriteOtherFile("late.txt", nil, func(f *File) error {
		_, err := f.WriteString("late")
		return err
	})
	require.NoError(t, err)

	m := mustLoadManifest(t, root)
	require.Len(t, m.OtherFiles, 1)
	assert.Equal(t, "late.txt", m.OtherFiles[0].Name)
}

func TestDirectory_SaveSkipsIdenticalContent(t *testing.T) {
	root := t.TempDir()
	d := mustOpen(t, root, Options{})
	_, err := d.CreateSubdirectory("a")
	require.NoError(t, err)

	first := d.written
	require.NoError(t, d.Save())
	assert.Equal(t, first, d.written)
	assert.True(t, d.hasWritten)
}
