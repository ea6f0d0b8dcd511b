package convert

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"undrgen/pkg/dataset"
	"undrgen/pkg/events"
	"undrgen/pkg/exporter"
	"undrgen/pkg/journal"
	"undrgen/pkg/storage/disk"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gen1Bytes 按第一代格式编码 DVS 事件 (x < 128)
func gen1Bytes(header string, ev events.DVSEvents) []byte {
	out := []byte(header)
	for _, e := range ev {
		rec := make([]byte, 6)
		rec[0] = (e.P>>1&1)<<7 | byte(e.Y)&0x7F
		rec[1] = byte(127-e.X)<<1 | e.P&1
		binary.BigEndian.PutUint32(rec[2:], uint32(e.T))
		out = append(out, rec...)
	}
	return out
}

// nmnistBytes 按 N-MNIST 格式编码 DVS 事件 (t < 2^23)
func nmnistBytes(ev events.DVSEvents) []byte {
	var out []byte
	for _, e := range ev {
		out = append(out, byte(e.X), byte(e.Y), e.P<<7|byte(e.T>>16)&0x7F, byte(e.T>>8), byte(e.T))
	}
	return out
}

func mustWrite(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// setupJournal 每个测试一个内存库
func setupJournal(t *testing.T) *journal.Repository {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	jdb := journal.NewWithConn(db)
	require.NoError(t, jdb.AutoMigrate())
	return journal.NewRepository(jdb)
}

// mustExport 读出目标数据集中的一个文件并校验
func mustExport(t *testing.T, root, dir, name string) []byte {
	t.Helper()
	store, err := disk.NewAdapter(root)
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = exporter.NewExporter(store).ExportFile(context.Background(), dir, name, &buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func mustManifest(t *testing.T, dir string) *dataset.Manifest {
	t.Helper()
	m, err := dataset.LoadManifest(filepath.Join(dir, dataset.IndexFileName))
	require.NoError(t, err)
	return m
}

func entryNames(list []dataset.Entry) []string {
	names := make([]string, 0, len(list))
	for _, e := range list {
		names = append(names, e.Name)
	}
	return names
}

func mustEncode(t *testing.T, a events.Array) []byte {
	t.Helper()
	b, err := a.AppendBinary(nil)
	require.NoError(t, err)
	return b
}
