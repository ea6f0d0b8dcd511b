package dataset

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"undrgen/pkg/compress"
	"undrgen/pkg/events"

	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T, path string, opts Options) *Directory {
	t.Helper()
	d, err := OpenDirectory(path, opts)
	require.NoError(t, err)
	return d
}

// mustDecompress 读取已发布的文件并解压
func mustDecompress(t *testing.T, path string, codec compress.Codec) []byte {
	t.Helper()
	packed, err := os.ReadFile(path)
	require.NoError(t, err)
	r, err := codec.NewReader(bytes.NewReader(packed))
	require.NoError(t, err)
	defer r.Close()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	return raw
}

func mustLoadManifest(t *testing.T, dir string) *Manifest {
	t.Helper()
	m, err := LoadManifest(filepath.Join(dir, IndexFileName))
	require.NoError(t, err)
	return m
}

func sampleEvents(n int) events.DVSEvents {
	ev := make(events.DVSEvents, n)
	for i := range ev {
		ev[i] = events.DVSEvent{T: uint64(i * 10), X: uint16(i % 240), Y: uint16(i % 180), P: uint8(i % 2)}
	}
	return ev
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.write"))
	require.NoError(t, err)
	return matches
}
