package core

import (
	"encoding/hex"
	"hash"

	"undrgen/pkg/types"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Hasher 增量计算内容哈希 (SHA3-224)，并统计写入的字节数
// 每个打开的文件各自持有实例，不存在全局共享状态
type Hasher struct {
	h hash.Hash
	n int64
}

func NewHasher() *Hasher {
	return &Hasher{h: sha3.New224()}
}

// Write 实现 io.Writer，永远不会返回错误
func (h *Hasher) Write(p []byte) (int, error) {
	h.h.Write(p)
	h.n += int64(len(p))
	return len(p), nil
}

// Size 返回累计写入的字节数
func (h *Hasher) Size() int64 { return h.n }

// Sum 返回当前的十六进制摘要，不影响后续写入
func (h *Hasher) Sum() types.Hash {
	return types.Hash(hex.EncodeToString(h.h.Sum(nil)))
}

// CalculateBlobHash 计算一段完整数据的 Hash
func CalculateBlobHash(data []byte) types.Hash {
	sum := sha3.Sum224(data)
	return types.Hash(hex.EncodeToString(sum[:]))
}

// Fingerprint 是索引文件内容的指纹 (BLAKE3)
// 只用于判断“内容是否变化”，不写入任何索引
type Fingerprint [32]byte

func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint(blake3.Sum256(data))
}
