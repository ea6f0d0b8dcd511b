// pkg/types/common.go
package types

// Hash 代表内容的哈希 (SHA3-224 Hex String)
// 这是一个“值对象”，应当是不可变的。
type Hash string

// HashHexLen 是 SHA3-224 十六进制编码后的长度
const HashHexLen = 56

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool  { return h == "" }
func (h Hash) IsValid() bool { return len(h) == HashHexLen } // 简单的长度检查

// Short 返回用于日志输出的短哈希
func (h Hash) Short() string {
	if len(h) < 8 {
		return string(h)
	}
	return string(h[:8])
}

// Metadata 是调用方提供的任意键值对，原样写入索引
type Metadata map[string]any

// Clone 返回浅拷贝，避免调用方后续修改影响已登记的条目
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
