package aer

import "fmt"

// Format 是源文件的编码格式
type Format string

const (
	FormatAedat1 Format = "aedat1"
	FormatAedat2 Format = "aedat2"
	FormatNMNIST Format = "nmnist"
	// FormatOther 表示不解码，按原始字节复制
	FormatOther Format = "other"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatAedat1, FormatAedat2, FormatNMNIST, FormatOther:
		return f, nil
	default:
		return "", fmt.Errorf("unknown source format %q", s)
	}
}

// Decode 按格式分发到具体的解码器
// gen2 决定第二代格式的传感器尺寸
func Decode(format Format, data []byte, gen2 Gen2Decoder) (*Result, error) {
	switch format {
	case FormatAedat1:
		return DecodeGen1(data)
	case FormatAedat2:
		return gen2.Decode(data)
	case FormatNMNIST:
		return DecodeNMNIST(data), nil
	default:
		return nil, fmt.Errorf("format %q cannot be decoded", format)
	}
}
