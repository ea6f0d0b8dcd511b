// Package aer 解码 AER/AEDAT 传感器录制文件。
//
// 所有解码函数都是纯函数：输入一段只读字节，输出类型化的事件数组，
// 不做任何 I/O，也不记录日志。可恢复的数据问题通过 Result 上的标记返回，
// 只有文件头截断这类无法继续的问题才返回错误。
package aer

import (
	"bytes"
	"errors"

	"undrgen/pkg/events"
)

var (
	ErrTruncatedHeader   = errors.New("end of input reached while reading the header")
	ErrTimestampDisorder = errors.New("timestamps are not monotonic")
)

// Result 是一次解码的结果
// 数组为 nil 表示该类型的数据不存在
type Result struct {
	Header string // 原始注释头，空字符串表示没有

	DVS events.DVSEvents
	APS events.APSFrames
	IMU events.IMUSamples

	// APSCorrupted 表示存在 APS 数据但无法重建出任何一帧
	APSCorrupted bool
	// IMUCorrupted 表示 IMU 分组校验失败，整条流的 IMU 数据被丢弃
	IMUCorrupted bool
}

// ReadHeader 剥离开头的 ASCII 注释行 ('#' 开头，'\n' 结尾)
// 遇到第一行非 '#' 或含非 ASCII 字节的行时停止；
// 如果某个 '#' 行直到输入结束都没有换行符，返回 ErrTruncatedHeader
func ReadHeader(data []byte) (string, []byte, error) {
	i := 0
	for i < len(data) && data[i] == '#' {
		end := bytes.IndexByte(data[i+1:], '\n')
		if end < 0 {
			return "", nil, ErrTruncatedHeader
		}
		end += i + 1
		if !isASCII(data[i:end]) {
			break
		}
		i = end + 1
	}
	return string(data[:i]), data[i:], nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}
