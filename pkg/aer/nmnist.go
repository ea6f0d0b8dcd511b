package aer

import "undrgen/pkg/events"

// N-MNIST / ATIS 二进制格式，没有文件头，每条记录 5 字节：
//
//	byte0: x
//	byte1: y
//	byte2: p(1) | t[22:16] (7)
//	byte3: t[15:8]
//	byte4: t[7:0]
const nmnistStride = 5

// DecodeNMNIST 解码 N-MNIST 记录；时间戳溢出 (回绕) 不在这里处理，
// 由调用方通过 RepairTimestamps 选择策略
func DecodeNMNIST(data []byte) *Result {
	res := &Result{}
	n := len(data) / nmnistStride
	if n == 0 {
		return res
	}
	dvs := make(events.DVSEvents, n)
	for i := range dvs {
		rec := data[i*nmnistStride : (i+1)*nmnistStride]
		dvs[i] = events.DVSEvent{
			T: uint64(rec[2]&0x7F)<<16 | uint64(rec[3])<<8 | uint64(rec[4]),
			X: uint16(rec[0]),
			Y: uint16(rec[1]),
			P: rec[2] >> 7,
		}
	}
	res.DVS = dvs
	return res
}
