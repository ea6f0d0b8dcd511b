package aer

import (
	"encoding/binary"

	"undrgen/pkg/events"
)

// 第一代格式 (AER-DAT 1.0, DVS128) 的记录：
//
//	byte0: p_hi(1) | y(7)
//	byte1: 127-x (7) | p_lo(1)
//	byte2..5: t, u32 大端
const gen1Stride = 6

// DecodeGen1 解码第一代格式，只会产生 DVS 事件
// 结尾不足一条记录的字节被丢弃
func DecodeGen1(data []byte) (*Result, error) {
	header, body, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	res := &Result{Header: header}

	n := len(body) / gen1Stride
	if n == 0 {
		return res, nil
	}
	dvs := make(events.DVSEvents, n)
	for i := range dvs {
		rec := body[i*gen1Stride : (i+1)*gen1Stride]
		b0, b1 := rec[0], rec[1]
		dvs[i] = events.DVSEvent{
			T: uint64(binary.BigEndian.Uint32(rec[2:6])),
			X: uint16(127 - (b1 >> 1)),
			Y: uint16(b0 & 0x7F),
			P: ((b0 & 0x80) >> 6) | (b1 & 1),
		}
	}
	res.DVS = dvs
	return res, nil
}
