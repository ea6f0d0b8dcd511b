package aer

import "encoding/binary"

// -----------------------------------------------------------------------------
// 构造第二代格式记录的辅助函数
// -----------------------------------------------------------------------------

func gen2Record(d0, d1, d2, d3 byte, t uint32) []byte {
	b := []byte{d0, d1, d2, d3, 0, 0, 0, 0}
	binary.BigEndian.PutUint32(b[4:], t)
	return b
}

func xyBytes(x, y int) (d0, d1, d2hi byte) {
	d0 = byte(y>>2) & 0x7F
	d1 = byte(y&0x3)<<6 | byte(x>>4)&0x3F
	d2hi = byte(x&0xF) << 4
	return
}

func dvsRecord(x, y int, pol byte, t uint32) []byte {
	d0, d1, d2 := xyBytes(x, y)
	// 极性位：bit3 -> p 的低位，bit2 -> p 的高位
	d2 |= (pol&1)<<3 | (pol&2)<<1
	return gen2Record(d0, d1, d2, 0, t)
}

func apsRecord(x, y int, phase byte, sample uint16, t uint32) []byte {
	d0, d1, d2 := xyBytes(x, y)
	d2 |= phase | byte(sample>>8)&0x03
	return gen2Record(0x80|d0, d1, d2, byte(sample), t)
}

func resetRecord(x, y int, sample uint16, t uint32) []byte {
	return apsRecord(x, y, apsPhaseReset, sample, t)
}

func signalRecord(x, y int, sample uint16, t uint32) []byte {
	return apsRecord(x, y, apsPhaseSignal, sample, t)
}

func imuRecord(tag int, value uint16, t uint32) []byte {
	d0 := 0x80 | byte(tag&0x7)<<4 | byte(value>>12)&0x0F
	d1 := byte(value >> 4)
	d2 := byte(value&0x0F)<<4 | imuTag
	return gen2Record(d0, d1, d2, 0, t)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
