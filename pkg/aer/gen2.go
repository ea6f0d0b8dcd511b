package aer

import (
	"encoding/binary"
	"sort"

	"undrgen/pkg/events"
)

// 第二代格式 (AEDAT 2.0, DAVIS) 的记录：4 个数据字节 + u32 大端时间戳
// byte0 的最高位区分 DVS (0) 与 APS/IMU (1)；
// byte2 的 bit3..2 在 APS/IMU 记录中是子标签，0b11 表示 IMU
const gen2Stride = 8

const (
	apsPhaseMask   = 0x0C
	apsPhaseReset  = 0x00
	apsPhaseSignal = 0x04
	imuTag         = 0x0C
)

type record struct {
	d0, d1, d2, d3 byte
	t              uint32
}

// x 由 byte1 的低 6 位和 byte2 的高 4 位拼成
func (r record) x() int { return int(r.d1&0x3F)<<4 | int(r.d2>>4) }

// y 由 byte0 的低 7 位和 byte1 的高 2 位拼成
func (r record) y() int { return int(r.d0&0x7F)<<2 | int(r.d1>>6) }

func (r record) isDVS() bool { return r.d0>>7 == 0 }
func (r record) isAPS() bool { return !r.isDVS() && r.d2&apsPhaseMask != imuTag }

// Gen2Decoder 按固定的传感器尺寸解码第二代格式
type Gen2Decoder struct {
	Width  int
	Height int
}

// DAVIS240 是 DAVIS240 系列传感器 (240x180)
var DAVIS240 = Gen2Decoder{Width: 240, Height: 180}

// DecodeGen2 使用 DAVIS240 的尺寸解码
func DecodeGen2(data []byte) (*Result, error) {
	return DAVIS240.Decode(data)
}

// Decode 解码第二代格式。时间戳乱序时先按时间戳稳定排序再分类，
// 乱序本身不是错误
func (d Gen2Decoder) Decode(data []byte) (*Result, error) {
	header, body, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	res := &Result{Header: header}

	records := make([]record, len(body)/gen2Stride)
	sorted := true
	for i := range records {
		raw := body[i*gen2Stride : (i+1)*gen2Stride]
		records[i] = record{
			d0: raw[0], d1: raw[1], d2: raw[2], d3: raw[3],
			t: binary.BigEndian.Uint32(raw[4:8]),
		}
		if i > 0 && records[i].t < records[i-1].t {
			sorted = false
		}
	}
	if !sorted {
		sort.SliceStable(records, func(i, j int) bool { return records[i].t < records[j].t })
	}

	var dvs events.DVSEvents
	var aps, imu []record
	for _, r := range records {
		switch {
		case r.isDVS():
			dvs = append(dvs, events.DVSEvent{
				T: uint64(r.t),
				X: uint16(r.x()),
				Y: uint16(r.y()),
				P: (r.d2&0x08)>>3 | (r.d2&0x04)>>1,
			})
		case r.isAPS():
			aps = append(aps, r)
		default:
			imu = append(imu, r)
		}
	}
	res.DVS = dvs

	if len(aps) > 0 {
		b := newAPSBuilder(d.Width, d.Height)
		for _, r := range aps {
			b.push(r)
		}
		res.APS = b.finish()
		res.APSCorrupted = len(res.APS) == 0
		if res.APSCorrupted {
			res.APS = nil
		}
	}

	if len(imu) > 0 {
		res.IMU, res.IMUCorrupted = decodeIMU(imu)
	}
	return res, nil
}
