package aer

import "undrgen/pkg/events"

const unset = -1

// apsBuilder 是 APS 帧重建的状态机
// (0,0) 处的 reset 是帧起始标记；signal 读数从 reset 读数中减去得到亮度
type apsBuilder struct {
	width, height int
	grid          []uint16

	firstReset, lastReset   int64
	firstSignal, lastSignal int64

	frames events.APSFrames
}

func newAPSBuilder(width, height int) *apsBuilder {
	return &apsBuilder{
		width:       width,
		height:      height,
		grid:        make([]uint16, width*height),
		firstReset:  unset,
		lastReset:   unset,
		firstSignal: unset,
		lastSignal:  unset,
	}
}

func (b *apsBuilder) complete() bool {
	return b.firstReset != unset && b.lastReset != unset &&
		b.firstSignal != unset && b.lastSignal != unset
}

func (b *apsBuilder) emit() {
	pixels := make([]uint16, len(b.grid))
	copy(pixels, b.grid)
	b.frames = append(b.frames, events.APSFrame{
		T:              uint64(b.firstSignal),
		BeginT:         uint64(b.firstReset),
		EndT:           uint64(b.firstSignal),
		ExposureBeginT: uint64(b.lastReset),
		ExposureEndT:   uint64(b.lastSignal),
		Width:          uint16(b.width),
		Height:         uint16(b.height),
		Pixels:         pixels,
	})
}

func (b *apsBuilder) push(r record) {
	x, y := r.x(), r.y()
	if x >= b.width || y >= b.height {
		return
	}
	t := int64(r.t)
	sample := uint16(r.d2&0x03)<<8 | uint16(r.d3)
	idx := y*b.width + x

	switch r.d2 & apsPhaseMask {
	case apsPhaseReset:
		if x == 0 && y == 0 {
			if b.complete() {
				b.emit()
			}
			clear(b.grid)
			b.firstReset = t
			b.firstSignal, b.lastSignal = unset, unset
		} else if b.firstReset == unset {
			b.firstReset = t
		}
		b.lastReset = t
		b.grid[idx] = sample

	case apsPhaseSignal:
		if b.firstSignal == unset {
			b.firstSignal = t
		}
		b.lastSignal = t
		// 减法读出，下溢时截断为 0
		if sample > b.grid[idx] {
			b.grid[idx] = 0
		} else {
			b.grid[idx] -= sample
		}
	}
}

// finish 输出最后一个完整的帧
func (b *apsBuilder) finish() events.APSFrames {
	if b.complete() {
		b.emit()
	}
	return b.frames
}
