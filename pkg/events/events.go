// Package events 定义解码后的事件记录以及它们在数据集文件中的二进制布局。
//
// 所有布局均为小端、紧凑排列 (无填充)：
//
//	DVS: t u64 | x u16 | y u16 | p u8                              = 13 字节
//	IMU: t u64 | ax ay az temp gx gy gz (i16)                      = 22 字节
//	APS: t begin_t end_t exposure_begin_t exposure_end_t (u64)
//	     | width u16 | height u16 | pixels (u16, width*height, 行优先) = 44 + 2*w*h 字节
package events

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrPixelCount = errors.New("aps frame pixel count does not match its dimensions")

// Kind 是数据集文件的记录类型
type Kind uint8

const (
	KindDVS Kind = iota + 1
	KindAPS
	KindIMU
)

func (k Kind) String() string {
	switch k {
	case KindDVS:
		return "dvs"
	case KindAPS:
		return "aps"
	case KindIMU:
		return "imu"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

const (
	DVSStride       = 13
	IMUStride       = 22
	apsHeaderStride = 44
)

// Layout 描述一个类型化文件的元素布局
// 对 DVS/APS，Width/Height 是传感器尺寸；IMU 忽略尺寸
type Layout struct {
	Kind   Kind
	Width  uint16
	Height uint16
}

func DVS(width, height uint16) Layout { return Layout{Kind: KindDVS, Width: width, Height: height} }
func APS(width, height uint16) Layout { return Layout{Kind: KindAPS, Width: width, Height: height} }
func IMU() Layout                     { return Layout{Kind: KindIMU} }

// Stride 返回单条记录的字节数
func (l Layout) Stride() int {
	switch l.Kind {
	case KindDVS:
		return DVSStride
	case KindIMU:
		return IMUStride
	case KindAPS:
		return apsHeaderStride + 2*int(l.Width)*int(l.Height)
	default:
		return 0
	}
}

// Extension 是文件名中类型部分 (例如 "recording.dvs.zst" 中的 "dvs")
func (l Layout) Extension() string { return l.Kind.String() }

// Properties 返回写入索引的类型属性
func (l Layout) Properties() *Properties {
	p := &Properties{Type: l.Kind.String()}
	if l.Kind != KindIMU {
		w, h := l.Width, l.Height
		p.Width, p.Height = &w, &h
	}
	return p
}

// Accepts 判断数组的布局能否写入该布局的文件
// DVS 与 IMU 只比较类型；APS 帧的尺寸决定步长，必须完全一致
func (l Layout) Accepts(other Layout) bool {
	if l.Kind != other.Kind {
		return false
	}
	if l.Kind == KindAPS {
		return l.Width == other.Width && l.Height == other.Height
	}
	return true
}

// Properties 对应索引条目中的 "properties" 对象
type Properties struct {
	Height *uint16 `json:"height,omitempty"`
	Type   string  `json:"type"`
	Width  *uint16 `json:"width,omitempty"`
}

// Clone 返回不共享尺寸指针的副本
func (p *Properties) Clone() *Properties {
	if p == nil {
		return nil
	}
	out := &Properties{Type: p.Type}
	if p.Height != nil {
		h := *p.Height
		out.Height = &h
	}
	if p.Width != nil {
		w := *p.Width
		out.Width = &w
	}
	return out
}

// Array 是一组可以顺序编码的记录
type Array interface {
	Layout() Layout
	Len() int
	// AppendBinary 把所有记录按布局追加到 b
	AppendBinary(b []byte) ([]byte, error)
}

// DVSEvent 是一个像素亮度变化事件
type DVSEvent struct {
	T uint64
	X uint16
	Y uint16
	P uint8
}

type DVSEvents []DVSEvent

func (e DVSEvents) Layout() Layout { return Layout{Kind: KindDVS} }
func (e DVSEvents) Len() int       { return len(e) }

func (e DVSEvents) AppendBinary(b []byte) ([]byte, error) {
	b = grow(b, len(e)*DVSStride)
	for _, ev := range e {
		b = binary.LittleEndian.AppendUint64(b, ev.T)
		b = binary.LittleEndian.AppendUint16(b, ev.X)
		b = binary.LittleEndian.AppendUint16(b, ev.Y)
		b = append(b, ev.P)
	}
	return b, nil
}

// Monotonic 检查时间戳是否单调不减
func (e DVSEvents) Monotonic() bool {
	for i := 1; i < len(e); i++ {
		if e[i].T < e[i-1].T {
			return false
		}
	}
	return true
}

// APSFrame 是由 reset/signal 两个读出阶段重建的一帧灰度图
type APSFrame struct {
	T              uint64
	BeginT         uint64
	EndT           uint64
	ExposureBeginT uint64
	ExposureEndT   uint64
	Width          uint16
	Height         uint16
	Pixels         []uint16 // 行优先: Pixels[y*Width+x]
}

// At 返回 (x, y) 处的亮度
func (f *APSFrame) At(x, y int) uint16 { return f.Pixels[y*int(f.Width)+x] }

type APSFrames []APSFrame

// Layout 由第一帧的尺寸决定；空数组可以写入任意 APS 文件
func (f APSFrames) Layout() Layout {
	if len(f) == 0 {
		return Layout{Kind: KindAPS}
	}
	return APS(f[0].Width, f[0].Height)
}

func (f APSFrames) Len() int { return len(f) }

func (f APSFrames) AppendBinary(b []byte) ([]byte, error) {
	if len(f) > 0 {
		b = grow(b, len(f)*f.Layout().Stride())
	}
	for i := range f {
		fr := &f[i]
		if len(fr.Pixels) != int(fr.Width)*int(fr.Height) {
			return b, fmt.Errorf("%w: frame %d has %d pixels, want %dx%d",
				ErrPixelCount, i, len(fr.Pixels), fr.Width, fr.Height)
		}
		if i > 0 && (fr.Width != f[0].Width || fr.Height != f[0].Height) {
			return b, fmt.Errorf("%w: frame %d is %dx%d, first frame is %dx%d",
				ErrPixelCount, i, fr.Width, fr.Height, f[0].Width, f[0].Height)
		}
		for _, t := range [...]uint64{fr.T, fr.BeginT, fr.EndT, fr.ExposureBeginT, fr.ExposureEndT} {
			b = binary.LittleEndian.AppendUint64(b, t)
		}
		b = binary.LittleEndian.AppendUint16(b, fr.Width)
		b = binary.LittleEndian.AppendUint16(b, fr.Height)
		for _, px := range fr.Pixels {
			b = binary.LittleEndian.AppendUint16(b, px)
		}
	}
	return b, nil
}

// IMUSample 是一组完整的惯性测量值 (定点整数，原始传感器单位)
type IMUSample struct {
	T              uint64
	AccelerometerX int16
	AccelerometerY int16
	AccelerometerZ int16
	Temperature    int16
	GyroscopeX     int16
	GyroscopeY     int16
	GyroscopeZ     int16
}

type IMUSamples []IMUSample

func (s IMUSamples) Layout() Layout { return IMU() }
func (s IMUSamples) Len() int       { return len(s) }

func (s IMUSamples) AppendBinary(b []byte) ([]byte, error) {
	b = grow(b, len(s)*IMUStride)
	for _, sm := range s {
		b = binary.LittleEndian.AppendUint64(b, sm.T)
		for _, v := range [...]int16{
			sm.AccelerometerX, sm.AccelerometerY, sm.AccelerometerZ,
			sm.Temperature,
			sm.GyroscopeX, sm.GyroscopeY, sm.GyroscopeZ,
		} {
			b = binary.LittleEndian.AppendUint16(b, uint16(v))
		}
	}
	return b, nil
}

func grow(b []byte, n int) []byte {
	if cap(b)-len(b) >= n {
		return b
	}
	nb := make([]byte, len(b), len(b)+n)
	copy(nb, b)
	return nb
}
