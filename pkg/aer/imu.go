package aer

import "undrgen/pkg/events"

// imuGroupSize 是一个完整 IMU 采样包含的记录数：
// 加速度 x/y/z、温度、陀螺仪 x/y/z
const imuGroupSize = 7

func (r record) imuType() int { return int(r.d0&0x70) >> 4 }

func (r record) imuSample() int16 {
	return int16(uint16(r.d0&0x0F)<<12 | uint16(r.d1)<<4 | uint16(r.d2>>4))
}

// decodeIMU 按相同时间戳分组 (输入已按时间排序，同组记录相邻)
// 成员数不是 7 的组被静默丢弃；任何一个 7 成员组的类型标签不是 0..6 的排列，
// 整条流的 IMU 数据都被判为损坏
func decodeIMU(records []record) (events.IMUSamples, bool) {
	var samples events.IMUSamples
	candidates := 0

	for start := 0; start < len(records); {
		end := start + 1
		for end < len(records) && records[end].t == records[start].t {
			end++
		}
		group := records[start:end]
		start = end

		if len(group) != imuGroupSize {
			continue
		}
		candidates++

		var slots [imuGroupSize]int16
		seen := 0
		for _, r := range group {
			tag := r.imuType()
			if tag >= imuGroupSize || seen&(1<<tag) != 0 {
				return nil, true
			}
			seen |= 1 << tag
			slots[tag] = r.imuSample()
		}
		samples = append(samples, events.IMUSample{
			T:              uint64(group[0].t),
			AccelerometerX: slots[0],
			AccelerometerY: slots[1],
			AccelerometerZ: slots[2],
			Temperature:    slots[3],
			GyroscopeX:     slots[4],
			GyroscopeY:     slots[5],
			GyroscopeZ:     slots[6],
		})
	}

	// 有 IMU 记录却没有一个完整分组，同样视为损坏
	if candidates == 0 {
		return nil, true
	}
	return samples, false
}
