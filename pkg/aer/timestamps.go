package aer

import (
	"fmt"
	"sort"

	"undrgen/pkg/events"
)

// TimestampPolicy 决定 DVS 时间戳乱序时的处理方式
// 策略由调用方按文件选择，解码器本身从不修正第一代格式的时间戳
type TimestampPolicy string

const (
	// TimestampForbid 把乱序当作致命错误
	TimestampForbid TimestampPolicy = "forbid"
	// TimestampAdd 认为计数器发生了回绕：把回绕前最后一个时间戳加到其后所有事件上
	TimestampAdd TimestampPolicy = "add"
	// TimestampSort 按时间戳稳定排序
	TimestampSort TimestampPolicy = "sort"
	// TimestampKeep 保留原样
	TimestampKeep TimestampPolicy = "keep"
)

// ParseTimestampPolicy 解析策略名称，空字符串表示 TimestampForbid
func ParseTimestampPolicy(s string) (TimestampPolicy, error) {
	switch p := TimestampPolicy(s); p {
	case "":
		return TimestampForbid, nil
	case TimestampForbid, TimestampAdd, TimestampSort, TimestampKeep:
		return p, nil
	default:
		return "", fmt.Errorf("unknown timestamp policy %q", s)
	}
}

// Resets 返回所有满足 t[i+1] < t[i] 的下标 i
func Resets(ev events.DVSEvents) []int {
	var resets []int
	for i := 1; i < len(ev); i++ {
		if ev[i].T < ev[i-1].T {
			resets = append(resets, i-1)
		}
	}
	return resets
}

// RepairTimestamps 按策略处理乱序的时间戳，可能原地修改 ev
func RepairTimestamps(ev events.DVSEvents, policy TimestampPolicy) (events.DVSEvents, error) {
	resets := Resets(ev)
	if len(resets) == 0 {
		return ev, nil
	}

	switch policy {
	case TimestampKeep:
		return ev, nil

	case TimestampSort:
		sort.SliceStable(ev, func(i, j int) bool { return ev[i].T < ev[j].T })
		return ev, nil

	case TimestampAdd:
		// 每个事件加上它之前所有回绕点的原始时间戳之和
		var offset uint64
		next := 0
		prev := ev[0].T
		for i := 1; i < len(ev); i++ {
			if next < len(resets) && resets[next] == i-1 {
				offset += prev
				next++
			}
			prev = ev[i].T
			ev[i].T += offset
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: %d reset(s), first after event %d",
			ErrTimestampDisorder, len(resets), resets[0])
	}
}
