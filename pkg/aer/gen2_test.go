package aer

import (
	"testing"

	"undrgen/pkg/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGen2_DVS(t *testing.T) {
	data := concat(
		[]byte("#!AER-DAT2.0\n"),
		dvsRecord(239, 179, 1, 10),
		dvsRecord(0, 0, 2, 11),
		dvsRecord(17, 93, 3, 12),
		[]byte{0x01, 0x02, 0x03}, // 尾部残缺
	)

	res, err := DecodeGen2(data)
	require.NoError(t, err)

	assert.Equal(t, "#!AER-DAT2.0\n", res.Header)
	assert.Equal(t, events.DVSEvents{
		{T: 10, X: 239, Y: 179, P: 1},
		{T: 11, X: 0, Y: 0, P: 2},
		{T: 12, X: 17, Y: 93, P: 3},
	}, res.DVS)
	assert.Nil(t, res.APS)
	assert.Nil(t, res.IMU)
	assert.False(t, res.APSCorrupted)
	assert.False(t, res.IMUCorrupted)
}

func TestDecodeGen2_OutOfOrderIsSorted(t *testing.T) {
	data := concat(
		dvsRecord(1, 1, 0, 50),
		dvsRecord(2, 2, 0, 20),
		dvsRecord(3, 3, 0, 20),
		dvsRecord(4, 4, 0, 30),
	)

	res, err := DecodeGen2(data)
	require.NoError(t, err, "乱序不是致命错误")

	require.Len(t, res.DVS, 4)
	assert.True(t, res.DVS.Monotonic())
	// 稳定排序：相同时间戳保持到达顺序
	assert.Equal(t, uint16(2), res.DVS[0].X)
	assert.Equal(t, uint16(3), res.DVS[1].X)
	assert.Equal(t, uint16(4), res.DVS[2].X)
	assert.Equal(t, uint16(1), res.DVS[3].X)
}

func TestDecodeGen2_APSTwoFrames(t *testing.T) {
	data := concat(
		resetRecord(0, 0, 1000, 10),
		signalRecord(0, 0, 300, 20),
		resetRecord(0, 0, 900, 30),
		signalRecord(0, 0, 100, 40),
	)

	res, err := DecodeGen2(data)
	require.NoError(t, err)
	require.False(t, res.APSCorrupted)
	require.Len(t, res.APS, 2)

	for i, f := range res.APS {
		assert.LessOrEqual(t, f.BeginT, f.ExposureBeginT, "frame %d", i)
		assert.LessOrEqual(t, f.T, f.ExposureEndT, "frame %d", i)
		assert.Equal(t, f.T, f.EndT)
		assert.Equal(t, uint16(240), f.Width)
		assert.Equal(t, uint16(180), f.Height)
		assert.Len(t, f.Pixels, 240*180)
	}

	first := res.APS[0]
	assert.Equal(t, uint64(10), first.BeginT)
	assert.Equal(t, uint64(20), first.T)
	assert.Equal(t, uint64(20), first.ExposureEndT)
	assert.Equal(t, uint16(700), first.At(0, 0))

	second := res.APS[1]
	assert.Equal(t, uint64(30), second.BeginT)
	assert.Equal(t, uint64(40), second.ExposureEndT)
	assert.Equal(t, uint16(800), second.At(0, 0))
}

func TestDecodeGen2_APSStateMachine(t *testing.T) {
	data := concat(
		resetRecord(0, 0, 500, 100),
		resetRecord(5, 7, 400, 110),
		resetRecord(250, 7, 400, 111), // 越界，丢弃
		signalRecord(0, 0, 100, 120),
		signalRecord(5, 7, 600, 130), // 信号大于复位值，截断为 0
		signalRecord(3, 200, 1, 131), // 越界，丢弃
	)

	res, err := DecodeGen2(data)
	require.NoError(t, err)
	require.Len(t, res.APS, 1)

	f := res.APS[0]
	assert.Equal(t, uint64(100), f.BeginT)
	assert.Equal(t, uint64(110), f.ExposureBeginT)
	assert.Equal(t, uint64(120), f.T)
	assert.Equal(t, uint64(130), f.ExposureEndT)
	assert.Equal(t, uint16(400), f.At(0, 0))
	assert.Equal(t, uint16(0), f.At(5, 7))
}

func TestDecodeGen2_APSWithoutFramesIsCorrupted(t *testing.T) {
	data := concat(
		dvsRecord(1, 1, 0, 1),
		resetRecord(0, 0, 10, 2),
		resetRecord(1, 0, 10, 3),
	)

	res, err := DecodeGen2(data)
	require.NoError(t, err, "APS 损坏是可恢复的")
	assert.True(t, res.APSCorrupted)
	assert.Nil(t, res.APS)
	assert.Len(t, res.DVS, 1, "DVS 数据不受影响")
}

func TestDecodeGen2_APSSampleBits(t *testing.T) {
	// 10 位采样值：byte2 低 2 位 + byte3
	data := concat(
		resetRecord(0, 0, 0x3FF, 1),
		signalRecord(0, 0, 0x155, 2),
	)
	res, err := DecodeGen2(data)
	require.NoError(t, err)
	require.Len(t, res.APS, 1)
	assert.Equal(t, uint16(0x3FF-0x155), res.APS[0].At(0, 0))
}

func TestDecodeGen2_CustomSensorSize(t *testing.T) {
	data := concat(
		resetRecord(0, 0, 10, 1),
		resetRecord(3, 3, 10, 2),
		signalRecord(3, 3, 4, 3),
	)
	res, err := Gen2Decoder{Width: 4, Height: 4}.Decode(data)
	require.NoError(t, err)
	require.Len(t, res.APS, 1)
	assert.Len(t, res.APS[0].Pixels, 16)
	assert.Equal(t, uint16(6), res.APS[0].At(3, 3))
}

func TestDecodeGen2_IMUPermutedTags(t *testing.T) {
	order := []int{3, 0, 6, 1, 5, 2, 4}
	var parts [][]byte
	for _, tag := range order {
		parts = append(parts, imuRecord(tag, uint16(100+tag), 77))
	}
	res, err := DecodeGen2(concat(parts...))
	require.NoError(t, err)

	require.False(t, res.IMUCorrupted)
	require.Len(t, res.IMU, 1)
	assert.Equal(t, events.IMUSample{
		T:              77,
		AccelerometerX: 100,
		AccelerometerY: 101,
		AccelerometerZ: 102,
		Temperature:    103,
		GyroscopeX:     104,
		GyroscopeY:     105,
		GyroscopeZ:     106,
	}, res.IMU[0])
}

func TestDecodeGen2_IMUNegativeValues(t *testing.T) {
	var parts [][]byte
	for tag := range imuGroupSize {
		parts = append(parts, imuRecord(tag, 0xFFFE, 5))
	}
	res, err := DecodeGen2(concat(parts...))
	require.NoError(t, err)
	require.Len(t, res.IMU, 1)
	assert.Equal(t, int16(-2), res.IMU[0].GyroscopeZ)
}

func TestDecodeGen2_IMUDuplicateTagCorruptsStream(t *testing.T) {
	var parts [][]byte
	// 第一组合法
	for tag := range imuGroupSize {
		parts = append(parts, imuRecord(tag, 1, 10))
	}
	// 第二组只有 6 个不同的标签
	for _, tag := range []int{0, 1, 2, 3, 4, 5, 5} {
		parts = append(parts, imuRecord(tag, 1, 20))
	}

	res, err := DecodeGen2(concat(parts...))
	require.NoError(t, err)
	assert.True(t, res.IMUCorrupted)
	assert.Nil(t, res.IMU, "任意一组失败，整条流都不输出 IMU")
}

func TestDecodeGen2_IMUIncompleteGroupsDropped(t *testing.T) {
	var parts [][]byte
	for tag := range imuGroupSize {
		parts = append(parts, imuRecord(tag, 1, 10))
	}
	// 丢了一个采样的组
	for tag := range imuGroupSize - 1 {
		parts = append(parts, imuRecord(tag, 1, 20))
	}
	for tag := range imuGroupSize {
		parts = append(parts, imuRecord(tag, 1, 30))
	}

	res, err := DecodeGen2(concat(parts...))
	require.NoError(t, err)
	assert.False(t, res.IMUCorrupted)
	require.Len(t, res.IMU, 2)
	assert.Equal(t, uint64(10), res.IMU[0].T)
	assert.Equal(t, uint64(30), res.IMU[1].T)
}

func TestDecodeGen2_IMUAllGroupsIncomplete(t *testing.T) {
	data := concat(imuRecord(0, 1, 10), imuRecord(1, 1, 10))
	res, err := DecodeGen2(data)
	require.NoError(t, err)
	assert.True(t, res.IMUCorrupted)
	assert.Nil(t, res.IMU)
}

func TestDecodeGen2_MixedStream(t *testing.T) {
	var parts [][]byte
	parts = append(parts, []byte("#!AER-DAT2.0\n"))
	parts = append(parts, resetRecord(0, 0, 800, 1))
	parts = append(parts, dvsRecord(10, 10, 1, 2))
	parts = append(parts, signalRecord(0, 0, 200, 3))
	for tag := range imuGroupSize {
		parts = append(parts, imuRecord(tag, 9, 4))
	}
	parts = append(parts, dvsRecord(11, 10, 0, 5))

	res, err := DecodeGen2(concat(parts...))
	require.NoError(t, err)
	assert.Len(t, res.DVS, 2)
	assert.Len(t, res.APS, 1)
	assert.Len(t, res.IMU, 1)
	assert.False(t, res.APSCorrupted)
	assert.False(t, res.IMUCorrupted)
}
