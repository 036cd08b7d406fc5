package bem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// 系统状态由设备周期性主动上报（BST 响应 A0，BEM 标识 F2）。
// 载荷按长度驱动解析，允许在既定扩展点截断。

// IndividualBufferStats 单个收发通道缓冲统计（百分比）
type IndividualBufferStats struct {
	RxBandwidth uint8
	RxLoading   uint8
	RxFiltered  uint8
	RxDropped   uint8
	TxBandwidth uint8
	TxLoading   uint8
}

// UnifiedBufferStats 统一缓冲统计（百分比）
type UnifiedBufferStats struct {
	Bandwidth      uint8
	Deleted        uint8
	Loading        uint8
	PointerLoading uint8
}

// CanExtendedStatus CAN 总线错误计数与状态标志（可选扩展）
type CanExtendedStatus struct {
	RxErrorCount uint8
	TxErrorCount uint8
	CanStatus    uint8
}

// SystemStatus F2H 上报解码结果
type SystemStatus struct {
	IndividualBuffers []IndividualBufferStats
	UnifiedBuffers    []UnifiedBufferStats
	// CanStatus 与 OperatingMode 为可选尾部扩展，载荷截断时为 nil
	CanStatus     *CanExtendedStatus
	OperatingMode *OperatingMode
}

var errSystemStatus = errors.New("invalid system status")

// DecodeSystemStatus 解码 F2H 载荷。
// 布局：indiCount(1) indi[count*6] [uniCount(1) uni[count*4] [can(3) [mode(2 LE)]]]
func DecodeSystemStatus(data []byte) (*SystemStatus, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: data too short", errSystemStatus)
	}

	st := &SystemStatus{}
	off := 0

	indiCount := int(data[off])
	off++
	if indiCount < 1 || indiCount > 16 {
		return nil, fmt.Errorf("%w: individual buffer count %d", errSystemStatus, indiCount)
	}
	if off+indiCount*6 > len(data) {
		return nil, fmt.Errorf("%w: data too short for individual buffers", errSystemStatus)
	}
	st.IndividualBuffers = make([]IndividualBufferStats, 0, indiCount)
	for i := 0; i < indiCount; i++ {
		st.IndividualBuffers = append(st.IndividualBuffers, IndividualBufferStats{
			RxBandwidth: data[off],
			RxLoading:   data[off+1],
			RxFiltered:  data[off+2],
			RxDropped:   data[off+3],
			TxBandwidth: data[off+4],
			TxLoading:   data[off+5],
		})
		off += 6
	}

	// 无统一缓冲段即为合法截断
	if off >= len(data) {
		return st, nil
	}

	uniCount := int(data[off])
	off++
	if uniCount > 8 {
		return nil, fmt.Errorf("%w: unified buffer count %d", errSystemStatus, uniCount)
	}
	if off+uniCount*4 > len(data) {
		return nil, fmt.Errorf("%w: data too short for unified buffers", errSystemStatus)
	}
	st.UnifiedBuffers = make([]UnifiedBufferStats, 0, uniCount)
	for i := 0; i < uniCount; i++ {
		st.UnifiedBuffers = append(st.UnifiedBuffers, UnifiedBufferStats{
			Bandwidth:      data[off],
			Deleted:        data[off+1],
			Loading:        data[off+2],
			PointerLoading: data[off+3],
		})
		off += 4
	}

	if len(data)-off >= 3 {
		st.CanStatus = &CanExtendedStatus{
			RxErrorCount: data[off],
			TxErrorCount: data[off+1],
			CanStatus:    data[off+2],
		}
		off += 3
	}

	if len(data)-off >= 2 {
		mode := OperatingMode(binary.LittleEndian.Uint16(data[off : off+2]))
		st.OperatingMode = &mode
	}
	return st, nil
}

// Format 输出可读的多行状态文本
func (st *SystemStatus) Format() string {
	var b strings.Builder
	b.WriteString("System Status:\n")
	fmt.Fprintf(&b, "  Individual Buffers (%d):\n", len(st.IndividualBuffers))
	for i, buf := range st.IndividualBuffers {
		fmt.Fprintf(&b, "    [%d] Rx: BW=%d%% Load=%d%% Filt=%d%% Drop=%d%% | Tx: BW=%d%% Load=%d%%\n",
			i, buf.RxBandwidth, buf.RxLoading, buf.RxFiltered, buf.RxDropped, buf.TxBandwidth, buf.TxLoading)
	}
	fmt.Fprintf(&b, "  Unified Buffers (%d):\n", len(st.UnifiedBuffers))
	for i, buf := range st.UnifiedBuffers {
		fmt.Fprintf(&b, "    [%d] BW=%d%% Del=%d%% Load=%d%% PtrLoad=%d%%\n",
			i, buf.Bandwidth, buf.Deleted, buf.Loading, buf.PointerLoading)
	}
	if st.CanStatus != nil {
		fmt.Fprintf(&b, "  CAN Status: RxErr=%d TxErr=%d Status=0x%02X\n",
			st.CanStatus.RxErrorCount, st.CanStatus.TxErrorCount, st.CanStatus.CanStatus)
	}
	if st.OperatingMode != nil {
		fmt.Fprintf(&b, "  Operating Mode: %s\n", st.OperatingMode.String())
	}
	return b.String()
}
