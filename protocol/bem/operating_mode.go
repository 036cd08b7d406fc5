package bem

import (
	"encoding/binary"
	"fmt"
)

// OperatingMode 设备工作模式（16位枚举值，存于设备非易失存储）。
// 请求不可用的模式时设备返回错误码并保持原模式。
type OperatingMode uint16

const (
	// ModeUndefined 未定义模式，设备按型号初始化
	ModeUndefined OperatingMode = 0

	// NGT-1 / NGX 模式（1..3）

	// ModeNGTransferNormal BST 协议常规收发，收发 PGN 使能表生效
	ModeNGTransferNormal OperatingMode = 1
	// ModeNGTransferRxAll 接收使能表失效（全部 PGN 透传），发送表生效
	ModeNGTransferRxAll OperatingMode = 2
	// ModeNGTransferRaw 原始 CAN 收发（BST-95），不做 N2K 处理
	ModeNGTransferRaw OperatingMode = 3

	// ModeNGConvertNormal NGW：NMEA 2000 到 0183 常规转换
	ModeNGConvertNormal OperatingMode = 4

	// 缓冲/合并器模式（16..24）

	ModeBuffer1          OperatingMode = 16
	ModeBuffer2          OperatingMode = 17
	ModeBuffer3          OperatingMode = 18
	ModeAutoswitchDirect OperatingMode = 19
	ModeAutoswitchSmart  OperatingMode = 20
	ModeCombine1         OperatingMode = 21
	ModeCombine2         OperatingMode = 22
	ModeTest1            OperatingMode = 23
	ModeNSI1             OperatingMode = 24

	// ModeStandardLast 标准模式上界
	ModeStandardLast OperatingMode = 253

	// ModeNormal 单一常规模式设备（W2K-1、EMU-1）启动完成后所处的模式
	ModeNormal OperatingMode = 512

	// 预定义模式保留区 40000..40255
	ModePredefined1   OperatingMode = 40000
	ModePredefined2   OperatingMode = 40001
	ModePredefinedEnd OperatingMode = 40255

	// 用户模式区 50000..59999
	ModeUserStart OperatingMode = 50000
	ModeUserEnd   OperatingMode = 59999

	// ModeNull 空模式
	ModeNull OperatingMode = 65535
)

// String 返回模式的可读名称；预定义与用户模式按区间编号
func (m OperatingMode) String() string {
	switch m {
	case ModeUndefined:
		return "Undefined"
	case ModeNGTransferNormal:
		return "NGTransferNormalMode"
	case ModeNGTransferRxAll:
		return "NGTransferRxAllMode"
	case ModeNGTransferRaw:
		return "NGTransferRawMode"
	case ModeNGConvertNormal:
		return "NGConvertNormalMode"
	case ModeBuffer1:
		return "Buffer1"
	case ModeBuffer2:
		return "Buffer2"
	case ModeBuffer3:
		return "Buffer3"
	case ModeAutoswitchDirect:
		return "AutoswitchDirect"
	case ModeAutoswitchSmart:
		return "AutoswitchSmart"
	case ModeCombine1:
		return "Combine1"
	case ModeCombine2:
		return "Combine2"
	case ModeTest1:
		return "Test1"
	case ModeNSI1:
		return "NSIMode1"
	case ModeNormal:
		return "Normal"
	case ModeNull:
		return "Null"
	}
	if m >= ModePredefined1 && m <= ModePredefinedEnd {
		return fmt.Sprintf("Predefined%d", uint16(m-ModePredefined1)+1)
	}
	if m >= ModeUserStart && m <= ModeUserEnd {
		return fmt.Sprintf("User%d", uint16(m-ModeUserStart)+1)
	}
	return fmt.Sprintf("OperatingMode(%d)", uint16(m))
}

// DecodeOperatingMode 从 GetSetOperatingMode 响应载荷解出模式（16位小端）
func DecodeOperatingMode(data []byte) (OperatingMode, error) {
	if len(data) < 2 {
		return ModeNull, fmt.Errorf("%w: operating mode payload %d bytes", ErrResponseTooShort, len(data))
	}
	return OperatingMode(binary.LittleEndian.Uint16(data[:2])), nil
}
