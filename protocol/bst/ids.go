// Package bst 实现 BST (Binary Serial Transfer) 报文编解码。
// BST 记录承载在 BDTP 帧内：Type-1 使用8位存储长度，Type-2 使用16位小端总长度。
package bst

// BST 标识（BDTP 载荷首字节）
const (
	// IDN2KReceived NGT 二进制格式：网关->主机 N2K 报文
	IDN2KReceived = 0x93
	// IDN2KSend NGT 二进制格式：主机->网关 N2K 发送
	IDN2KSend = 0x94
	// IDCanRaw 紧凑 CAN 格式（原始收发）
	IDCanRaw = 0x95
	// IDNmea0183 NMEA-0183 语句透传
	IDNmea0183 = 0x9D

	// IDBemResponseA0 BEM 响应（网关->主机）
	IDBemResponseA0 = 0xA0
	IDBemCommandA1  = 0xA1
	IDBemResponseA2 = 0xA2
	IDBemResponseA3 = 0xA3
	IDBemCommandA4  = 0xA4
	IDBemResponseA5 = 0xA5
	IDBemCommandA6  = 0xA6
	IDBemCommandA8  = 0xA8

	// IDN2KRecord Type-2 当前 N2K 记录格式
	IDN2KRecord = 0xD0
)

// IsType2 判断该 BST 标识是否为 Type-2（16位小端总长度，0xD0..0xDF）
func IsType2(id byte) bool {
	return id >= 0xD0 && id <= 0xDF
}

// IsBemResponse 判断是否为 BEM 响应标识（网关->主机）
func IsBemResponse(id byte) bool {
	switch id {
	case IDBemResponseA0, IDBemResponseA2, IDBemResponseA3, IDBemResponseA5:
		return true
	}
	return false
}

// IsBemCommand 判断是否为 BEM 命令标识（主机->网关）
func IsBemCommand(id byte) bool {
	switch id {
	case IDBemCommandA1, IDBemCommandA4, IDBemCommandA6, IDBemCommandA8:
		return true
	}
	return false
}

// ResponseIDFor 返回命令标识对应的响应标识（A1->A0, A4->A2, A6->A3, A8->A5）
// 未知命令按 A1->A0 处理
func ResponseIDFor(commandID byte) byte {
	switch commandID {
	case IDBemCommandA1:
		return IDBemResponseA0
	case IDBemCommandA4:
		return IDBemResponseA2
	case IDBemCommandA6:
		return IDBemResponseA3
	case IDBemCommandA8:
		return IDBemResponseA5
	}
	return IDBemResponseA0
}
