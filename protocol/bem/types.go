// Package bem 实现 BEM (Binary Encoded Message) 命令/响应层。
// 命令与响应承载在 BST A 系列记录内：命令 A1/A4/A6/A8，响应 A0/A2/A3/A5。
package bem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/taoyao-code/actisense-sdk/protocol/bdtp"
	"github.com/taoyao-code/actisense-sdk/protocol/bst"
)

// BEM 命令标识
const (
	// CmdGetSetOperatingMode 读取/设置设备工作模式（A1->A0）
	CmdGetSetOperatingMode = 0x11
	// UnsolicitedBase 大于等于该值的 BEM 标识为设备主动上报
	UnsolicitedBase = 0xF0
	// CmdSystemStatus 系统状态主动上报
	CmdSystemStatus = 0xF2
)

// 响应头偏移（BST body 内，共12字节定长头）
const (
	offBemID  = 0
	offSeqID  = 1
	offModel  = 2
	offSerial = 4
	offError  = 8
	// HeaderSize BEM 响应定长头字节数
	HeaderSize = 12
)

// MaxCommandData BEM 命令载荷上限（255 减去 Type-1 头部与校验）
const MaxCommandData = 252

var (
	// ErrNotCommand bstID 不是 BEM 命令标识
	ErrNotCommand = errors.New("not a BEM command BST id")
	// ErrNotResponse bstID 不是 BEM 响应标识
	ErrNotResponse = errors.New("not a BEM response BST id")
	// ErrDataTooLarge 命令载荷超过上限
	ErrDataTooLarge = errors.New("BEM command data too large")
	// ErrResponseTooShort 响应不足12字节定长头
	ErrResponseTooShort = errors.New("BEM response too short")
)

// Command 主机->网关命令
type Command struct {
	BstID byte
	BemID byte
	Data  []byte
}

// Response 网关->主机响应（或主动上报）
type Response struct {
	BstID        byte
	BemID        byte
	SequenceID   byte
	ModelID      uint16
	SerialNumber uint32
	// ErrorCode 设备侧错误码，0 表示成功
	ErrorCode uint32
	Data      []byte
}

// Name 人类可读的报文类型名，用于事件分发
func (r *Response) Name() string {
	return fmt.Sprintf("BEM_Response_%02X", r.BemID)
}

// IsUnsolicited 判断是否为设备主动上报（BEM 标识 >= 0xF0）
func (r *Response) IsUnsolicited() bool {
	return r.BemID >= UnsolicitedBase
}

// DecodeResponse 从 BST Datagram 解码一条 BEM 响应。
// 布局：bemID(1) seqID(1) modelID(2 LE) serial(4 LE) errorCode(4 LE) data[...]
func DecodeResponse(dg bst.Datagram) (*Response, error) {
	if !bst.IsBemResponse(dg.ID) {
		return nil, fmt.Errorf("%w: 0x%02X", ErrNotResponse, dg.ID)
	}
	if len(dg.Body) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooShort, len(dg.Body))
	}
	return &Response{
		BstID:        dg.ID,
		BemID:        dg.Body[offBemID],
		SequenceID:   dg.Body[offSeqID],
		ModelID:      binary.LittleEndian.Uint16(dg.Body[offModel : offModel+2]),
		SerialNumber: binary.LittleEndian.Uint32(dg.Body[offSerial : offSerial+4]),
		ErrorCode:    binary.LittleEndian.Uint32(dg.Body[offError : offError+4]),
		Data:         dg.Body[HeaderSize:],
	}, nil
}

// EncodeCommand 编码命令为完整 BDTP 帧：
// BST Type-1 载荷 bemID||data，追加存储长度与零和校验后 DLE 封帧
func EncodeCommand(cmd Command) ([]byte, error) {
	if !bst.IsBemCommand(cmd.BstID) {
		return nil, fmt.Errorf("%w: 0x%02X", ErrNotCommand, cmd.BstID)
	}
	if len(cmd.Data) > MaxCommandData {
		return nil, fmt.Errorf("%w: %d bytes", ErrDataTooLarge, len(cmd.Data))
	}
	body := make([]byte, 0, 1+len(cmd.Data))
	body = append(body, cmd.BemID)
	body = append(body, cmd.Data...)
	return bdtp.EncodeDatagram(bst.Datagram{ID: cmd.BstID, Body: body}), nil
}

// BuildGetOperatingMode 构造读取工作模式命令（无载荷）
func BuildGetOperatingMode() Command {
	return Command{BstID: bst.IDBemCommandA1, BemID: CmdGetSetOperatingMode}
}

// BuildSetOperatingMode 构造设置工作模式命令（模式为16位小端）
func BuildSetOperatingMode(mode OperatingMode) Command {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, uint16(mode))
	return Command{BstID: bst.IDBemCommandA1, BemID: CmdGetSetOperatingMode, Data: data}
}
