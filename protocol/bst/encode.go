package bst

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDataTooLarge 数据超过格式允许的最大长度
var ErrDataTooLarge = errors.New("data too large")

// Encode94 构造 BST-94 发送载荷（id,len,body），不含零和校验字节。
// 校验由 BDTP 封帧时追加。
func Encode94(priority uint8, pgn uint32, destination byte, data []byte) ([]byte, error) {
	if len(data) > 0xFF-6 {
		return nil, fmt.Errorf("%w: BST-94 data %d bytes", ErrDataTooLarge, len(data))
	}
	datapage, pduf, pdus := ExtractPDUFields(pgn, destination)

	body := make([]byte, 0, 6+len(data))
	body = append(body, priority&0x07, pdus, pduf, datapage, destination, byte(len(data)))
	body = append(body, data...)
	return EncodeDatagramPayload(Datagram{ID: IDN2KSend, Body: body}), nil
}

// EncodeD0 构造 Type-2 BST-D0 发送载荷（id + 16位小端总长度 + body），无尾部校验。
func EncodeD0(f *BstD0Frame) ([]byte, error) {
	if len(f.Data) > 0xFFFF-13 {
		return nil, fmt.Errorf("%w: BST-D0 data %d bytes", ErrDataTooLarge, len(f.Data))
	}
	datapage, pduf, pdus := ExtractPDUFields(f.PGN, f.Destination)

	dpp := datapage&0x03 | (f.Priority&0x07)<<2
	control := byte(f.MessageType) & 0x03
	if f.Transmit {
		control |= 0x08
	}
	if f.InternalSource {
		control |= 0x10
	}
	control |= (f.FastPacketSeq & 0x07) << 5

	body := make([]byte, 0, 10+len(f.Data))
	body = append(body, f.Destination, f.Source, pdus, pduf, dpp, control)
	var ts [4]byte
	binary.LittleEndian.PutUint32(ts[:], f.Timestamp)
	body = append(body, ts[:]...)
	body = append(body, f.Data...)

	out := make([]byte, 0, 3+len(body))
	out = append(out, IDN2KRecord, 0, 0)
	binary.LittleEndian.PutUint16(out[1:3], uint16(3+len(body)))
	out = append(out, body...)
	return out, nil
}
