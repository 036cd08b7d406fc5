package bst

import (
	"encoding/binary"
	"fmt"
)

// Decode 按标识分类并解码一条 Datagram 为具体帧变体。
// BEM A 系列响应不在此处理，由 bem 包解码。
func Decode(dg Datagram) (Frame, error) {
	switch dg.ID {
	case IDN2KReceived:
		return decode93(dg.Body)
	case IDN2KSend:
		return decode94(dg.Body)
	case IDCanRaw:
		return decode95(dg.Body)
	case IDN2KRecord:
		return decodeD0(dg.Body)
	}
	return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedID, dg.ID)
}

// decode93 布局：priority(1) pdus(1) pduf(1) datapage(1) destination(1)
// source(1) timestamp(4 LE ms) dataLen(1) data[dataLen]
func decode93(body []byte) (*Bst93Frame, error) {
	if len(body) < 11 {
		return nil, fmt.Errorf("%w: BST-93 body %d bytes", ErrShortPayload, len(body))
	}
	priority := body[0] & 0x07
	pdus := body[1]
	pduf := body[2]
	datapage := body[3] & 0x03
	destination := body[4]
	source := body[5]
	timestamp := binary.LittleEndian.Uint32(body[6:10])
	dataLen := int(body[10])
	if len(body) < 11+dataLen {
		return nil, fmt.Errorf("%w: BST-93 data %d bytes, want %d", ErrShortPayload, len(body)-11, dataLen)
	}
	return &Bst93Frame{
		Header: Header{
			BstID:       IDN2KReceived,
			Priority:    priority,
			PGN:         CalculatePGN(datapage, pduf, pdus),
			Source:      source,
			Destination: destination,
		},
		TimestampMs: timestamp,
		Data:        body[11 : 11+dataLen],
	}, nil
}

// decode94 布局：priority(1) pdus(1) pduf(1) datapage(1) destination(1)
// dataLen(1) data[dataLen]；无源地址字段，Source 置 0
func decode94(body []byte) (*Bst94Frame, error) {
	if len(body) < 6 {
		return nil, fmt.Errorf("%w: BST-94 body %d bytes", ErrShortPayload, len(body))
	}
	priority := body[0] & 0x07
	pdus := body[1]
	pduf := body[2]
	datapage := body[3] & 0x03
	destination := body[4]
	dataLen := int(body[5])
	if len(body) < 6+dataLen {
		return nil, fmt.Errorf("%w: BST-94 data %d bytes, want %d", ErrShortPayload, len(body)-6, dataLen)
	}
	return &Bst94Frame{
		Header: Header{
			BstID:       IDN2KSend,
			Priority:    priority,
			PGN:         CalculatePGN(datapage, pduf, pdus),
			Source:      0,
			Destination: destination,
		},
		Data: body[6 : 6+dataLen],
	}, nil
}

// decode95 布局：timestamp(2 LE) source(1) pdus(1) pduf(1) dppc(1) data[0..8]
// dppc 位压缩：位0-1 datapage，位2-4 priority，位5-6 时间戳分辨率，位7 方向
func decode95(body []byte) (*Bst95Frame, error) {
	if len(body) < 6 {
		return nil, fmt.Errorf("%w: BST-95 body %d bytes", ErrShortPayload, len(body))
	}
	if len(body) > 6+8 {
		return nil, fmt.Errorf("%w: BST-95 carries %d payload bytes, max 8", ErrLengthMismatch, len(body)-6)
	}
	timestamp := binary.LittleEndian.Uint16(body[0:2])
	source := body[2]
	pdus := body[3]
	pduf := body[4]
	dppc := body[5]

	datapage := dppc & 0x03
	priority := (dppc >> 2) & 0x07
	resolution := TimestampResolution((dppc >> 5) & 0x03)
	transmit := dppc&0x80 != 0

	// PDU1 时目的地址承载在 pdus 字段，PDU2 为广播
	destination := byte(BroadcastAddress)
	if pduf < 240 {
		destination = pdus
	}
	return &Bst95Frame{
		Header: Header{
			BstID:       IDCanRaw,
			Priority:    priority,
			PGN:         CalculatePGN(datapage, pduf, pdus),
			Source:      source,
			Destination: destination,
		},
		Timestamp:  timestamp,
		Resolution: resolution,
		Transmit:   transmit,
		Data:       body[6:],
	}, nil
}

// decodeD0 布局：destination(1) source(1) pdus(1) pduf(1) dpp(1) control(1)
// timestamp(4 LE) data[...]
// dpp 位压缩：位0-1 datapage，位2-4 priority；
// control 位压缩：位0-1 报文类型，位3 方向，位4 内部源，位5-7 快包序列号
func decodeD0(body []byte) (*BstD0Frame, error) {
	if len(body) < 10 {
		return nil, fmt.Errorf("%w: BST-D0 body %d bytes", ErrShortPayload, len(body))
	}
	destination := body[0]
	source := body[1]
	pdus := body[2]
	pduf := body[3]
	dpp := body[4]
	control := body[5]
	timestamp := binary.LittleEndian.Uint32(body[6:10])

	datapage := dpp & 0x03
	priority := (dpp >> 2) & 0x07

	return &BstD0Frame{
		Header: Header{
			BstID:       IDN2KRecord,
			Priority:    priority,
			PGN:         CalculatePGN(datapage, pduf, pdus),
			Source:      source,
			Destination: destination,
		},
		MessageType:    D0MessageType(control & 0x03),
		Transmit:       control&0x08 != 0,
		InternalSource: control&0x10 != 0,
		FastPacketSeq:  (control >> 5) & 0x07,
		Timestamp:      timestamp,
		Data:           body[10:],
	}, nil
}
