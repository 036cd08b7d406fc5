package bdtp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/actisense-sdk/protocol/bst"
)

func collect(p *Parser, input []byte) (dgs []bst.Datagram, errs []error) {
	p.Parse(input,
		func(dg bst.Datagram) { dgs = append(dgs, dg) },
		func(err error) { errs = append(errs, err) })
	return dgs, errs
}

func TestParseBst93Frame(t *testing.T) {
	// priority=6 pgn=0x1F801 dst=0xFF src=0x23 ts=1000ms data=[11 22 33]
	// body 14 字节，存储长度 0x0E；载荷零和：0x93..0x33 累加 0x17，校验 0xE9
	wire := []byte{
		0x10, 0x02,
		0x93, 0x0E, 0x06, 0x01, 0xF8, 0x01, 0xFF, 0x23,
		0xE8, 0x03, 0x00, 0x00, 0x03, 0x11, 0x22, 0x33, 0xE9,
		0x10, 0x03,
	}

	p := NewParser(0, nil)
	dgs, errs := collect(p, wire)
	require.Empty(t, errs)
	require.Len(t, dgs, 1)

	dg := dgs[0]
	assert.Equal(t, byte(0x93), dg.ID)
	assert.Equal(t, uint16(0x0E), dg.Length)
	assert.Equal(t, int(dg.Length), len(dg.Body))

	frame, err := bst.Decode(dg)
	require.NoError(t, err)
	f := frame.(*bst.Bst93Frame)
	assert.Equal(t, uint8(6), f.Priority)
	assert.Equal(t, uint32(0x1F801), f.PGN)
	assert.Equal(t, uint8(0x23), f.Source)
	assert.Equal(t, uint8(0xFF), f.Destination)
	assert.Equal(t, uint32(1000), f.TimestampMs)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, f.Data)
	assert.Equal(t, uint64(1), p.FramesReceived())
}

func TestEncodePayloadEscapesDLE(t *testing.T) {
	// 含字面量 DLE 的已校验载荷：id=0x93 len=1 body=[0x10] cks=0x5C
	payload := []byte{0x93, 0x01, 0x10, 0x5C}
	framed := EncodePayload(payload)
	assert.Equal(t, []byte{0x10, 0x02, 0x93, 0x01, 0x10, 0x10, 0x5C, 0x10, 0x03}, framed)

	p := NewParser(0, nil)
	dgs, errs := collect(p, framed)
	require.Empty(t, errs)
	require.Len(t, dgs, 1)
	assert.Equal(t, byte(0x93), dgs[0].ID)
	assert.Equal(t, uint16(1), dgs[0].Length)
	assert.Equal(t, []byte{0x10}, dgs[0].Body)
}

func TestEncodeParseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"无控制字节", []byte{0x41, 0x42, 0x43}},
		{"混入 DLE/STX/ETX", []byte{0x10, 0x02, 0x03, 0x10, 0x10}},
		{"空 body", nil},
		{"全 DLE", []byte{0x10, 0x10, 0x10, 0x10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			framed := EncodeDatagram(bst.Datagram{ID: 0x93, Body: tt.body})

			p := NewParser(0, nil)
			dgs, errs := collect(p, framed)
			require.Empty(t, errs)
			require.Len(t, dgs, 1)
			assert.Equal(t, byte(0x93), dgs[0].ID)
			if len(tt.body) == 0 {
				assert.Empty(t, dgs[0].Body)
			} else {
				assert.Equal(t, tt.body, dgs[0].Body)
			}
		})
	}
}

func TestEncodeType1PayloadZeroSum(t *testing.T) {
	// 封帧后去掉 DLE 包装，剩余载荷必为零和
	payload := bst.EncodeDatagramPayload(bst.Datagram{ID: 0x94, Body: []byte{1, 2, 3}})
	framed := EncodeType1Payload(payload)

	p := NewParser(0, nil)
	dgs, errs := collect(p, framed)
	require.Empty(t, errs)
	require.Len(t, dgs, 1)
	assert.Equal(t, []byte{1, 2, 3}, dgs[0].Body)
}

func TestParseAbortedFrameRecovery(t *testing.T) {
	// 帧内再见 DLE STX：丢弃第一帧并上报错误，第二帧正常解出
	wire := []byte{
		0x10, 0x02, 0xAA, 0xBB,
		0x10, 0x02, 0xCC, 0x00, 0x34,
		0x10, 0x03,
	}

	p := NewParser(0, nil)
	dgs, errs := collect(p, wire)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrFrameAborted))
	require.Len(t, dgs, 1)
	assert.Equal(t, byte(0xCC), dgs[0].ID)
	assert.Equal(t, uint64(1), p.FramesDropped())
	assert.Equal(t, uint64(1), p.FramesReceived())
}

func TestParseInvalidEscape(t *testing.T) {
	// DLE 后跟非法字节：丢帧回到空闲
	wire := []byte{0x10, 0x02, 0xAA, 0x10, 0x55}

	p := NewParser(0, nil)
	dgs, errs := collect(p, wire)
	assert.Empty(t, dgs)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], ErrInvalidEscape))
}

func TestParseShortFrame(t *testing.T) {
	// 不足3字节 body 的帧被丢弃
	wire := []byte{0x10, 0x02, 0x93, 0x01, 0x10, 0x03}

	p := NewParser(0, nil)
	dgs, errs := collect(p, wire)
	assert.Empty(t, dgs)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], bst.ErrShortPayload))
}

func TestParseChecksumError(t *testing.T) {
	wire := []byte{0x10, 0x02, 0x93, 0x01, 0xAB, 0xFF, 0x10, 0x03}

	p := NewParser(0, nil)
	dgs, errs := collect(p, wire)
	assert.Empty(t, dgs)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], bst.ErrChecksum))
	assert.Equal(t, uint64(1), p.FramesDropped())
}

func TestParseOversizeFrame(t *testing.T) {
	p := NewParser(64, nil)

	var errs []error
	var dgs []bst.Datagram
	emit := func(dg bst.Datagram) { dgs = append(dgs, dg) }
	emitErr := func(err error) { errs = append(errs, err) }

	// 无终结的超长帧
	p.Parse([]byte{0x10, 0x02}, emit, emitErr)
	big := make([]byte, 100)
	for i := range big {
		big[i] = 0x41
	}
	p.Parse(big, emit, emitErr)

	require.NotEmpty(t, errs)
	assert.True(t, errors.Is(errs[0], ErrFrameTooLarge))
	assert.Empty(t, dgs)

	// 超限丢帧后回到空闲，后续帧正常
	valid := EncodeDatagram(bst.Datagram{ID: 0x93, Body: []byte{0x01}})
	p.Parse(valid, emit, emitErr)
	require.Len(t, dgs, 1)
}

func TestParseIncrementalInput(t *testing.T) {
	// 半帧跨多次 Parse 调用续接
	framed := EncodeDatagram(bst.Datagram{ID: 0x93, Body: []byte{0x10, 0x20, 0x30}})

	p := NewParser(0, nil)
	var dgs []bst.Datagram
	emit := func(dg bst.Datagram) { dgs = append(dgs, dg) }

	for _, b := range framed {
		consumed := p.Parse([]byte{b}, emit, nil)
		assert.Equal(t, 1, consumed)
	}
	require.Len(t, dgs, 1)
	assert.Equal(t, []byte{0x10, 0x20, 0x30}, dgs[0].Body)
}

func TestParseIgnoresIdleNoise(t *testing.T) {
	framed := EncodeDatagram(bst.Datagram{ID: 0x93, Body: []byte{0x42}})
	wire := append([]byte{0x00, 0xFF, 0x03, 0x02, 0x55}, framed...)

	p := NewParser(0, nil)
	dgs, errs := collect(p, wire)
	assert.Empty(t, errs)
	require.Len(t, dgs, 1)
}

func TestReset(t *testing.T) {
	p := NewParser(0, nil)
	p.Parse([]byte{0x10, 0x02, 0xAA, 0xBB}, nil, nil)
	p.Reset()

	// 复位后半帧被丢弃，新帧从头解析
	framed := EncodeDatagram(bst.Datagram{ID: 0x93, Body: []byte{0x01}})
	dgs, errs := collect(p, framed)
	assert.Empty(t, errs)
	require.Len(t, dgs, 1)
	assert.Equal(t, []byte{0x01}, dgs[0].Body)
}

func TestParseType2Frame(t *testing.T) {
	// Type-2 无尾部校验，按16位小端总长度切分
	payload := []byte{0xD0, 0x0D, 0x00, 0xFF, 0x23, 0x01, 0xF8, 0x19, 0x00, 0xE8, 0x03, 0x00, 0x00}
	framed := EncodePayload(payload)

	p := NewParser(0, nil)
	dgs, errs := collect(p, framed)
	require.Empty(t, errs)
	require.Len(t, dgs, 1)
	assert.Equal(t, byte(0xD0), dgs[0].ID)
	assert.Equal(t, uint16(13), dgs[0].Length)
	assert.Equal(t, 10, len(dgs[0].Body))
}
