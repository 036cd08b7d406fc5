package bst

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatagramType1(t *testing.T) {
	// id=0x93 storeLen=1 body=[0xAB] cks
	payload := []byte{0x93, 0x01, 0xAB}
	payload = append(payload, Checksum(payload))

	dg, err := ParseDatagram(payload)
	require.NoError(t, err)
	assert.Equal(t, byte(0x93), dg.ID)
	assert.Equal(t, uint16(1), dg.Length)
	assert.Equal(t, []byte{0xAB}, dg.Body)
}

func TestParseDatagramType2(t *testing.T) {
	// id=0xD0 totalLen=8（含3字节头）body 5字节，无尾部校验
	payload := []byte{0xD0, 0x08, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05}

	dg, err := ParseDatagram(payload)
	require.NoError(t, err)
	assert.Equal(t, byte(0xD0), dg.ID)
	assert.Equal(t, uint16(8), dg.Length)
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05}, dg.Body)
	// 不变量：body.len + 3 == total_length
	assert.Equal(t, int(dg.Length), len(dg.Body)+3)
}

func TestParseDatagramErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		wantErr error
	}{
		{
			name:    "不足3字节",
			payload: []byte{0x93, 0x01},
			wantErr: ErrShortPayload,
		},
		{
			name:    "Type-1 长度与字节数不符",
			payload: []byte{0x93, 0x05, 0x01, 0x02},
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "Type-1 校验不为零和",
			payload: []byte{0x93, 0x01, 0xAB, 0xFF},
			wantErr: ErrChecksum,
		},
		{
			name:    "Type-2 总长度超出实际",
			payload: []byte{0xD0, 0xFF, 0x00, 0x01},
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "Type-2 总长度小于头部",
			payload: []byte{0xD0, 0x02, 0x00, 0x01},
			wantErr: ErrLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDatagram(tt.payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
		})
	}
}

func TestEncodeDatagramPayload(t *testing.T) {
	payload := EncodeDatagramPayload(Datagram{ID: 0x94, Body: []byte{0x01, 0x02}})
	assert.Equal(t, []byte{0x94, 0x02, 0x01, 0x02}, payload)
	// 不含校验字节：由 BDTP 封帧时追加
	assert.False(t, SumOK(payload))
}
