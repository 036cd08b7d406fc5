package bst

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{
			name:     "空数据",
			data:     []byte{},
			expected: 0x00,
		},
		{
			name:     "单字节",
			data:     []byte{0x01},
			expected: 0xFF,
		},
		{
			name:     "溢出回绕",
			data:     []byte{0xAA, 0xAA},
			expected: byte(0x100 - (0xAA+0xAA)%0x100),
		},
		{
			name:     "BEM GetOperatingMode 载荷",
			data:     []byte{0xA1, 0x01, 0x11},
			expected: 0x4D, // 0xA1+0x01+0x11=0xB3, 0x100-0xB3=0x4D
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Checksum(tt.data)
			if got != tt.expected {
				t.Errorf("Checksum() = 0x%02X, expected 0x%02X", got, tt.expected)
			}
		})
	}
}

func TestSumOK(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ok   bool
	}{
		{
			name: "正确的零和",
			data: []byte{0xA1, 0x01, 0x11, 0x4D},
			ok:   true,
		},
		{
			name: "错误的校验字节",
			data: []byte{0xA1, 0x01, 0x11, 0xFF},
			ok:   false,
		},
		{
			name: "空数据和为零",
			data: []byte{},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SumOK(tt.data); got != tt.ok {
				t.Errorf("SumOK() = %v, expected %v", got, tt.ok)
			}
		})
	}
}

func TestChecksumRoundTrip(t *testing.T) {
	// 对任意受保护区域，追加 Checksum 后全帧必为零和
	cases := [][]byte{
		{0x93, 0x00},
		{0x93, 0x0D, 0x06, 0x01, 0xF8, 0x01, 0xFF, 0x23, 0xE8, 0x03, 0x00, 0x00, 0x03, 0x11, 0x22, 0x33},
		{0xFF, 0xFF, 0xFF},
	}
	for i, data := range cases {
		withCks := append(append([]byte{}, data...), Checksum(data))
		if !SumOK(withCks) {
			t.Errorf("case %d: 追加校验后零和验证失败", i)
		}
	}
}
