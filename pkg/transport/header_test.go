package transport

import (
	"bytes"
	"testing"

	"dw3000-go/pkg/uwberr"
)

func TestEncodeHeader_KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		reg  RegFile
		sub  uint16
		mode Mode
		want []byte
	}{
		{"fast cmd 0", 0x00, 0, FastCommand, []byte{0x81}},
		{"fast cmd tx", 0x01, 0, FastCommand, []byte{0x83}},
		{"fast cmd db_toggle", 0x13, 0, FastCommand, []byte{0xA7}},
		{"short read gen_cfg", 0x00, 0, ShortRead, []byte{0x00}},
		{"short read top", 0x1F, 0, ShortRead, []byte{0x3E}},
		{"short write", 0x14, 0, ShortWrite, []byte{0xA8}},
		{"full read low sub", 0x00, 0x04, FullRead, []byte{0x40, 0x10}},
		{"full read sub bit6", 0x0A, 0x40, FullRead, []byte{0x55, 0x00}},
		{"full write", 0x00, 0x08, FullWrite, []byte{0xC0, 0x20}},
		{"full write sub 0", 0x11, 0x00, FullWrite, []byte{0xE2, 0x00}},
		{"masked write 8", 0x00, 0x10, MaskedWrite8, []byte{0xC0, 0x41}},
		{"masked write 16", 0x01, 0x7F, MaskedWrite16, []byte{0xC3, 0xFE}},
		{"masked write 32", 0x1F, 0x7F, MaskedWrite32, []byte{0xFF, 0xFF}},
	}
	for _, tt := range tests {
		got, err := EncodeHeader(tt.reg, tt.sub, tt.mode)
		if err != nil {
			t.Fatalf("%s: EncodeHeader: %v", tt.name, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("%s: EncodeHeader(%#x, %#x, %v) = % x, want % x",
				tt.name, tt.reg, tt.sub, tt.mode, got, tt.want)
		}
	}
}

func TestHeaderRoundtrip(t *testing.T) {
	modes := []Mode{FastCommand, ShortRead, ShortWrite, FullRead, FullWrite,
		MaskedWrite8, MaskedWrite16, MaskedWrite32}
	regs := []RegFile{0x00, 0x01, 0x0E, 0x1F}
	subs := []uint16{0x00, 0x01, 0x3F, 0x40, 0x7F}

	for _, mode := range modes {
		for _, reg := range regs {
			for _, sub := range subs {
				if sub != 0 {
					switch mode {
					case FastCommand, ShortRead, ShortWrite:
						continue
					}
				}
				enc, err := EncodeHeader(reg, sub, mode)
				if err != nil {
					t.Fatalf("EncodeHeader(%#x, %#x, %v): %v", reg, sub, mode, err)
				}
				h, err := DecodeHeader(enc)
				if err != nil {
					t.Fatalf("DecodeHeader(% x): %v", enc, err)
				}
				if h.Reg != reg || h.Sub != sub || h.Mode != mode {
					t.Errorf("roundtrip %v reg=%#x sub=%#x: got %+v", mode, reg, sub, h)
				}
			}
		}
	}
}

func TestEncodeHeader_Rejects(t *testing.T) {
	tests := []struct {
		name string
		reg  RegFile
		sub  uint16
		mode Mode
	}{
		{"register over 5 bits", 0x20, 0, ShortRead},
		{"sub over 7 bits", 0x00, 0x80, FullRead},
		{"short read with sub", 0x00, 1, ShortRead},
		{"short write with sub", 0x00, 1, ShortWrite},
		{"fast cmd with sub", 0x00, 1, FastCommand},
		{"unknown mode", 0x00, 0, Mode(99)},
	}
	for _, tt := range tests {
		if _, err := EncodeHeader(tt.reg, tt.sub, tt.mode); err == nil {
			t.Errorf("%s: EncodeHeader accepted", tt.name)
		} else if !uwberr.Is(err, uwberr.ErrTransportFrame) {
			t.Errorf("%s: error code = %v, want TRANSPORT_FRAME", tt.name, err)
		}
	}
}

func TestDecodeHeader_Rejects(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
	}{
		{"empty", nil},
		{"full flag on one byte", []byte{0x40}},
		{"fast marker without write", []byte{0x01}},
		{"trailing byte without full flag", []byte{0x80, 0x00}},
		{"masked read", []byte{0x40, 0x01}},
		{"three bytes", []byte{0xC0, 0x00, 0x00}},
	}
	for _, tt := range tests {
		if _, err := DecodeHeader(tt.b); err == nil {
			t.Errorf("%s: DecodeHeader(% x) accepted", tt.name, tt.b)
		}
	}
}

func TestModeBodyLen(t *testing.T) {
	tests := []struct {
		mode Mode
		want int
	}{
		{FastCommand, 0},
		{MaskedWrite8, 2},
		{MaskedWrite16, 4},
		{MaskedWrite32, 8},
		{FullRead, -1},
		{FullWrite, -1},
		{ShortWrite, -1},
	}
	for _, tt := range tests {
		if got := tt.mode.BodyLen(); got != tt.want {
			t.Errorf("%v.BodyLen() = %d, want %d", tt.mode, got, tt.want)
		}
	}
}
