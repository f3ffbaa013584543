// Package transport frames DW3xxx register-access transactions: the one and
// two byte transaction headers with their addressing modes, the CRC-8 guard
// over header+body, and the Bus abstraction the rest of the driver talks
// through. Header layout, byte 0:
//
//	bit 7    write flag
//	bit 6    two-byte (full) header flag
//	bits 5:1 register file id
//	bit 0    fast-command marker (one-byte forms) or sub-address bit 6
//	         (two-byte forms)
//
// and byte 1, present only in full forms:
//
//	bits 7:2 sub-address bits 5:0
//	bits 1:0 mask width select (00 plain, 01/10/11 = 8/16/32-bit AND-OR)
package transport

import (
	"fmt"

	"dw3000-go/pkg/uwberr"
)

// RegFile is a 5-bit register file identifier.
type RegFile uint8

// Mode selects the transaction addressing/access mode.
type Mode uint8

const (
	// FastCommand is a one-byte bodyless command strobe.
	FastCommand Mode = iota
	// ShortRead reads from sub-address 0 with a one-byte header.
	ShortRead
	// ShortWrite writes to sub-address 0 with a one-byte header.
	ShortWrite
	// FullRead reads with a two-byte header carrying a 7-bit sub-address.
	FullRead
	// FullWrite writes with a two-byte header carrying a 7-bit sub-address.
	FullWrite
	// MaskedWrite8 writes an 8-bit AND mask followed by an 8-bit OR mask.
	MaskedWrite8
	// MaskedWrite16 is the 16-bit AND-OR form.
	MaskedWrite16
	// MaskedWrite32 is the 32-bit AND-OR form.
	MaskedWrite32
)

func (m Mode) String() string {
	switch m {
	case FastCommand:
		return "fast_command"
	case ShortRead:
		return "short_read"
	case ShortWrite:
		return "short_write"
	case FullRead:
		return "full_read"
	case FullWrite:
		return "full_write"
	case MaskedWrite8:
		return "masked_write_8"
	case MaskedWrite16:
		return "masked_write_16"
	case MaskedWrite32:
		return "masked_write_32"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Header is a decoded transaction header.
type Header struct {
	Reg  RegFile
	Sub  uint16
	Mode Mode
}

const (
	hdrWrite = 0x80 // byte 0 bit 7
	hdrFull  = 0x40 // byte 0 bit 6
	hdrFlag  = 0x01 // byte 0 bit 0

	regFileMax = 0x1F
	subAddrMax = 0x7F
)

// EncodeHeader builds the 1 or 2 byte transaction header for the given
// register file, sub-address and mode. Short and fast-command forms require
// sub == 0; full and masked forms carry a 7-bit sub-address.
func EncodeHeader(reg RegFile, sub uint16, mode Mode) ([]byte, error) {
	if reg > regFileMax {
		return nil, uwberr.FrameError("encode_header",
			fmt.Sprintf("register file id %#x exceeds 5 bits", uint8(reg)))
	}
	if sub > subAddrMax {
		return nil, uwberr.FrameError("encode_header",
			fmt.Sprintf("sub-address %#x exceeds 7 bits", sub))
	}

	base := byte(reg) << 1
	switch mode {
	case FastCommand:
		if sub != 0 {
			return nil, uwberr.FrameError("encode_header", "fast command carries no sub-address")
		}
		return []byte{hdrWrite | base | hdrFlag}, nil
	case ShortRead:
		if sub != 0 {
			return nil, uwberr.FrameError("encode_header", "short read requires sub-address 0")
		}
		return []byte{base}, nil
	case ShortWrite:
		if sub != 0 {
			return nil, uwberr.FrameError("encode_header", "short write requires sub-address 0")
		}
		return []byte{hdrWrite | base}, nil
	case FullRead, FullWrite, MaskedWrite8, MaskedWrite16, MaskedWrite32:
		b0 := hdrFull | base | byte(sub>>6)&hdrFlag
		b1 := byte(sub&0x3F) << 2
		switch mode {
		case FullWrite:
			b0 |= hdrWrite
		case MaskedWrite8:
			b0 |= hdrWrite
			b1 |= 0x01
		case MaskedWrite16:
			b0 |= hdrWrite
			b1 |= 0x02
		case MaskedWrite32:
			b0 |= hdrWrite
			b1 |= 0x03
		}
		return []byte{b0, b1}, nil
	}
	return nil, uwberr.FrameError("encode_header", fmt.Sprintf("unknown mode %d", uint8(mode)))
}

// DecodeHeader is the exact inverse of EncodeHeader. Truncated or
// inconsistent encodings are rejected: a one-byte header with the full flag
// set, a fast-command marker without the write flag, a trailing byte without
// the full flag, or a masked mode on a read.
func DecodeHeader(b []byte) (Header, error) {
	switch len(b) {
	case 1:
		b0 := b[0]
		if b0&hdrFull != 0 {
			return Header{}, uwberr.FrameError("decode_header", "full header flag set on one-byte header")
		}
		reg := RegFile(b0 >> 1 & regFileMax)
		switch {
		case b0&hdrFlag == 0 && b0&hdrWrite == 0:
			return Header{Reg: reg, Mode: ShortRead}, nil
		case b0&hdrFlag == 0:
			return Header{Reg: reg, Mode: ShortWrite}, nil
		case b0&hdrWrite != 0:
			return Header{Reg: reg, Mode: FastCommand}, nil
		}
		return Header{}, uwberr.FrameError("decode_header", "fast-command marker without write flag")
	case 2:
		b0, b1 := b[0], b[1]
		if b0&hdrFull == 0 {
			return Header{}, uwberr.FrameError("decode_header", "trailing byte without full header flag")
		}
		h := Header{
			Reg: RegFile(b0 >> 1 & regFileMax),
			Sub: uint16(b0&hdrFlag)<<6 | uint16(b1>>2),
		}
		write := b0&hdrWrite != 0
		switch b1 & 0x03 {
		case 0:
			if write {
				h.Mode = FullWrite
			} else {
				h.Mode = FullRead
			}
		case 1:
			h.Mode = MaskedWrite8
		case 2:
			h.Mode = MaskedWrite16
		case 3:
			h.Mode = MaskedWrite32
		}
		if !write && h.Mode != FullRead {
			return Header{}, uwberr.FrameError("decode_header", "masked mode on a read header")
		}
		return h, nil
	}
	return Header{}, uwberr.FrameError("decode_header",
		fmt.Sprintf("header must be 1 or 2 bytes, got %d", len(b)))
}

// BodyLen returns the body length implied by a masked-write mode, or -1 for
// modes whose body length is caller-defined.
func (m Mode) BodyLen() int {
	switch m {
	case FastCommand:
		return 0
	case MaskedWrite8:
		return 2
	case MaskedWrite16:
		return 4
	case MaskedWrite32:
		return 8
	}
	return -1
}
