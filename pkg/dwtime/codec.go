package dwtime

// Timestamp field widths used on the wire.
const (
	// Timestamp40Bytes is the width of RX/TX marker timestamps in ranging
	// frames and the RX_TIME/TX_TIME registers.
	Timestamp40Bytes = 5

	// Timestamp48Bytes is the width of CIR-adjacent diagnostic words.
	Timestamp48Bytes = 6
)

// PackLE encodes the low width bytes of v as little-endian, least
// significant byte at index 0. Values wider than the field are silently
// truncated: by contract callers never pass values exceeding the field
// width. width must be in 1..8.
func PackLE(v uint64, width int) []byte {
	return AppendLE(make([]byte, 0, width), v, width)
}

// AppendLE appends the width-byte little-endian encoding of v to dst and
// returns the extended slice. Truncation semantics match PackLE.
func AppendLE(dst []byte, v uint64, width int) []byte {
	for i := 0; i < width; i++ {
		dst = append(dst, byte(v>>(8*i)))
	}
	return dst
}

// PutLE fills dst with the little-endian encoding of v, one byte per
// element. Truncation semantics match PackLE.
func PutLE(dst []byte, v uint64) {
	for i := range dst {
		dst[i] = byte(v >> (8 * i))
	}
}

// UnpackLE decodes a little-endian field of up to 8 bytes, zero-extending
// into the 64-bit result.
func UnpackLE(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Timestamp40 is a 40-bit full-resolution event timestamp, ~15.65 ps per
// least significant bit (499.2 MHz x 128). RX and TX marker times are
// reported in this unit.
type Timestamp40 uint64

// UnpackTimestamp40 decodes a 5-byte little-endian timestamp. The slice must
// hold at least Timestamp40Bytes.
func UnpackTimestamp40(b []byte) Timestamp40 {
	return Timestamp40(UnpackLE(b[:Timestamp40Bytes]))
}

// PackLE encodes the timestamp as 5 little-endian bytes.
func (t Timestamp40) PackLE() []byte {
	return PackLE(uint64(t), Timestamp40Bytes)
}

// DTU truncates the timestamp to device time units: 256 timestamp lsbs make
// one ~4 ns tick, so the low byte is dropped.
func (t Timestamp40) DTU() DTU {
	return DTU(uint32(t >> 8))
}
