package dwtime

import (
	"bytes"
	"testing"
)

func TestPackUnpackLE(t *testing.T) {
	tests := []struct {
		v     uint64
		width int
		want  []byte
	}{
		{0, 5, []byte{0, 0, 0, 0, 0}},
		{0x0102030405, 5, []byte{0x05, 0x04, 0x03, 0x02, 0x01}},
		{0xFFFFFFFFFF, 5, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
		{0xDECA0302, 4, []byte{0x02, 0x03, 0xCA, 0xDE}},
		{0x0102030405060708, 8, []byte{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}},
		{0xAB, 1, []byte{0xAB}},
		{0x010203040506, 6, []byte{0x06, 0x05, 0x04, 0x03, 0x02, 0x01}},
	}
	for _, tt := range tests {
		got := PackLE(tt.v, tt.width)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("PackLE(%#x, %d) = % x, want % x", tt.v, tt.width, got, tt.want)
		}
		if back := UnpackLE(got); back != tt.v {
			t.Errorf("UnpackLE(PackLE(%#x, %d)) = %#x", tt.v, tt.width, back)
		}
	}
}

func TestPackLETruncates(t *testing.T) {
	// Values wider than the field lose their high bytes silently.
	got := PackLE(0x1FFFFFFFFFF, 5)
	want := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("PackLE(0x1FFFFFFFFFF, 5) = % x, want % x", got, want)
	}
}

func TestUnpackLEZeroExtends(t *testing.T) {
	tests := []struct {
		b    []byte
		want uint64
	}{
		{nil, 0},
		{[]byte{}, 0},
		{[]byte{0x7F}, 0x7F},
		{[]byte{0x00, 0x80}, 0x8000},
		{[]byte{0xFF, 0xFF, 0xFF}, 0xFFFFFF},
	}
	for _, tt := range tests {
		if got := UnpackLE(tt.b); got != tt.want {
			t.Errorf("UnpackLE(% x) = %#x, want %#x", tt.b, got, tt.want)
		}
	}
}

func TestAppendLE(t *testing.T) {
	dst := []byte{0xAA}
	dst = AppendLE(dst, 0x0102, 2)
	want := []byte{0xAA, 0x02, 0x01}
	if !bytes.Equal(dst, want) {
		t.Errorf("AppendLE = % x, want % x", dst, want)
	}
}

func TestTimestamp40Roundtrip(t *testing.T) {
	samples := []Timestamp40{0, 1, 0xFF, 0x100, 0xDEADBEEF00, 0xFFFFFFFFFF}
	for _, ts := range samples {
		packed := ts.PackLE()
		if len(packed) != Timestamp40Bytes {
			t.Fatalf("PackLE length = %d, want %d", len(packed), Timestamp40Bytes)
		}
		if got := UnpackTimestamp40(packed); got != ts {
			t.Errorf("UnpackTimestamp40(PackLE(%#x)) = %#x", ts, got)
		}
	}
}

func TestTimestamp40DTU(t *testing.T) {
	tests := []struct {
		ts   Timestamp40
		want DTU
	}{
		{0, 0},
		{0xFF, 0},        // sub-tick bits drop
		{0x100, 1},
		{0x1FF, 1},
		{0xFFFFFFFFFF, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		if got := tt.ts.DTU(); got != tt.want {
			t.Errorf("Timestamp40(%#x).DTU() = %#x, want %#x", tt.ts, got, tt.want)
		}
	}
}
