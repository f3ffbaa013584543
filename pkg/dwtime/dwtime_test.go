package dwtime

import "testing"

func TestSubWraparound(t *testing.T) {
	tests := []struct {
		name string
		a, b DTU
		want int32
	}{
		{"forward", 1000, 400, 600},
		{"backward", 400, 1000, -600},
		{"equal", 77, 77, 0},
		{"across zero forward", 100, 0xFFFFFF00, 356},
		{"across zero backward", 0xFFFFFF00, 100, -356},
		{"half range minus one", 0x80000000, 1, 0x7FFFFFFF},
	}
	for _, tt := range tests {
		if got := Sub(tt.a, tt.b); got != tt.want {
			t.Errorf("%s: Sub(%#x, %#x) = %d, want %d", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAddWraps(t *testing.T) {
	tests := []struct {
		t    DTU
		d    int32
		want DTU
	}{
		{0, 1, 1},
		{0xFFFFFFFF, 1, 0},
		{0, -1, 0xFFFFFFFF},
		{1000, -400, 600},
		{0xFFFFFF00, 512, 256},
	}
	for _, tt := range tests {
		if got := tt.t.Add(tt.d); got != tt.want {
			t.Errorf("DTU(%#x).Add(%d) = %#x, want %#x", tt.t, tt.d, got, tt.want)
		}
	}
}

func TestSubAddRoundtrip(t *testing.T) {
	// Any offset under half the counter range must survive Add then Sub.
	bases := []DTU{0, 1, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFE}
	offsets := []int32{0, 1, -1, 256, -256, 1 << 30, -(1 << 30)}
	for _, b := range bases {
		for _, d := range offsets {
			if got := Sub(b.Add(d), b); got != d {
				t.Errorf("Sub(%#x.Add(%d), %#x) = %d, want %d", b, d, b, got, d)
			}
		}
	}
}

func TestUUSToDTU(t *testing.T) {
	tests := []struct {
		uus  uint32
		want DTU
	}{
		{0, 0},
		{1, 256},
		{100, 25600},
		{800, 204800},
	}
	for _, tt := range tests {
		if got := UUSToDTU(tt.uus); got != tt.want {
			t.Errorf("UUSToDTU(%d) = %d, want %d", tt.uus, got, tt.want)
		}
	}
}

func TestMicrosToDTU(t *testing.T) {
	tests := []struct {
		us   uint32
		want DTU
	}{
		{0, 0},
		{1, 249},   // 249.6 truncates
		{10, 2496}, // exact
		{100, 24960},
		{1000, 249600},
	}
	for _, tt := range tests {
		if got := MicrosToDTU(tt.us); got != tt.want {
			t.Errorf("MicrosToDTU(%d) = %d, want %d", tt.us, got, tt.want)
		}
	}
}

func TestDTUToMicros(t *testing.T) {
	tests := []struct {
		d    int32
		want int32
	}{
		{0, 0},
		{249, 0},      // under one microsecond truncates to zero
		{250, 1},      // 250/249.6 just crosses
		{2496, 10},    // exact
		{249600, 1000},
		{-2496, -10},
		{-250, -1},
	}
	for _, tt := range tests {
		if got := DTUToMicros(tt.d); got != tt.want {
			t.Errorf("DTUToMicros(%d) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestMicrosDTUConsistency(t *testing.T) {
	// Converting microseconds to ticks and back never gains time.
	for _, us := range []uint32{1, 7, 13, 100, 999, 5000} {
		d := MicrosToDTU(us)
		back := DTUToMicros(int32(d))
		if back > int32(us) || int32(us)-back > 1 {
			t.Errorf("roundtrip us=%d: got %d back", us, back)
		}
	}
}
