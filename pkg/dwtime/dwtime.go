// Package dwtime provides the device time model for DW3xxx UWB transceivers:
// the 32-bit wraparound device time unit (DTU), the UWB microsecond (UUS)
// used for protocol-level delay parameters, and the little-endian timestamp
// codecs used in ranging frames and time registers.
package dwtime

// Device time constants.
const (
	// DTUFreqHz is the rate of the device time counter (499.2 MHz / 2).
	// One tick is ~4.006 ns.
	DTUFreqHz = 249_600_000

	// DTUPerUUS is the exact number of device time ticks in one UWB
	// microsecond: 1 UUS = 512 chips of the 499.2 MHz fundamental = 256
	// ticks = ~1.0256 us.
	DTUPerUUS = 256

	// ticksPer10Us is 249.6 ticks/us scaled by 10 for integer math.
	ticksPer10Us = 2496
)

// DTU is a device time value or duration in device time units. The hardware
// counter is 32 bits wide and wraps roughly every 17.2 s, so absolute values
// are only meaningful relative to other recent readings. Differences must go
// through Sub - never unsigned subtraction.
type DTU uint32

// Sub returns the signed difference a-b, correct across counter wraparound.
// The result is exact as long as the real distance between a and b is under
// half the counter range (~8.6 s).
func Sub(a, b DTU) int32 {
	return int32(uint32(a) - uint32(b))
}

// Add offsets t by a signed number of ticks, wrapping as the hardware does.
func (t DTU) Add(d int32) DTU {
	return DTU(uint32(t) + uint32(d))
}

// UUSToDTU converts a delay in UWB microseconds to device time units. The
// scale is exact (256 ticks per UUS). Timing budgets are carried in UUS and
// converted here exactly once, at the point a register is programmed, so
// rounding never compounds across intermediate steps.
func UUSToDTU(uus uint32) DTU {
	return DTU(uus * DTUPerUUS)
}

// MicrosToDTU converts plain microseconds to device time units, truncating
// toward zero.
func MicrosToDTU(us uint32) DTU {
	return DTU(uint64(us) * ticksPer10Us / 10)
}

// DTUToMicros converts a signed tick difference to plain microseconds,
// truncating toward zero.
func DTUToMicros(d int32) int32 {
	return int32(int64(d) * 10 / ticksPer10Us)
}
