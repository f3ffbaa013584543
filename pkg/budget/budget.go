// Package budget derives the frame-shape-dependent timing values of an
// exchange: the RX turn-on delay and RX timeout programmed around a
// transmission, and the TX power boost for short frames. Every function
// re-derives from the three frame shape fields on each call; nothing is
// cached, so a shape change can never leave a stale duration behind.
package budget

import (
	"fmt"

	"dw3000-go/pkg/uwberr"
)

// Strict selects fail-fast handling of budget underflow. When false
// (production) a delay that would go negative saturates at zero; when true
// the same condition returns a BUDGET error. Tests and debug sessions set
// it to surface caller contract violations.
var Strict bool

// DataRate is the payload data rate of a frame.
type DataRate uint8

const (
	// Rate6M8 is the 6.8 Mbps rate.
	Rate6M8 DataRate = iota
	// Rate850K is the 850 kbps rate.
	Rate850K
)

func (r DataRate) String() string {
	switch r {
	case Rate6M8:
		return "6.8M"
	case Rate850K:
		return "850K"
	}
	return fmt.Sprintf("rate(%d)", uint8(r))
}

// PreambleLen is a preamble length in symbols.
type PreambleLen uint16

const (
	Plen32   PreambleLen = 32
	Plen64   PreambleLen = 64
	Plen72   PreambleLen = 72
	Plen128  PreambleLen = 128
	Plen256  PreambleLen = 256
	Plen512  PreambleLen = 512
	Plen1024 PreambleLen = 1024
	Plen1536 PreambleLen = 1536
	Plen2048 PreambleLen = 2048
	Plen4096 PreambleLen = 4096
)

// STSLen is the scrambled timestamp sequence length. STSOff disables the
// segment; the other values name its duration in microseconds.
type STSLen uint8

const (
	STSOff STSLen = iota
	STS32
	STS64
	STS128
	STS256
	STS512
	STS1024
	STS2048
)

// Micros returns the STS segment duration in microseconds, 0 when off.
func (s STSLen) Micros() uint32 {
	if s == STSOff {
		return 0
	}
	return 8 << (uint(s-1) + 2)
}

// FrameShape holds the three fields every timing computation derives from.
type FrameShape struct {
	PLen PreambleLen
	Rate DataRate
	STS  STSLen
}

// Power boost lookup, 0.1 dB units. Frames shorter than the 1 ms reference
// may transmit hotter while staying inside the regulatory average-power
// window; the boost grows as the frame shrinks. Two tables cover the range:
// 1000 down to 200 us in 25 us steps, then 200 down to 70 us in 10 us
// steps. Contents are fixed calibration data and must not be edited.
var boostTable25 = [33]uint8{
	0, 1, 2, 3, 4, 6, 7, 8, 9, 11, 12, 14, 15, 17, 18, 20, 22,
	23, 25, 27, 29, 31, 34, 36, 39, 41, 44, 47, 51, 55, 59, 63, 68,
}

var boostTable10 = [14]uint8{
	68, 70, 73, 75, 78, 80, 83, 86, 90, 94, 98, 102, 107, 113,
}

const (
	boostRefUs   = 1000 // durations at or above this get no boost
	boostKneeUs  = 200  // table crossover
	boostFloorUs = 70   // durations at or below this get the max boost
	boostMax     = 113
)

// PowerBoostForDuration returns the TX power boost in 0.1 dB units for a
// frame of the given duration. The duration is quantized to the nearest
// tabulated value; an exact half-step tie rounds toward the larger boost.
func PowerBoostForDuration(durationUs uint32) uint8 {
	switch {
	case durationUs >= boostRefUs:
		return 0
	case durationUs <= boostFloorUs:
		return boostMax
	case durationUs >= boostKneeUs:
		return boostTable25[quantize(boostRefUs-durationUs, 25, len(boostTable25))]
	}
	return boostTable10[quantize(boostKneeUs-durationUs, 10, len(boostTable10))]
}

// quantize maps a distance below a table's reference duration to a table
// index: truncate to a step count, then bump by one when the remainder is
// at least half a step (the bump lands on the larger boost).
func quantize(span, step uint32, size int) int {
	idx := span / step
	if rem := span - idx*step; rem*2 >= step {
		idx++
	}
	if int(idx) >= size {
		idx = uint32(size - 1)
	}
	return int(idx)
}

// turnOnSymbols maps preamble length to the symbol budget subtracted from
// the RX turn-on delay. 4096 intentionally shares 2048's value: the radio's
// turn-on lead time stops growing past 2048 symbols, so the mapping is
// monotonic but not injective. Do not "fix" the collapsed step.
func turnOnSymbols(p PreambleLen) (uint32, error) {
	switch p {
	case Plen32, Plen64, Plen72, Plen128, Plen256, Plen512, Plen1024, Plen1536, Plen2048:
		return uint32(p), nil
	case Plen4096:
		return uint32(Plen2048), nil
	}
	return 0, uwberr.BudgetRangeError("preamble_length", p)
}

// timeoutSymbols maps preamble length to the RX timeout penalty. Unlike the
// turn-on mapping this one uses the full preamble, so the two longest
// lengths stay distinct.
func timeoutSymbols(p PreambleLen) (uint32, error) {
	switch p {
	case Plen32, Plen64, Plen72, Plen128, Plen256, Plen512, Plen1024, Plen1536, Plen2048, Plen4096:
		if p <= Plen128 {
			return 0, nil
		}
		return uint32(p) - uint32(Plen128), nil
	}
	return 0, uwberr.BudgetRangeError("preamble_length", p)
}

// RxTurnOnDelay computes the delayed receiver turn-on time in UUS: the
// caller's base delay less the preamble symbol budget, plus the STS
// duration when enabled. The result saturates at zero; with Strict set a
// negative-going result is returned as a BUDGET error instead.
func RxTurnOnDelay(baseDelayUUS uint32, shape FrameShape) (uint32, error) {
	sym, err := turnOnSymbols(shape.PLen)
	if err != nil {
		return 0, err
	}
	total := int64(baseDelayUUS) - int64(sym) + int64(shape.STS.Micros())
	if total < 0 {
		if Strict {
			return 0, uwberr.BudgetError(fmt.Sprintf(
				"rx turn-on delay underflow: base %d uus, preamble %d symbols", baseDelayUUS, sym))
		}
		total = 0
	}
	return uint32(total), nil
}

// rxTimeoutMarginUs absorbs host and chip processing latency. Fixed by
// calibration; not a tuning knob.
const rxTimeoutMarginUs = 500

// RxTimeoutBudget computes the receiver frame-wait timeout in UUS: the
// caller's base delay, a 200 us penalty at the slow data rate, a preamble
// penalty that grows past 128 symbols, the STS duration when enabled, and
// the fixed processing margin.
func RxTimeoutBudget(baseDelayUUS uint32, shape FrameShape) (uint32, error) {
	sym, err := timeoutSymbols(shape.PLen)
	if err != nil {
		return 0, err
	}
	total := baseDelayUUS + sym + shape.STS.Micros() + rxTimeoutMarginUs
	if shape.Rate == Rate850K {
		total += 200
	}
	return total, nil
}
