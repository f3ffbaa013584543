package status

import (
	"context"
	"fmt"
	"testing"

	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/uwberr"
)

// scriptSource replays canned status words, repeating the last entry once a
// script runs out.
type scriptSource struct {
	lo      []uint32
	hi      []uint32
	loErr   error
	hiErr   error
	loReads int
	hiReads int
}

func (s *scriptSource) ReadStatusLo() (uint32, error) {
	if s.loErr != nil {
		return 0, s.loErr
	}
	i := s.loReads
	if i >= len(s.lo) {
		i = len(s.lo) - 1
	}
	s.loReads++
	return s.lo[i], nil
}

func (s *scriptSource) ReadStatusHi() (uint32, error) {
	if s.hiErr != nil {
		return 0, s.hiErr
	}
	i := s.hiReads
	if i >= len(s.hi) {
		i = len(s.hi) - 1
	}
	s.hiReads++
	return s.hi[i], nil
}

func TestWaitZeroMasks(t *testing.T) {
	src := &scriptSource{lo: []uint32{0xFFFFFFFF}, hi: []uint32{0xFFFFFFFF}}
	snap, err := Wait(src, 0, 0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap != (Snapshot{}) {
		t.Errorf("snapshot = %+v, want zero", snap)
	}
	if src.loReads != 0 || src.hiReads != 0 {
		t.Errorf("zero-mask wait touched the bus: %d lo, %d hi reads", src.loReads, src.hiReads)
	}
}

func TestWaitLowWord(t *testing.T) {
	src := &scriptSource{lo: []uint32{0, chip.SYS_STATUS_AAT, chip.SYS_STATUS_TXFRS}}
	snap, err := Wait(src, chip.SYS_STATUS_TXFRS, 0)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.Lo != chip.SYS_STATUS_TXFRS {
		t.Errorf("lo = %#08x, want TXFRS", snap.Lo)
	}
	if src.loReads != 3 {
		t.Errorf("lo reads = %d, want 3", src.loReads)
	}
	if src.hiReads != 0 {
		t.Errorf("low-word wait read the high word %d times", src.hiReads)
	}
}

func TestWaitHighWordOnly(t *testing.T) {
	src := &scriptSource{hi: []uint32{0, chip.SYS_STATUS_HI_RXPREJ}}
	snap, err := Wait(src, 0, chip.SYS_STATUS_HI_RXPREJ)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.Hi != chip.SYS_STATUS_HI_RXPREJ {
		t.Errorf("hi = %#08x, want RXPREJ", snap.Hi)
	}
	if snap.Lo != 0 {
		t.Errorf("lo = %#08x, want 0 (never read)", snap.Lo)
	}
	if src.loReads != 0 {
		t.Errorf("high-word wait read the low word %d times", src.loReads)
	}
}

// A high-word exit keeps whatever low value was last read, even though it
// does not satisfy loMask. Observed hardware-contract behavior, kept as is.
func TestWaitHighExitKeepsStaleLow(t *testing.T) {
	src := &scriptSource{
		lo: []uint32{chip.SYS_STATUS_AAT},
		hi: []uint32{0, chip.SYS_STATUS_HI_CCA_FAIL},
	}
	snap, err := Wait(src, chip.SYS_STATUS_TXFRS, chip.SYS_STATUS_HI_CCA_FAIL)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.Hi != chip.SYS_STATUS_HI_CCA_FAIL {
		t.Errorf("hi = %#08x, want CCA_FAIL", snap.Hi)
	}
	if snap.Lo != chip.SYS_STATUS_AAT {
		t.Errorf("lo = %#08x, want the stale AAT read", snap.Lo)
	}
	if snap.Lo&chip.SYS_STATUS_TXFRS != 0 {
		t.Errorf("test setup: stale low value satisfies the mask")
	}
}

func TestWaitLowWinsOverHigh(t *testing.T) {
	src := &scriptSource{
		lo: []uint32{chip.SYS_STATUS_TXFRS},
		hi: []uint32{chip.SYS_STATUS_HI_CCA_FAIL},
	}
	snap, err := Wait(src, chip.SYS_STATUS_TXFRS, chip.SYS_STATUS_HI_CCA_FAIL)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if snap.Lo != chip.SYS_STATUS_TXFRS || snap.Hi != 0 {
		t.Errorf("snapshot = %+v, want low-word exit before any high read", snap)
	}
	if src.hiReads != 0 {
		t.Errorf("high word read despite a first-poll low match")
	}
}

func TestWaitReadFailures(t *testing.T) {
	src := &scriptSource{loErr: fmt.Errorf("bus gone")}
	if _, err := Wait(src, chip.SYS_STATUS_TXFRS, 0); err == nil {
		t.Fatalf("low read failure swallowed")
	}

	src = &scriptSource{hiErr: fmt.Errorf("bus gone")}
	if _, err := Wait(src, 0, chip.SYS_STATUS_HI_RXPREJ); err == nil {
		t.Fatalf("high read failure swallowed")
	}
}

func TestWaitContextExpiry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &scriptSource{lo: []uint32{0}}
	_, err := WaitContext(ctx, src, chip.SYS_STATUS_TXFRS, 0)
	if !uwberr.Is(err, uwberr.ErrHWTimeout) {
		t.Fatalf("expired wait err = %v", err)
	}
	if src.loReads != 0 {
		t.Errorf("expired context still polled %d times", src.loReads)
	}
}

func TestWaitContextCancelMidPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptSource{lo: []uint32{0}}
	done := false
	stop := &cancelAfter{src: src, n: 3, cancel: cancel, fired: &done}

	_, err := WaitContext(ctx, stop, chip.SYS_STATUS_TXFRS, 0)
	if !uwberr.Is(err, uwberr.ErrHWTimeout) {
		t.Fatalf("canceled wait err = %v", err)
	}
	if !done {
		t.Fatalf("cancellation never fired")
	}
}

func TestWaitContextSuccess(t *testing.T) {
	src := &scriptSource{lo: []uint32{0, chip.SYS_STATUS_RXFCG}}
	snap, err := WaitContext(context.Background(), src, chip.SYS_STATUS_RXFCG, 0)
	if err != nil {
		t.Fatalf("WaitContext: %v", err)
	}
	if snap.Lo != chip.SYS_STATUS_RXFCG {
		t.Errorf("lo = %#08x, want RXFCG", snap.Lo)
	}
}

// cancelAfter cancels its context after n low-word reads, never reporting a
// match itself.
type cancelAfter struct {
	src    *scriptSource
	n      int
	cancel context.CancelFunc
	fired  *bool
}

func (c *cancelAfter) ReadStatusLo() (uint32, error) {
	v, err := c.src.ReadStatusLo()
	if c.src.loReads >= c.n && !*c.fired {
		*c.fired = true
		c.cancel()
	}
	return v, err
}

func (c *cancelAfter) ReadStatusHi() (uint32, error) {
	return c.src.ReadStatusHi()
}
