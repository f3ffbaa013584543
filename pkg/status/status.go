// Package status watches the DW3xxx event words. Wait is the raw unbounded
// busy-poll the hardware contract calls for; WaitContext bounds it with a
// caller-supplied deadline. Classify folds an error snapshot into
// caller-owned counters for long-running diagnostics.
package status

import (
	"context"

	"dw3000-go/pkg/uwberr"
)

// Source reads the two event status words. The reads are separate bus
// transactions, so a snapshot's lo and hi words may be observed at slightly
// different instants.
type Source interface {
	ReadStatusLo() (uint32, error)
	ReadStatusHi() (uint32, error)
}

// Snapshot holds one observation of the status words.
type Snapshot struct {
	Lo uint32
	Hi uint32
}

// Wait busy-polls until a masked bit appears in the selected word. With both
// masks set the low word is primary: the high word is checked
// opportunistically after each low read, and a high-word match exits with the
// last-read low value even when that value does not satisfy loMask. With
// neither mask set Wait returns a zero snapshot immediately.
//
// There is no internal timeout: a wedged chip hangs the call. Callers that
// need a bound use WaitContext or an external watchdog.
func Wait(src Source, loMask, hiMask uint32) (Snapshot, error) {
	return wait(src, loMask, hiMask, nil)
}

// WaitContext is Wait bounded by ctx. The context is checked between polls,
// so cancellation latency is at most one bus transaction. Expiry surfaces as
// a HW_TIMEOUT error wrapping the context's error.
func WaitContext(ctx context.Context, src Source, loMask, hiMask uint32) (Snapshot, error) {
	return wait(src, loMask, hiMask, func() error {
		if err := ctx.Err(); err != nil {
			return uwberr.Wrap(err, uwberr.ErrHWTimeout, "status wait abandoned").
				SetOp("wait_for_status")
		}
		return nil
	})
}

func wait(src Source, loMask, hiMask uint32, stop func() error) (Snapshot, error) {
	if loMask == 0 && hiMask == 0 {
		return Snapshot{}, nil
	}
	var snap Snapshot
	for {
		if stop != nil {
			if err := stop(); err != nil {
				return snap, err
			}
		}
		if loMask != 0 {
			lo, err := src.ReadStatusLo()
			if err != nil {
				return snap, err
			}
			snap.Lo = lo
			if lo&loMask != 0 {
				return snap, nil
			}
		}
		if hiMask != 0 {
			hi, err := src.ReadStatusHi()
			if err != nil {
				return snap, err
			}
			snap.Hi = hi
			if hi&hiMask != 0 {
				return snap, nil
			}
		}
	}
}
