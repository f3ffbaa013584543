// Package exchange sequences the register operations that start a
// transmission or enable reception: buffer and frame-control writes, optional
// delayed-time programming, coexistence negotiation and the final trigger.
// Sequences short-circuit on the first failure and never retry; retry policy
// belongs to the caller.
package exchange

import (
	"github.com/rs/zerolog"

	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/coex"
	"dw3000-go/pkg/dwtime"
)

// TxFlags combine the transmit control flags into the trigger mode.
type TxFlags uint8

const (
	// TxDelayed schedules the transmission at the descriptor's DateDTU
	// instead of starting immediately.
	TxDelayed TxFlags = 1 << iota
	// TxRanging sets the ranging bit in the transmitted PHY header.
	TxRanging
	// TxResponseExpected uses the wait-for-response trigger variants so
	// the receiver arms itself after the transmission completes.
	TxResponseExpected
)

// TxDescriptor describes one transmission. The caller owns it for the
// duration of the exchange; TxFrame borrows it read-only.
type TxDescriptor struct {
	// DateDTU is the transmit time, honored when TxDelayed is set.
	DateDTU dwtime.DTU

	// RxDelayAfterTx is the receiver turn-on delay after the transmission,
	// in UUS. Negative disables RX-after-TX programming entirely.
	RxDelayAfterTx int32

	// RxTimeoutPAC is the preamble-detect timeout armed together with the
	// RX-after-TX delay.
	RxTimeoutPAC uint16

	Flags TxFlags

	// AckDelay programs the auto-ACK response delay in symbols when
	// non-zero. Current policy keeps it zero; the hook stays for protocol
	// modes that negotiate ACK timing.
	AckDelay uint8
}

// RxDescriptor describes one receiver enable. The coexistence arbiter may
// rewrite Delayed and DateDTU in place before the enable is issued; that is
// the one sanctioned mutation and the reason RxEnable takes a pointer.
type RxDescriptor struct {
	DateDTU    dwtime.DTU
	TimeoutPAC uint16
	Delayed    bool
}

// Orchestrator issues exchange sequences over the chip register dispatch.
// It holds no exchange state itself: one exchange in flight per device is
// the owner's contract, enforced by the device session lock.
type Orchestrator struct {
	ops  chip.Ops
	coex *coex.Arbiter
	log  zerolog.Logger
}

// New builds an orchestrator. arb must be non-nil; a disabled arbiter acts
// as a passthrough.
func New(ops chip.Ops, arb *coex.Arbiter, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{ops: ops, coex: arb, log: log}
}

// TxFrame runs the transmit sequence: buffer write and frame control when
// data is present, the auto-ACK hook, delayed-time programming, RX-after-TX
// arming, then the trigger. The trigger's result propagates unchanged.
func (o *Orchestrator) TxFrame(data []byte, d TxDescriptor) error {
	if len(data) > 0 {
		if err := o.ops.WriteTxData(data); err != nil {
			return err
		}
		if err := o.ops.SetTxFrameCtrl(len(data), d.Flags&TxRanging != 0); err != nil {
			return err
		}
	}
	if d.AckDelay != 0 {
		if err := o.ops.SetAckRespDelay(d.AckDelay); err != nil {
			return err
		}
	}
	if d.Flags&TxDelayed != 0 {
		if err := o.ops.SetDelayedTRXTime(d.DateDTU); err != nil {
			return err
		}
	}
	if d.RxDelayAfterTx >= 0 {
		if err := o.ops.SetRxAfterTxDelay(uint32(d.RxDelayAfterTx)); err != nil {
			return err
		}
		if err := o.ops.SetPreambleTimeout(d.RxTimeoutPAC); err != nil {
			return err
		}
	}
	return o.ops.StartTx(d.Flags&TxDelayed != 0, d.Flags&TxResponseExpected != 0)
}

// RxEnable runs the receive sequence: preamble timeout, coexistence
// negotiation, then the immediate or delayed enable. A delayed enable whose
// programmed time already passed goes idle and reports the rejection; it
// never falls back to an immediate enable silently.
//
// After a successful coexistence start, every failure path releases the
// line exactly once before propagating the underlying error unchanged. On
// success the line stays armed: the owner releases it when the exchange
// completes.
func (o *Orchestrator) RxEnable(d *RxDescriptor) error {
	if err := o.ops.SetPreambleTimeout(d.TimeoutPAC); err != nil {
		return err
	}
	if err := o.coex.Start(&d.Delayed, &d.DateDTU); err != nil {
		return err
	}

	if !d.Delayed {
		if err := o.ops.RxEnable(false); err != nil {
			o.release()
			return err
		}
		return nil
	}

	if err := o.ops.SetDelayedTRXTime(d.DateDTU); err != nil {
		o.release()
		return err
	}
	if err := o.ops.RxEnable(true); err != nil {
		o.release()
		return err
	}
	return nil
}

// release is the single compensating action after an aborted enable. Its own
// failure is logged, never propagated, so the caller sees the original error.
func (o *Orchestrator) release() {
	if err := o.coex.Stop(); err != nil {
		o.log.Warn().Err(err).Msg("coex release failed after aborted enable")
	}
}
