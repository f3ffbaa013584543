package device

import (
	"context"
	"time"

	"dw3000-go/pkg/status"
	"dw3000-go/pkg/uwberr"
)

// irqPollInterval bounds each edge wait so the loop re-checks its context.
const irqPollInterval = 100 * time.Millisecond

// EdgeWaiter blocks until an interrupt edge or a timeout. periph.io GPIO
// pins satisfy it directly.
type EdgeWaiter interface {
	WaitForEdge(timeout time.Duration) bool
}

// RunIRQ services the interrupt line until ctx ends. Each edge reads the
// status words; exchange completions are classified, cleared and delivered
// to the waiting completion. While the loop runs, WaitExchange waits on
// delivered completions instead of polling the bus.
//
// A status read failure stops the loop; the transport is gone and every
// later operation would fail the same way.
func (d *Device) RunIRQ(ctx context.Context, irq EdgeWaiter) error {
	d.mu.Lock()
	if d.irqMode {
		d.mu.Unlock()
		return uwberr.RuntimeError("interrupt loop already running")
	}
	d.irqMode = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.irqMode = false
		d.mu.Unlock()
	}()

	d.log.Info().Msg("interrupt loop started")
	for {
		if ctx.Err() != nil {
			d.log.Info().Msg("interrupt loop stopped")
			return nil
		}
		if !irq.WaitForEdge(irqPollInterval) {
			continue
		}
		snap, err := d.readStatus()
		if err != nil {
			return err
		}
		if snap.Lo&exchangeMask == 0 {
			// Spurious edge or a cause outside the exchange path.
			d.log.Debug().
				Uint32("status_lo", snap.Lo).
				Uint32("status_hi", snap.Hi).
				Msg("edge with no exchange event")
			continue
		}
		if _, err := d.finishExchange(snap); err != nil {
			// The waiter already received the error through the
			// completion; the line still needs servicing.
			d.log.Warn().Err(err).Msg("exchange completion finished with error")
		}
	}
}

func (d *Device) readStatus() (status.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	lo, err := d.ops.ReadStatusLo()
	if err != nil {
		return status.Snapshot{}, err
	}
	hi, err := d.ops.ReadStatusHi()
	if err != nil {
		return status.Snapshot{}, err
	}
	return status.Snapshot{Lo: lo, Hi: hi}, nil
}
