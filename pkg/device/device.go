// Package device binds one radio session into a single handle: the probed
// chip family behind its transport, the coexistence arbiter, the exchange
// orchestrator and the error classifier. There is no package-level
// current-device state; every operation goes through a *Device, so multiple
// devices coexist safely by construction.
//
// Two deployment modes deliver exchange completions, mutually exclusive per
// session: an interrupt loop (RunIRQ) that services an IRQ line, or polling
// (WaitExchange without a running interrupt loop). Either way the session
// mutex keeps one exchange in flight per device.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dw3000-go/pkg/budget"
	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/coex"
	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/exchange"
	"dw3000-go/pkg/status"
	"dw3000-go/pkg/transport"
	"dw3000-go/pkg/uwberr"
)

// Exchange outcome masks over the low status word.
const (
	txDoneMask = chip.SYS_STATUS_TXFRS
	rxGoodMask = chip.SYS_STATUS_RXFCG

	rxErrorMask = chip.SYS_STATUS_RXPHE | chip.SYS_STATUS_RXFCE |
		chip.SYS_STATUS_RXRFSL | chip.SYS_STATUS_RXSTO |
		chip.SYS_STATUS_ARFE | chip.SYS_STATUS_CPERR

	rxTimeoutMask = chip.SYS_STATUS_RXFTO | chip.SYS_STATUS_RXPTO

	exchangeMask = txDoneMask | rxGoodMask | rxErrorMask | rxTimeoutMask
)

// Config describes how to open a device session.
type Config struct {
	// Bus is the opened transport. The device owns it after a successful
	// Open and closes it with Close.
	Bus transport.Bus

	// Coex configures the coexistence arbiter. The zero value disables
	// the subsystem.
	Coex coex.Config

	// UseCRC enables the CRC-8 write guard once the probe succeeds.
	UseCRC bool

	// ProbeRetries and ProbeDelay bound the slow-rate identifier poll.
	// Zero values select 5 retries starting at 10ms, doubling.
	ProbeRetries int
	ProbeDelay   time.Duration

	// Log receives session events; nil disables logging.
	Log *zerolog.Logger
}

// Device is one radio session handle.
type Device struct {
	conn *transport.Conn
	ops  chip.Ops
	arb  *coex.Arbiter
	orch *exchange.Orchestrator
	log  zerolog.Logger

	devID  uint32
	useCRC bool

	mu       sync.Mutex
	pending  *Completion
	irqMode  bool
	counters status.Counters
}

// Open probes the chip at the slow transport rate, selects the family
// implementation, switches to the operating rate and configures the
// coexistence line. The bus is closed on any failure.
func Open(ctx context.Context, cfg Config) (*Device, error) {
	log := zerolog.Nop()
	if cfg.Log != nil {
		log = *cfg.Log
	}
	if cfg.ProbeRetries == 0 {
		cfg.ProbeRetries = 5
	}
	if cfg.ProbeDelay == 0 {
		cfg.ProbeDelay = 10 * time.Millisecond
	}

	conn := transport.NewConn(cfg.Bus)
	fail := func(err error) (*Device, error) {
		conn.Close()
		return nil, err
	}

	if err := conn.SetFastRate(false); err != nil {
		return fail(err)
	}
	devID, err := probe(ctx, conn, cfg.ProbeRetries, cfg.ProbeDelay, log)
	if err != nil {
		return fail(err)
	}
	ops, err := chip.NewOps(devID, conn, log)
	if err != nil {
		return fail(err)
	}

	// Reset into a known state and wait for the chip to report ready
	// before raising the clock rate.
	if err := ops.SoftReset(); err != nil {
		return fail(err)
	}
	if _, err := status.WaitContext(ctx, ops, chip.SYS_STATUS_SPIRDY|chip.SYS_STATUS_RCINIT, 0); err != nil {
		return fail(err)
	}
	if err := conn.SetFastRate(true); err != nil {
		return fail(err)
	}
	conn.SetCRCMode(cfg.UseCRC)

	arb := coex.New(ops, cfg.Coex)
	if arb.Enabled() {
		if err := arb.Configure(); err != nil {
			return fail(err)
		}
	}

	log.Info().Uint32("dev_id", devID).Bool("coex", arb.Enabled()).Msg("device opened")
	return &Device{
		conn:   conn,
		ops:    ops,
		arb:    arb,
		orch:   exchange.New(ops, arb, log),
		log:    log,
		devID:  devID,
		useCRC: cfg.UseCRC,
	}, nil
}

// probe polls the device identifier with doubling backoff until a known
// family answers.
func probe(ctx context.Context, conn *transport.Conn, retries int, delay time.Duration, log zerolog.Logger) (uint32, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, uwberr.Wrap(err, uwberr.ErrProbe, "probe abandoned")
		}
		id, err := conn.Read32(chip.GEN_CFG_AES_0, chip.DEV_ID)
		if err == nil {
			if chip.KnownDevID(id) {
				return id, nil
			}
			lastErr = uwberr.ProbeDevIDError(id)
		} else {
			lastErr = err
			log.Debug().Err(err).Int("attempt", attempt).Msg("probe read failed")
		}
		if attempt < retries {
			time.Sleep(delay)
			delay *= 2
		}
	}
	if uwberr.Is(lastErr, uwberr.ErrProbeDevID) {
		return 0, lastErr
	}
	return 0, uwberr.Wrap(lastErr, uwberr.ErrProbe, "device did not answer the identifier poll")
}

// Close closes the transport.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Close()
}

// DevID returns the probed device identifier.
func (d *Device) DevID() uint32 {
	return d.devID
}

// Reset soft-resets the chip and waits for it to report ready. The CRC write
// guard is dropped for the reset and restored afterwards, matching the
// chip's post-reset transport state.
func (d *Device) Reset(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.conn.SetCRCMode(false)
	if err := d.ops.SoftReset(); err != nil {
		return err
	}
	if _, err := status.WaitContext(ctx, d.ops, chip.SYS_STATUS_SPIRDY|chip.SYS_STATUS_RCINIT, 0); err != nil {
		return err
	}
	d.conn.SetCRCMode(d.useCRC)
	return nil
}

// TxFrame starts a transmission. The exchange stays in flight until the
// completion is observed through WaitExchange or canceled with Abort.
func (d *Device) TxFrame(data []byte, desc exchange.TxDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.beginLocked(); err != nil {
		return err
	}
	if err := d.orch.TxFrame(data, desc); err != nil {
		d.pending = nil
		return err
	}
	return nil
}

// RxEnable enables the receiver. The coexistence arbiter may rewrite the
// descriptor's Delayed/DateDTU before the enable is issued.
func (d *Device) RxEnable(desc *exchange.RxDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.beginLocked(); err != nil {
		return err
	}
	if err := d.orch.RxEnable(desc); err != nil {
		d.pending = nil
		return err
	}
	return nil
}

func (d *Device) beginLocked() error {
	if d.pending != nil && !d.pending.Test() {
		return uwberr.RuntimeError("exchange already in flight")
	}
	d.pending = newCompletion()
	return nil
}

// WaitExchange blocks until the in-flight exchange completes or ctx ends.
// With the interrupt loop running it waits on the completion the loop
// delivers; otherwise it polls the status word directly (the bounded variant
// of the raw busy-wait). A timed-out wait leaves the exchange pending;
// cancel it with Abort.
func (d *Device) WaitExchange(ctx context.Context) (ExchangeEvent, error) {
	d.mu.Lock()
	pending, irq := d.pending, d.irqMode
	d.mu.Unlock()

	if pending == nil {
		return ExchangeEvent{}, uwberr.RuntimeError("no exchange in flight")
	}
	if irq {
		ev, err := pending.Wait(ctx)
		if pending.Test() {
			d.consume(pending)
		}
		return ev, err
	}
	snap, err := status.WaitContext(ctx, lockedSource{d}, exchangeMask, 0)
	if err != nil {
		return ExchangeEvent{}, err
	}
	ev, err := d.finishExchange(snap)
	d.consume(pending)
	return ev, err
}

// consume retires a delivered completion. The pointer compare keeps a late
// consumer from dropping a newer exchange's slot.
func (d *Device) consume(p *Completion) {
	d.mu.Lock()
	if d.pending == p {
		d.pending = nil
	}
	d.mu.Unlock()
}

// lockedSource serializes status polls against the session mutex so a
// blocked wait never shares the bus with another caller mid-transaction.
type lockedSource struct {
	d *Device
}

func (s lockedSource) ReadStatusLo() (uint32, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.ops.ReadStatusLo()
}

func (s lockedSource) ReadStatusHi() (uint32, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.d.ops.ReadStatusHi()
}

// finishExchange classifies and clears a completion snapshot, releases the
// coexistence line and delivers the pending completion.
func (d *Device) finishExchange(snap status.Snapshot) (ExchangeEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ev := ExchangeEvent{
		Status:    snap,
		TxDone:    snap.Lo&txDoneMask != 0,
		RxGood:    snap.Lo&rxGoodMask != 0,
		RxTimeout: snap.Lo&rxTimeoutMask != 0,
		RxError:   snap.Lo&rxErrorMask != 0,
	}

	var finishErr error
	if ev.RxError || ev.RxTimeout {
		if err := status.Classify(snap.Lo, d.ops, &d.counters); err != nil {
			finishErr = err
		}
	}
	if err := d.ops.ClearStatus(snap.Lo & exchangeMask); err != nil && finishErr == nil {
		finishErr = err
	}
	if err := d.arb.Stop(); err != nil {
		d.log.Warn().Err(err).Msg("coex release failed at exchange completion")
	}
	// The slot stays occupied until the waiter consumes it or the next
	// exchange replaces it; Abort is the only immediate clear.
	if d.pending != nil {
		d.pending.complete(ev, finishErr)
	}
	return ev, finishErr
}

// Abort cancels a programmed exchange: forces the transceiver idle, releases
// the coexistence line and fails the pending completion. This is the only
// cancellation path once a delayed start is programmed.
func (d *Device) Abort() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.ops.TRXOff()
	if stopErr := d.arb.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	if d.pending != nil {
		d.pending.complete(ExchangeEvent{}, uwberr.RuntimeError("exchange aborted"))
		d.pending = nil
	}
	return err
}

// Frame is a received frame with its raw reception marker.
type Frame struct {
	Payload       []byte
	Timestamp     dwtime.Timestamp40
	Ranging       bool
	PreambleCount uint16
}

// ReadFrame reads out the frame a completed reception left in the buffer,
// with its 40-bit timestamp.
func (d *Device) ReadFrame() (Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := d.ops.ReadRxFrameInfo()
	if err != nil {
		return Frame{}, err
	}
	payload, err := d.ops.ReadRxData(info.PayloadLen)
	if err != nil {
		return Frame{}, err
	}
	ts, err := d.ops.ReadRxTimestamp()
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Payload:       payload,
		Timestamp:     ts,
		Ranging:       info.Ranging,
		PreambleCount: info.PreambleCount,
	}, nil
}

// ArmRxTimeout derives the frame-wait timeout for a frame shape and programs
// it. The budget is computed in UUS and the frame-wait register counts UUS
// directly, so no device-time conversion happens here.
func (d *Device) ArmRxTimeout(baseDelayUUS uint32, shape budget.FrameShape) error {
	timeout, err := budget.RxTimeoutBudget(baseDelayUUS, shape)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ops.SetRxTimeout(timeout)
}

// ScheduleRx computes the delayed receive date keyed to ref: the
// shape-adjusted turn-on delay applied in device time. This is the single
// point where the UUS budget converts to DTU.
func ScheduleRx(ref dwtime.DTU, baseDelayUUS uint32, shape budget.FrameShape) (dwtime.DTU, error) {
	delay, err := budget.RxTurnOnDelay(baseDelayUUS, shape)
	if err != nil {
		return 0, err
	}
	return ref.Add(int32(dwtime.UUSToDTU(delay))), nil
}

// SysTime reads the current device time.
func (d *Device) SysTime() (dwtime.DTU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ops.ReadSysTime()
}

// CoexState reports the arbiter state and last-known device time.
func (d *Device) CoexState() (coex.State, dwtime.DTU) {
	return d.arb.State()
}

// Counters returns a copy of the accumulated classifier counters.
func (d *Device) Counters() status.Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters
}

// RegRead32 exposes raw register reads for diagnostics tooling.
func (d *Device) RegRead32(reg transport.RegFile, sub uint16) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Read32(reg, sub)
}

// RegWrite32 exposes raw register writes for diagnostics tooling.
func (d *Device) RegWrite32(reg transport.RegFile, sub uint16, v uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Write32(reg, sub, v)
}
