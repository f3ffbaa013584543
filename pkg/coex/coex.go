// Package coex arbitrates the out-of-band GPIO shared with a co-located
// radio. Before a TX/RX exchange the arbiter raises the grant line early
// enough that the neighbor gets a fixed window of guaranteed silence before
// the UWB exchange begins; after the exchange, or on any failure past a
// successful arm, the line must be released exactly once.
package coex

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"dw3000-go/pkg/dwtime"
)

// Fixed grant lead times, microseconds. The neighbor radio is promised
// TimeUs+MarginUs of silence between the line rising and the exchange.
const (
	TimeUs   = 1000
	MarginUs = 100
)

// Radio is the slice of register dispatch the arbiter drives: the device
// time counter and the chip GPIO block carrying the coexistence line.
type Radio interface {
	ReadSysTime() (dwtime.DTU, error)
	SetGPIOValue(mask, value uint16) error
	SetGPIODir(mask uint16, input bool) error
	SetGPIOMode(pin uint8, function uint8) error
}

// Config selects the coexistence line. The zero value disables the whole
// subsystem and turns the arbiter into a passthrough.
type Config struct {
	// Enabled wires the arbiter to a pin. Without it every call is a
	// no-op.
	Enabled bool

	// Pin is the chip GPIO index carrying the grant line.
	Pin uint8

	// ActiveHigh selects the line's active level.
	ActiveHigh bool

	// TimeUs and MarginUs override the fixed lead times when non-zero.
	// Eval boards with slower neighbors stretch them; production keeps
	// the defaults.
	TimeUs   uint32
	MarginUs uint32

	// Log receives arm/release events; nil disables logging.
	Log *zerolog.Logger
}

// State is the arbiter's position in an exchange.
type State uint8

const (
	// Idle means the line is released.
	Idle State = iota
	// Armed means the line is held active for an exchange in flight.
	Armed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Arbiter negotiates the shared line for one exchange at a time. Start and
// Stop pairs must not interleave across exchanges; the caller holds the
// device session for the duration.
type Arbiter struct {
	radio Radio
	cfg   Config
	log   zerolog.Logger
	sleep func(time.Duration)

	mu       sync.Mutex
	state    State
	lastTime dwtime.DTU
}

// New builds an arbiter over radio. A disabled config is valid and yields
// a passthrough.
func New(radio Radio, cfg Config) *Arbiter {
	if cfg.TimeUs == 0 {
		cfg.TimeUs = TimeUs
	}
	if cfg.MarginUs == 0 {
		cfg.MarginUs = MarginUs
	}
	log := zerolog.Nop()
	if cfg.Log != nil {
		log = *cfg.Log
	}
	return &Arbiter{
		radio: radio,
		cfg:   cfg,
		log:   log,
		sleep: time.Sleep,
	}
}

// Enabled reports whether a pin is configured.
func (a *Arbiter) Enabled() bool {
	return a.cfg.Enabled
}

// Configure programs the pin as a plain GPIO output at the inactive level.
// Called once at device bring-up.
func (a *Arbiter) Configure() error {
	if !a.cfg.Enabled {
		return nil
	}
	if err := a.radio.SetGPIOMode(a.cfg.Pin, 0); err != nil {
		return err
	}
	if err := a.radio.SetGPIODir(1<<a.cfg.Pin, false); err != nil {
		return err
	}
	return a.drive(false)
}

// Start arms the line for an exchange. delayed and date are the exchange's
// scheduling fields, borrowed mutably: a caller that did not ask for a
// delayed start gets one, rescheduled far enough out to honor the grant
// window; a caller-scheduled start keeps its date and the arbiter waits
// out the slack before raising the line. This is the one sanctioned
// mutation of an exchange descriptor outside its owner.
func (a *Arbiter) Start(delayed *bool, date *dwtime.DTU) error {
	if !a.cfg.Enabled {
		return nil
	}
	now, err := a.radio.ReadSysTime()
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.lastTime = now
	a.mu.Unlock()

	var wait time.Duration
	*delayed, *date, wait = a.cfg.Schedule(now, *delayed, *date)
	return a.arm(wait)
}

// arm waits out the slack, then drives the line active.
func (a *Arbiter) arm(wait time.Duration) error {
	if wait > 0 {
		a.sleep(wait)
	}
	if err := a.drive(true); err != nil {
		return err
	}
	a.mu.Lock()
	a.state = Armed
	a.mu.Unlock()
	a.log.Debug().Dur("wait", wait).Msg("coex armed")
	return nil
}

// Stop releases the line. Safe to call when already idle; required exactly
// once on every path that ran a successful Start, including failures.
func (a *Arbiter) Stop() error {
	if !a.cfg.Enabled {
		return nil
	}
	err := a.drive(false)
	a.mu.Lock()
	a.state = Idle
	a.mu.Unlock()
	if err == nil {
		a.log.Debug().Msg("coex released")
	}
	return err
}

func (a *Arbiter) drive(active bool) error {
	mask := uint16(1) << a.cfg.Pin
	var value uint16
	if active == a.cfg.ActiveHigh {
		value = mask
	}
	return a.radio.SetGPIOValue(mask, value)
}

// State reports the arbiter position and the last sampled device time.
func (a *Arbiter) State() (State, dwtime.DTU) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state, a.lastTime
}

// Schedule computes what Start does to an exchange's scheduling fields at
// device time now: the rewritten delayed/date pair and the slack slept
// before the line rises. Pure, so dry-run tooling can preview a grant
// without driving the pin. Zero TimeUs/MarginUs fall back to the fixed
// defaults, as in New.
func (cfg Config) Schedule(now dwtime.DTU, delayed bool, date dwtime.DTU) (bool, dwtime.DTU, time.Duration) {
	timeUs, marginUs := cfg.TimeUs, cfg.MarginUs
	if timeUs == 0 {
		timeUs = TimeUs
	}
	if marginUs == 0 {
		marginUs = MarginUs
	}
	guardUs := timeUs + marginUs

	if !delayed {
		return true, now.Add(int32(dwtime.MicrosToDTU(guardUs))), 0
	}
	diffUs := dwtime.DTUToMicros(dwtime.Sub(date, now))
	if diffUs <= int32(guardUs) {
		return true, date, 0
	}
	return true, date, time.Duration(diffUs-int32(guardUs)) * time.Microsecond
}
