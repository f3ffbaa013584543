// Package hostio binds the register transport to real host hardware: a
// spidev SPI port for the register bus plus optional GPIO lines for the
// interrupt and the RSTn pin. Deployments with the chip behind a serial
// bridge MCU use the serial package instead.
package hostio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"dw3000-go/pkg/pool"
	"dw3000-go/pkg/uwberr"
)

// SPI clock defaults. The chip accepts at most 7 MHz until its PLL locks,
// so the probe handshake runs on the slow clock and switches up afterward.
const (
	DefaultSlowHz = 3000000
	DefaultFastHz = 16000000
)

// Config selects the SPI port and GPIO lines.
type Config struct {
	// Port is a spireg name ("SPI0.0") or a device path
	// ("/dev/spidev0.0"). Empty selects the first available port.
	Port string

	// SlowHz and FastHz are the two SPI clock rates. Zero picks the
	// defaults.
	SlowHz int64
	FastHz int64

	// IRQPin names the interrupt line ("GPIO24"). Empty leaves the
	// binding without one, which limits sessions to polled waits.
	IRQPin string

	// ResetPin names the RSTn line. Empty disables HardReset.
	ResetPin string

	// Log receives binding lifecycle events. Nil means no logging.
	Log *zerolog.Logger
}

// Binding is the SPI register bus plus the chip's host-side GPIO lines.
// Transactions are blocking request/response; serialization across callers
// is the owner's responsibility.
type Binding struct {
	mu   sync.Mutex
	port spi.PortCloser
	slow spi.Conn
	fast spi.Conn
	cur  spi.Conn
	irq  gpio.PinIn
	rst  gpio.PinIO
	log  zerolog.Logger
}

// Open initializes the periph host, opens the SPI port and resolves the
// configured GPIO lines.
func Open(cfg Config) (*Binding, error) {
	if _, err := host.Init(); err != nil {
		return nil, uwberr.TransportError("host_init", err)
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, uwberr.TransportError("spi_open", err)
	}

	var irq gpio.PinIn
	if cfg.IRQPin != "" {
		p := gpioreg.ByName(cfg.IRQPin)
		if p == nil {
			port.Close()
			return nil, uwberr.New(uwberr.ErrTransport,
				fmt.Sprintf("no GPIO named %s", cfg.IRQPin)).SetOp("irq_pin")
		}
		irq = p
	}

	var rst gpio.PinIO
	if cfg.ResetPin != "" {
		p := gpioreg.ByName(cfg.ResetPin)
		if p == nil {
			port.Close()
			return nil, uwberr.New(uwberr.ErrTransport,
				fmt.Sprintf("no GPIO named %s", cfg.ResetPin)).SetOp("reset_pin")
		}
		rst = p
	}

	return newBinding(port, irq, rst, cfg)
}

func newBinding(port spi.PortCloser, irq gpio.PinIn, rst gpio.PinIO, cfg Config) (*Binding, error) {
	slowHz := cfg.SlowHz
	if slowHz == 0 {
		slowHz = DefaultSlowHz
	}
	fastHz := cfg.FastHz
	if fastHz == 0 {
		fastHz = DefaultFastHz
	}

	slow, err := port.Connect(physic.Frequency(slowHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, uwberr.TransportError("spi_connect", err)
	}
	fast, err := port.Connect(physic.Frequency(fastHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, uwberr.TransportError("spi_connect", err)
	}

	log := zerolog.Nop()
	if cfg.Log != nil {
		log = *cfg.Log
	}

	b := &Binding{
		port: port,
		slow: slow,
		fast: fast,
		cur:  slow,
		rst:  rst,
		log:  log,
	}

	if irq != nil {
		// The interrupt line idles low and pulses high.
		if err := irq.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			port.Close()
			return nil, uwberr.TransportError("irq_pin", err)
		}
		b.irq = irq
	}

	b.log.Debug().
		Str("port", port.String()).
		Int64("slow_hz", slowHz).
		Int64("fast_hz", fastHz).
		Msg("spi binding open")
	return b, nil
}

// Write sends header then body in one chip-select assertion.
func (b *Binding) Write(header, body []byte) error {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	buf.Write(header)
	buf.Write(body)

	if err := b.conn().Tx(buf.Bytes(), nil); err != nil {
		return uwberr.TransportError("spi_write", err)
	}
	return nil
}

// WriteCRC sends header, body and the guard byte as the final SPI byte.
func (b *Binding) WriteCRC(header, body []byte, crc byte) error {
	buf := pool.GetByteBuffer()
	defer pool.PutByteBuffer(buf)
	buf.Write(header)
	buf.Write(body)
	buf.WriteByte(crc)

	if err := b.conn().Tx(buf.Bytes(), nil); err != nil {
		return uwberr.TransportError("spi_write", err)
	}
	return nil
}

// Read sends header and clocks in exactly readLen reply bytes. The
// transfer is full duplex: the reply starts after the header span.
func (b *Binding) Read(header []byte, readLen int) ([]byte, error) {
	n := len(header) + readLen
	w := make([]byte, n)
	copy(w, header)
	r := make([]byte, n)

	if err := b.conn().Tx(w, r); err != nil {
		return nil, uwberr.TransportError("spi_read", err)
	}
	return r[len(header):], nil
}

// SetFastRate switches between the pre-lock probe clock and the full
// operating clock. Toggled out of band, never mid-transaction.
func (b *Binding) SetFastRate(fast bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fast {
		b.cur = b.fast
	} else {
		b.cur = b.slow
	}
	return nil
}

// Close releases the SPI port.
func (b *Binding) Close() error {
	if err := b.port.Close(); err != nil {
		return uwberr.TransportError("spi_close", err)
	}
	return nil
}

func (b *Binding) conn() spi.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// IRQ returns the interrupt pin, or nil when none was configured. The pin
// plugs straight into an interrupt-driven device session.
func (b *Binding) IRQ() gpio.PinIn {
	return b.irq
}

// HardReset pulses the RSTn line. The line is open drain on the chip
// side: drive it low, then float it and give the chip time to reboot
// into its idle state.
func (b *Binding) HardReset() error {
	if b.rst == nil {
		return uwberr.New(uwberr.ErrRuntime, "no reset pin configured")
	}
	if err := b.rst.Out(gpio.Low); err != nil {
		return uwberr.TransportError("reset_pin", err)
	}
	time.Sleep(time.Millisecond)
	if err := b.rst.In(gpio.Float, gpio.NoEdge); err != nil {
		return uwberr.TransportError("reset_pin", err)
	}
	time.Sleep(2 * time.Millisecond)
	b.log.Debug().Msg("hard reset pulsed")
	return nil
}
