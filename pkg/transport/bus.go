package transport

import (
	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/pool"
	"dw3000-go/pkg/uwberr"
)

// Bus is the physical command/response transport under the codec. Calls are
// blocking request/response with no pipelining; serialization across callers
// is the owner's responsibility (one transaction in flight at a time).
//
// A read must deliver exactly readLen bytes or fail: implementations return
// a TRANSPORT_SHORT_READ error on truncation, never a short slice.
type Bus interface {
	// Write sends header then body in one transaction.
	Write(header, body []byte) error

	// WriteCRC sends header, body and the precomputed CRC-8 guard byte as
	// the final transport byte of one transaction.
	WriteCRC(header, body []byte, crc byte) error

	// Read sends header and receives exactly readLen reply bytes.
	Read(header []byte, readLen int) ([]byte, error)

	// SetFastRate switches between the slow probe clock and the full
	// operating clock. Toggled out of band, never mid-transaction.
	SetFastRate(fast bool) error

	Close() error
}

// Conn wraps a Bus with the register transaction helpers the chip layer
// uses. Short one-byte headers are chosen automatically when the
// sub-address is 0. With CRC mode enabled every plain write carries the
// CRC-8 guard; fast commands are single-byte strobes and never do.
type Conn struct {
	bus Bus
	crc bool
}

// NewConn wraps bus. CRC mode starts disabled to match the chip's
// post-reset state.
func NewConn(bus Bus) *Conn {
	return &Conn{bus: bus}
}

// SetCRCMode turns the write guard on or off. The caller keeps this in step
// with the chip-side SPI CRC configuration.
func (c *Conn) SetCRCMode(on bool) {
	c.crc = on
}

// CRCMode reports whether writes carry the CRC-8 guard.
func (c *Conn) CRCMode() bool {
	return c.crc
}

// SetFastRate switches the bus clock rate.
func (c *Conn) SetFastRate(fast bool) error {
	return c.bus.SetFastRate(fast)
}

// Close closes the underlying bus.
func (c *Conn) Close() error {
	return c.bus.Close()
}

func readHeader(reg RegFile, sub uint16) ([]byte, error) {
	if sub == 0 {
		return EncodeHeader(reg, 0, ShortRead)
	}
	return EncodeHeader(reg, sub, FullRead)
}

func writeHeader(reg RegFile, sub uint16) ([]byte, error) {
	if sub == 0 {
		return EncodeHeader(reg, 0, ShortWrite)
	}
	return EncodeHeader(reg, sub, FullWrite)
}

func (c *Conn) write(header, body []byte) error {
	if c.crc {
		return c.bus.WriteCRC(header, body, CRC8(body, CRC8(header, 0)))
	}
	return c.bus.Write(header, body)
}

// ReadBytes reads n bytes from a register file offset.
func (c *Conn) ReadBytes(reg RegFile, sub uint16, n int) ([]byte, error) {
	header, err := readHeader(reg, sub)
	if err != nil {
		return nil, err
	}
	out, err := c.bus.Read(header, n)
	if err != nil {
		return nil, err
	}
	if len(out) < n {
		return nil, uwberr.ShortReadError("read", n, len(out))
	}
	return out[:n], nil
}

// Read8 reads one byte.
func (c *Conn) Read8(reg RegFile, sub uint16) (uint8, error) {
	b, err := c.ReadBytes(reg, sub, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read16 reads a little-endian 16-bit value.
func (c *Conn) Read16(reg RegFile, sub uint16) (uint16, error) {
	b, err := c.ReadBytes(reg, sub, 2)
	if err != nil {
		return 0, err
	}
	return uint16(dwtime.UnpackLE(b)), nil
}

// Read32 reads a little-endian 32-bit value.
func (c *Conn) Read32(reg RegFile, sub uint16) (uint32, error) {
	b, err := c.ReadBytes(reg, sub, 4)
	if err != nil {
		return 0, err
	}
	return uint32(dwtime.UnpackLE(b)), nil
}

// WriteBytes writes body to a register file offset.
func (c *Conn) WriteBytes(reg RegFile, sub uint16, body []byte) error {
	header, err := writeHeader(reg, sub)
	if err != nil {
		return err
	}
	return c.write(header, body)
}

// Write8 writes one byte.
func (c *Conn) Write8(reg RegFile, sub uint16, v uint8) error {
	buf := pool.GetRegBuf(1)
	defer pool.PutRegBuf(buf)
	buf[0] = v
	return c.WriteBytes(reg, sub, buf)
}

// Write16 writes a little-endian 16-bit value.
func (c *Conn) Write16(reg RegFile, sub uint16, v uint16) error {
	buf := pool.GetRegBuf(2)
	defer pool.PutRegBuf(buf)
	dwtime.PutLE(buf, uint64(v))
	return c.WriteBytes(reg, sub, buf)
}

// Write32 writes a little-endian 32-bit value.
func (c *Conn) Write32(reg RegFile, sub uint16, v uint32) error {
	buf := pool.GetRegBuf(4)
	defer pool.PutRegBuf(buf)
	dwtime.PutLE(buf, uint64(v))
	return c.WriteBytes(reg, sub, buf)
}

// MaskedWrite8 writes reg[sub] = (reg[sub] & and) | or in one transaction.
func (c *Conn) MaskedWrite8(reg RegFile, sub uint16, and, or uint8) error {
	header, err := EncodeHeader(reg, sub, MaskedWrite8)
	if err != nil {
		return err
	}
	buf := pool.GetRegBuf(2)
	defer pool.PutRegBuf(buf)
	buf[0] = and
	buf[1] = or
	return c.write(header, buf)
}

// MaskedWrite16 is the 16-bit AND-OR form.
func (c *Conn) MaskedWrite16(reg RegFile, sub uint16, and, or uint16) error {
	header, err := EncodeHeader(reg, sub, MaskedWrite16)
	if err != nil {
		return err
	}
	buf := pool.GetRegBuf(4)
	defer pool.PutRegBuf(buf)
	dwtime.PutLE(buf[:2], uint64(and))
	dwtime.PutLE(buf[2:], uint64(or))
	return c.write(header, buf)
}

// MaskedWrite32 is the 32-bit AND-OR form.
func (c *Conn) MaskedWrite32(reg RegFile, sub uint16, and, or uint32) error {
	header, err := EncodeHeader(reg, sub, MaskedWrite32)
	if err != nil {
		return err
	}
	buf := pool.GetRegBuf(8)
	defer pool.PutRegBuf(buf)
	dwtime.PutLE(buf[:4], uint64(and))
	dwtime.PutLE(buf[4:], uint64(or))
	return c.write(header, buf)
}

// FastCmd strobes a one-byte fast command. Fast commands are bodyless and
// never carry the CRC guard.
func (c *Conn) FastCmd(cmd uint8) error {
	header, err := EncodeHeader(RegFile(cmd), 0, FastCommand)
	if err != nil {
		return err
	}
	return c.bus.Write(header, nil)
}
