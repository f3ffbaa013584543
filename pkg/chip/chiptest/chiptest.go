// Package chiptest holds an in-memory DW3xxx device model implementing
// transport.Bus. Tests and the simulator mode script its behavior: probe
// identifiers, delayed-start rejection, received frames, status sequencing
// and injected transaction failures, without hardware on the bus.
package chiptest

import (
	"sync"

	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/dwtime"
	"dw3000-go/pkg/transport"
	"dw3000-go/pkg/uwberr"
)

// Txn records one bus transaction for assertions.
type Txn struct {
	Header transport.Header
	Body   []byte
	CRC    *byte
	Read   bool
	N      int
}

// Model is the in-memory device. The zero value is not usable; construct
// with New. All methods are safe for concurrent use.
type Model struct {
	mu sync.Mutex

	// DevID is returned by device identifier reads.
	DevID uint32

	// Now is the device time returned by SYS_TIME reads; TimeStep is
	// added after each read to imitate the running counter.
	Now      dwtime.DTU
	TimeStep int32

	// RejectDelayed raises the half-period warning after any delayed
	// start strobe, making the chip refuse the programmed time.
	RejectDelayed bool

	// WriteHook, when set, runs before a write is applied; a non-nil
	// return is injected as the transaction's failure.
	WriteHook func(h transport.Header, body []byte) error

	// ReadHook, when set, overrides a read entirely.
	ReadHook func(h transport.Header, n int) ([]byte, error)

	regs        map[transport.RegFile][]byte
	frameLoaded bool

	// Log holds every transaction in order.
	Log []Txn

	fastRate bool
	closed   bool
}

// New builds a model that probes as devID.
func New(devID uint32) *Model {
	m := &Model{
		DevID: devID,
		regs:  make(map[transport.RegFile][]byte),
	}
	m.reset()
	return m
}

func fileSize(f transport.RegFile) int {
	switch f {
	case chip.RX_BUFFER_0, chip.RX_BUFFER_1, chip.TX_BUFFER, chip.ACC_MEM:
		return 1024
	}
	return 128
}

func (m *Model) file(f transport.RegFile) []byte {
	b, ok := m.regs[f]
	if !ok {
		b = make([]byte, fileSize(f))
		m.regs[f] = b
	}
	return b
}

// reset restores the post-reset register state: counters cleared and the
// startup status bits raised.
func (m *Model) reset() {
	m.regs = make(map[transport.RegFile][]byte)
	m.frameLoaded = false
	m.setStatusLocked(chip.SYS_STATUS_SPIRDY | chip.SYS_STATUS_RCINIT | chip.SYS_STATUS_CPLOCK)
}

func (m *Model) setStatusLocked(lo uint32) {
	dwtime.PutLE(m.file(chip.GEN_CFG_AES_0)[chip.SYS_STATUS:chip.SYS_STATUS+4], uint64(lo))
}

func (m *Model) statusLocked() uint32 {
	return uint32(dwtime.UnpackLE(m.file(chip.GEN_CFG_AES_0)[chip.SYS_STATUS : chip.SYS_STATUS+4]))
}

func (m *Model) orStatusLocked(lo uint32) {
	m.setStatusLocked(m.statusLocked() | lo)
}

// Write implements transport.Bus.
func (m *Model) Write(header, body []byte) error {
	return m.write(header, body, nil)
}

// WriteCRC implements transport.Bus, recomputing the guard the way the
// chip-side checker does and failing the transaction on mismatch.
func (m *Model) WriteCRC(header, body []byte, crc byte) error {
	return m.write(header, body, &crc)
}

func (m *Model) write(header, body []byte, crc *byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := transport.DecodeHeader(header)
	if err != nil {
		return err
	}
	m.Log = append(m.Log, Txn{Header: h, Body: append([]byte(nil), body...), CRC: crc})

	if crc != nil {
		want := transport.CRC8(body, transport.CRC8(header, 0))
		if *crc != want {
			return uwberr.CRCMismatchError(h.Mode.String(), want, *crc)
		}
	}
	if m.WriteHook != nil {
		if err := m.WriteHook(h, body); err != nil {
			return err
		}
	}

	switch h.Mode {
	case transport.FastCommand:
		m.fastCmd(uint8(h.Reg))
		return nil
	case transport.MaskedWrite8, transport.MaskedWrite16, transport.MaskedWrite32:
		return m.maskedWrite(h, body)
	}

	// Soft reset and write-1-to-clear get their special semantics before
	// the plain register store.
	if h.Reg == chip.PMSC && h.Sub == chip.SOFT_RST && len(body) > 0 && body[0] == chip.SOFT_RST_ALL {
		m.reset()
		return nil
	}
	if h.Reg == chip.GEN_CFG_AES_0 && h.Sub == chip.SYS_STATUS && len(body) == 4 {
		cleared := m.statusLocked() &^ uint32(dwtime.UnpackLE(body))
		m.setStatusLocked(cleared)
		return nil
	}

	file := m.file(h.Reg)
	if int(h.Sub)+len(body) > len(file) {
		return uwberr.FrameError(h.Mode.String(), "write past end of register file")
	}
	copy(file[h.Sub:], body)
	return nil
}

func (m *Model) maskedWrite(h transport.Header, body []byte) error {
	width := h.Mode.BodyLen() / 2
	if len(body) != 2*width {
		return uwberr.FrameError(h.Mode.String(), "masked write body length mismatch")
	}
	file := m.file(h.Reg)
	if int(h.Sub)+width > len(file) {
		return uwberr.FrameError(h.Mode.String(), "write past end of register file")
	}
	cur := dwtime.UnpackLE(file[h.Sub : int(h.Sub)+width])
	and := dwtime.UnpackLE(body[:width])
	or := dwtime.UnpackLE(body[width:])
	dwtime.PutLE(file[h.Sub:int(h.Sub)+width], cur&and|or)
	return nil
}

func (m *Model) fastCmd(cmd uint8) {
	switch cmd {
	case chip.CMD_TXRXOFF:
		// Idle; pending events stay readable until cleared.
	case chip.CMD_TX, chip.CMD_TX_W4R:
		m.orStatusLocked(chip.SYS_STATUS_TXFRB | chip.SYS_STATUS_TXPRS |
			chip.SYS_STATUS_TXPHS | chip.SYS_STATUS_TXFRS)
	case chip.CMD_DTX, chip.CMD_DTX_W4R, chip.CMD_DTX_TS, chip.CMD_DTX_RS,
		chip.CMD_DTX_REF, chip.CMD_DTX_TS_W4R, chip.CMD_DTX_RS_W4R, chip.CMD_DTX_REF_W4R:
		if m.RejectDelayed {
			m.orStatusLocked(chip.SYS_STATUS_HPDWARN)
			return
		}
		m.orStatusLocked(chip.SYS_STATUS_TXFRB | chip.SYS_STATUS_TXPRS |
			chip.SYS_STATUS_TXPHS | chip.SYS_STATUS_TXFRS)
	case chip.CMD_RX:
		m.rxStarted()
	case chip.CMD_DRX, chip.CMD_DRX_TS, chip.CMD_DRX_RS, chip.CMD_DRX_REF:
		if m.RejectDelayed {
			m.orStatusLocked(chip.SYS_STATUS_HPDWARN)
			return
		}
		m.rxStarted()
	case chip.CMD_CLR_IRQS:
		m.setStatusLocked(0)
		dwtime.PutLE(m.file(chip.GEN_CFG_AES_0)[chip.SYS_STATUS_HI:chip.SYS_STATUS_HI+2], 0)
	}
}

func (m *Model) rxStarted() {
	if m.frameLoaded {
		m.orStatusLocked(chip.SYS_STATUS_RXPRD | chip.SYS_STATUS_RXSFDD |
			chip.SYS_STATUS_RXPHD | chip.SYS_STATUS_CIADONE |
			chip.SYS_STATUS_RXFR | chip.SYS_STATUS_RXFCG)
	}
}

// Read implements transport.Bus.
func (m *Model) Read(header []byte, readLen int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := transport.DecodeHeader(header)
	if err != nil {
		return nil, err
	}
	m.Log = append(m.Log, Txn{Header: h, Read: true, N: readLen})

	if m.ReadHook != nil {
		return m.ReadHook(h, readLen)
	}
	if h.Mode != transport.ShortRead && h.Mode != transport.FullRead {
		return nil, uwberr.FrameError(h.Mode.String(), "read with a write header")
	}

	if h.Reg == chip.GEN_CFG_AES_0 && h.Sub == chip.DEV_ID {
		out := make([]byte, readLen)
		dwtime.PutLE(out, uint64(m.DevID))
		return out, nil
	}
	if h.Reg == chip.GEN_CFG_AES_0 && h.Sub == chip.SYS_TIME {
		out := make([]byte, readLen)
		dwtime.PutLE(out, uint64(uint32(m.Now)))
		m.Now = m.Now.Add(m.TimeStep)
		return out, nil
	}

	file := m.file(h.Reg)
	out := make([]byte, readLen)
	if int(h.Sub) < len(file) {
		copy(out, file[h.Sub:])
	}
	return out, nil
}

// SetFastRate implements transport.Bus.
func (m *Model) SetFastRate(fast bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fastRate = fast
	return nil
}

// FastRate reports the last rate selection.
func (m *Model) FastRate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fastRate
}

// Close implements transport.Bus.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Scripting helpers.

// SetStatus replaces the low status word.
func (m *Model) SetStatus(lo uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStatusLocked(lo)
}

// OrStatus raises bits in the low status word.
func (m *Model) OrStatus(lo uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orStatusLocked(lo)
}

// Status returns the low status word.
func (m *Model) Status() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// SetStatusHi replaces the high status word.
func (m *Model) SetStatusHi(hi uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dwtime.PutLE(m.file(chip.GEN_CFG_AES_0)[chip.SYS_STATUS_HI:chip.SYS_STATUS_HI+2], uint64(hi))
}

// SetStsStatus scripts the STS quality word read after a composite STS
// error, at both family locations.
func (m *Model) SetStsStatus(v uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.file(chip.STS_CFG)
	dwtime.PutLE(f[chip.STS_STS:chip.STS_STS+2], uint64(v))
	dwtime.PutLE(f[chip.STS_STS_ALT:chip.STS_STS_ALT+2], uint64(v))
}

// LoadRxFrame stages a received frame: payload in the receive buffer, the
// frame info word, and the RX marker timestamp. The reception status bits
// raise on the next receiver enable.
func (m *Model) LoadRxFrame(payload []byte, ts dwtime.Timestamp40, ranging bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.file(chip.RX_BUFFER_0), payload)

	finfo := uint32(len(payload)+chip.FCS_LEN) & chip.RX_FINFO_RXFLEN_MASK
	if ranging {
		finfo |= chip.RX_FINFO_RNG
	}
	f := m.file(chip.GEN_CFG_AES_0)
	dwtime.PutLE(f[chip.RX_FINFO:chip.RX_FINFO+4], uint64(finfo))
	dwtime.PutLE(f[chip.RX_TIME:int(chip.RX_TIME)+dwtime.Timestamp40Bytes], uint64(ts))
	m.frameLoaded = true
}

// SetTxTimestamp scripts the TX marker timestamp.
func (m *Model) SetTxTimestamp(ts dwtime.Timestamp40) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.file(chip.GEN_CFG_AES_0)
	dwtime.PutLE(f[chip.TX_TIME:int(chip.TX_TIME)+dwtime.Timestamp40Bytes], uint64(ts))
}

// Reg32 reads a register word directly, bypassing the bus.
func (m *Model) Reg32(reg transport.RegFile, sub uint16) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(dwtime.UnpackLE(m.file(reg)[sub : sub+4]))
}

// Reg16 reads a register half-word directly.
func (m *Model) Reg16(reg transport.RegFile, sub uint16) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint16(dwtime.UnpackLE(m.file(reg)[sub : sub+2]))
}

// RegBytes copies n register bytes directly.
func (m *Model) RegBytes(reg transport.RegFile, sub uint16, n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, n)
	copy(out, m.file(reg)[sub:])
	return out
}

// FastCmds lists the fast commands strobed so far, in order.
func (m *Model) FastCmds() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cmds []uint8
	for _, txn := range m.Log {
		if txn.Header.Mode == transport.FastCommand {
			cmds = append(cmds, uint8(txn.Header.Reg))
		}
	}
	return cmds
}

// WroteReg reports whether any write touched the given register, returning
// the last body written there.
func (m *Model) WroteReg(reg transport.RegFile, sub uint16) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var body []byte
	found := false
	for _, txn := range m.Log {
		if !txn.Read && txn.Header.Reg == reg && txn.Header.Sub == sub &&
			txn.Header.Mode != transport.FastCommand {
			body = txn.Body
			found = true
		}
	}
	return body, found
}
