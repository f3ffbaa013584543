package serial

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"dw3000-go/pkg/transport"
	"dw3000-go/pkg/uwberr"
)

// Bridge frame layout, both directions:
//
//	[len lo][len hi][ctrl][payload...][crc8][sync]
//
// len counts the whole frame. ctrl carries a 4-bit rolling sequence plus
// the request kind; responses echo the sequence. crc8 is the register
// transport guard polynomial over every byte before it. The link is strict
// request/response with no pipelining, so one sequence counter is enough
// to detect a desynchronized bridge.
const (
	frameSync   = 0x7e
	frameMin    = 5
	payloadMax  = 1028 // longest register transaction: 3-byte header + 1024-byte body + guard
	frameMax    = frameMin + payloadMax
	ctrlSeqMask = 0x0f
	ctrlRead    = 0x80
	ctrlCmd     = 0x40
	ctrlFault   = 0x20 // response only

	cmdPing    = 0x00
	cmdSetRate = 0x01
)

// Fault codes a bridge MCU reports in a ctrlFault response.
const (
	faultBadRequest  = 0x01
	faultUnsupported = 0x02
	faultSPI         = 0x03
)

// Bridge speaks the framed register protocol to an eval-board bridge MCU
// over a byte link. It satisfies the register transport Bus contract:
// calls are blocking request/response, serialized by the owner.
//
// Any framing violation poisons the link. A poisoned bridge fails every
// call until the owner reopens the port, because after a desync there is
// no way to know which transaction the next bytes belong to.
type Bridge struct {
	mu     sync.Mutex
	rw     io.ReadWriteCloser
	log    zerolog.Logger
	seq    uint8
	broken bool
}

// NewBridge wraps an open byte link. A nil logger disables logging.
func NewBridge(rw io.ReadWriteCloser, log *zerolog.Logger) *Bridge {
	l := zerolog.Nop()
	if log != nil {
		l = *log
	}
	return &Bridge{rw: rw, log: l}
}

// OpenBridge opens the configured serial device, drains boot noise and
// verifies the bridge answers a ping. A "socket:" device prefix connects
// to a bridge emulator instead of a tty.
func OpenBridge(cfg Config) (*Bridge, error) {
	var (
		port *Port
		err  error
	)
	if path, ok := strings.CutPrefix(cfg.Device, "socket:"); ok {
		port, err = OpenSocket(path, cfg.ConnectTimeout)
	} else {
		port, err = Open(cfg)
	}
	if err != nil {
		return nil, uwberr.TransportError("open", err)
	}

	_ = port.Flush()
	b := NewBridge(port, cfg.Log)
	if err := b.Ping(); err != nil {
		port.Close()
		return nil, err
	}
	b.log.Debug().Str("device", port.Device()).Msg("bridge link established")
	return b, nil
}

// Ping performs an empty control round trip.
func (b *Bridge) Ping() error {
	_, err := b.roundTrip("ping", ctrlCmd, 0, []byte{cmdPing})
	return err
}

// Write sends header then body as one SPI transaction on the far side.
func (b *Bridge) Write(header, body []byte) error {
	_, err := b.roundTrip("write", 0, 0, header, body)
	return err
}

// WriteCRC sends header, body and the guard byte. The guard is simply the
// final SPI byte; the bridge shifts it out like any other.
func (b *Bridge) WriteCRC(header, body []byte, crc byte) error {
	_, err := b.roundTrip("write", 0, 0, header, body, []byte{crc})
	return err
}

// Read sends header and returns exactly readLen reply bytes.
func (b *Bridge) Read(header []byte, readLen int) ([]byte, error) {
	if readLen < 0 || readLen > payloadMax {
		return nil, uwberr.FrameError("read", fmt.Sprintf("reply length %d out of range", readLen))
	}
	want := []byte{byte(readLen), byte(readLen >> 8)}
	return b.roundTrip("read", ctrlRead, readLen, want, header)
}

// SetFastRate switches the bridge's SPI clock between the slow probe rate
// and the full operating rate.
func (b *Bridge) SetFastRate(fast bool) error {
	arg := byte(0)
	if fast {
		arg = 1
	}
	_, err := b.roundTrip("set_rate", ctrlCmd, 0, []byte{cmdSetRate, arg})
	return err
}

// Close closes the underlying link.
func (b *Bridge) Close() error {
	return b.rw.Close()
}

func (b *Bridge) roundTrip(op string, kind byte, wantReply int, parts ...[]byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.broken {
		return nil, uwberr.New(uwberr.ErrTransport, "bridge link desynchronized, reopen the port").SetOp(op)
	}

	n := 0
	for _, p := range parts {
		n += len(p)
	}
	if n > payloadMax {
		return nil, uwberr.FrameError(op, fmt.Sprintf("payload %d exceeds frame capacity", n))
	}

	seq := b.seq
	b.seq = (b.seq + 1) & ctrlSeqMask

	total := frameMin + n
	frame := make([]byte, 0, total)
	frame = append(frame, byte(total), byte(total>>8), kind|seq)
	for _, p := range parts {
		frame = append(frame, p...)
	}
	frame = append(frame, transport.CRC8(frame, 0), frameSync)

	if err := b.writeFull(frame); err != nil {
		b.broken = true
		return nil, uwberr.TransportError(op, err)
	}

	ctrl, payload, err := b.readFrame(op)
	if err != nil {
		return nil, err
	}

	if ctrl&ctrlSeqMask != seq {
		b.broken = true
		return nil, uwberr.FrameError(op, fmt.Sprintf("response sequence %d, expected %d", ctrl&ctrlSeqMask, seq))
	}
	if ctrl&ctrlFault != 0 {
		return nil, bridgeFault(op, payload)
	}
	if len(payload) < wantReply {
		return nil, uwberr.ShortReadError(op, wantReply, len(payload))
	}
	if len(payload) > wantReply {
		b.broken = true
		return nil, uwberr.FrameError(op, fmt.Sprintf("reply carries %d bytes, requested %d", len(payload), wantReply))
	}
	return payload, nil
}

// writeFull loops until the whole frame is on the wire.
func (b *Bridge) writeFull(frame []byte) error {
	for len(frame) > 0 {
		n, err := b.rw.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

// readFull fills buf, tolerating the zero-byte reads the port produces on
// signal interruption.
func (b *Bridge) readFull(op string, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := b.rw.Read(buf[got:])
		if err != nil {
			b.broken = true
			return uwberr.TransportError(op, err)
		}
		got += n
	}
	return nil
}

func (b *Bridge) readFrame(op string) (ctrl byte, payload []byte, err error) {
	var hdr [3]byte
	if err := b.readFull(op, hdr[:]); err != nil {
		return 0, nil, err
	}
	total := int(hdr[0]) | int(hdr[1])<<8
	if total < frameMin || total > frameMax {
		b.broken = true
		return 0, nil, uwberr.FrameError(op, fmt.Sprintf("frame length %d out of range", total))
	}

	rest := make([]byte, total-len(hdr))
	if err := b.readFull(op, rest); err != nil {
		return 0, nil, err
	}

	if rest[len(rest)-1] != frameSync {
		b.broken = true
		return 0, nil, uwberr.FrameError(op, "missing sync byte")
	}
	wantCRC := transport.CRC8(rest[:len(rest)-2], transport.CRC8(hdr[:], 0))
	gotCRC := rest[len(rest)-2]
	if gotCRC != wantCRC {
		b.broken = true
		return 0, nil, uwberr.CRCMismatchError(op, wantCRC, gotCRC)
	}

	return hdr[2], rest[:len(rest)-2], nil
}

// bridgeFault maps a fault response to a driver error.
func bridgeFault(op string, payload []byte) error {
	code := byte(0xff)
	if len(payload) > 0 {
		code = payload[0]
	}
	switch code {
	case faultBadRequest:
		return uwberr.New(uwberr.ErrTransport, "bridge rejected the request frame").SetOp(op)
	case faultUnsupported:
		return uwberr.New(uwberr.ErrTransport, "bridge does not support this request").SetOp(op)
	case faultSPI:
		return uwberr.HWFaultError(op, "bridge reported an SPI fault")
	default:
		return uwberr.New(uwberr.ErrTransport, fmt.Sprintf("bridge fault 0x%02x", code)).SetOp(op)
	}
}
