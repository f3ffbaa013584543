package hostio

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"dw3000-go/pkg/uwberr"
)

type fakeConn struct {
	hz  physic.Frequency
	txs [][]byte
	rx  []byte
}

func (c *fakeConn) String() string      { return "fake-spi-conn" }
func (c *fakeConn) Duplex() conn.Duplex { return conn.Full }

func (c *fakeConn) Tx(w, r []byte) error {
	if w != nil {
		c.txs = append(c.txs, append([]byte(nil), w...))
	}
	if r != nil {
		if w != nil && len(w) != len(r) {
			return errors.New("full duplex length mismatch")
		}
		copy(r, c.rx)
	}
	return nil
}

func (c *fakeConn) TxPackets(p []spi.Packet) error {
	return errors.New("not implemented")
}

type fakePort struct {
	conns  []*fakeConn
	closed bool
}

func (p *fakePort) String() string { return "fake-spi-port" }

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) LimitSpeed(f physic.Frequency) error { return nil }

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	c := &fakeConn{hz: f}
	p.conns = append(p.conns, c)
	return c, nil
}

func openFake(t *testing.T, irq gpio.PinIn, rst gpio.PinIO) (*Binding, *fakePort) {
	t.Helper()
	fp := &fakePort{}
	b, err := newBinding(fp, irq, rst, Config{})
	if err != nil {
		t.Fatalf("newBinding: %v", err)
	}
	return b, fp
}

func TestBindingConnectsBothClockRates(t *testing.T) {
	_, fp := openFake(t, nil, nil)

	if len(fp.conns) != 2 {
		t.Fatalf("connected %d times, want 2", len(fp.conns))
	}
	wantSlow := physic.Frequency(DefaultSlowHz) * physic.Hertz
	wantFast := physic.Frequency(DefaultFastHz) * physic.Hertz
	if fp.conns[0].hz != wantSlow {
		t.Errorf("slow clock = %v, want %v", fp.conns[0].hz, wantSlow)
	}
	if fp.conns[1].hz != wantFast {
		t.Errorf("fast clock = %v, want %v", fp.conns[1].hz, wantFast)
	}
}

func TestBindingRateSwitchRoutesTraffic(t *testing.T) {
	b, fp := openFake(t, nil, nil)
	slow, fast := fp.conns[0], fp.conns[1]

	if err := b.Write([]byte{0x81}, []byte{0x01}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(slow.txs) != 1 || len(fast.txs) != 0 {
		t.Fatalf("probe-rate write went to the wrong conn")
	}

	if err := b.SetFastRate(true); err != nil {
		t.Fatalf("SetFastRate: %v", err)
	}
	if err := b.Write([]byte{0x81}, []byte{0x02}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fast.txs) != 1 {
		t.Fatalf("fast-rate write went to the wrong conn")
	}

	if err := b.SetFastRate(false); err != nil {
		t.Fatalf("SetFastRate: %v", err)
	}
	if err := b.Write([]byte{0x81}, nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(slow.txs) != 2 {
		t.Fatalf("rate switch back did not take")
	}
}

func TestBindingWriteConcatenatesTransaction(t *testing.T) {
	b, fp := openFake(t, nil, nil)

	if err := b.Write([]byte{0xc1, 0x40}, []byte{0xde, 0xad}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := fp.conns[0].txs[0]
	want := []byte{0xc1, 0x40, 0xde, 0xad}
	if string(got) != string(want) {
		t.Errorf("wire bytes % x, want % x", got, want)
	}
}

func TestBindingWriteCRCGuardIsLastByte(t *testing.T) {
	b, fp := openFake(t, nil, nil)

	if err := b.WriteCRC([]byte{0xc1}, []byte{0x01, 0x02}, 0x5a); err != nil {
		t.Fatalf("WriteCRC: %v", err)
	}
	got := fp.conns[0].txs[0]
	if len(got) != 4 || got[3] != 0x5a {
		t.Errorf("guard byte misplaced: % x", got)
	}
}

func TestBindingReadFullDuplex(t *testing.T) {
	b, fp := openFake(t, nil, nil)
	fp.conns[0].rx = []byte{0x00, 0x00, 0xaa, 0xbb, 0xcc, 0xdd}

	got, err := b.Read([]byte{0x01, 0x02}, 4)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string([]byte{0xaa, 0xbb, 0xcc, 0xdd}) {
		t.Errorf("reply % x", got)
	}

	// The shifted-out bytes are the header followed by don't-care zeros.
	sent := fp.conns[0].txs[0]
	want := []byte{0x01, 0x02, 0x00, 0x00, 0x00, 0x00}
	if string(sent) != string(want) {
		t.Errorf("wire bytes % x, want % x", sent, want)
	}
}

func TestBindingIRQPinSetup(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO24", Num: 24, EdgesChan: make(chan gpio.Level, 1)}
	b, _ := openFake(t, pin, nil)

	if b.IRQ() == nil {
		t.Fatal("IRQ pin lost")
	}
	if pin.P != gpio.PullDown {
		t.Errorf("pull = %v, want pull-down", pin.P)
	}

	pin.EdgesChan <- gpio.High
	if !b.IRQ().WaitForEdge(time.Second) {
		t.Error("edge not delivered")
	}
}

func TestBindingHardReset(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO23", Num: 23}
	b, _ := openFake(t, nil, pin)

	if err := b.HardReset(); err != nil {
		t.Fatalf("HardReset: %v", err)
	}
	// The line ends floating so the chip's open-drain side owns it.
	if pin.P != gpio.Float {
		t.Errorf("pull after reset = %v, want float", pin.P)
	}
}

func TestBindingHardResetWithoutPin(t *testing.T) {
	b, _ := openFake(t, nil, nil)
	if err := b.HardReset(); !uwberr.Is(err, uwberr.ErrRuntime) {
		t.Errorf("err = %v, want runtime error", err)
	}
}

func TestBindingClose(t *testing.T) {
	b, fp := openFake(t, nil, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fp.closed {
		t.Error("port left open")
	}
}
