package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"dw3000-go/pkg/budget"
	"dw3000-go/pkg/chip"
	"dw3000-go/pkg/config"
	"dw3000-go/pkg/device"
	"dw3000-go/pkg/exchange"
)

func TestParsePreamble(t *testing.T) {
	for _, n := range []int{32, 64, 72, 128, 256, 512, 1024, 1536, 2048, 4096} {
		p, err := parsePreamble(n)
		if err != nil {
			t.Errorf("parsePreamble(%d): %v", n, err)
		}
		if int(p) != n {
			t.Errorf("parsePreamble(%d) = %d", n, p)
		}
	}
	if _, err := parsePreamble(100); err == nil {
		t.Error("parsePreamble(100) accepted")
	}
}

func TestParseRate(t *testing.T) {
	cases := []struct {
		in   string
		want budget.DataRate
	}{
		{"6.8M", budget.Rate6M8},
		{"6.8m", budget.Rate6M8},
		{"850K", budget.Rate850K},
		{"850k", budget.Rate850K},
	}
	for _, tc := range cases {
		got, err := parseRate(tc.in)
		if err != nil {
			t.Errorf("parseRate(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("parseRate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := parseRate("110K"); err == nil {
		t.Error("parseRate(110K) accepted")
	}
}

func TestParseSTS(t *testing.T) {
	if got, err := parseSTS("off"); err != nil || got != budget.STSOff {
		t.Errorf("parseSTS(off) = %v, %v", got, err)
	}
	if got, err := parseSTS("32"); err != nil || got != budget.STS32 {
		t.Errorf("parseSTS(32) = %v, %v", got, err)
	}
	if got, err := parseSTS("2048"); err != nil || got != budget.STS2048 {
		t.Errorf("parseSTS(2048) = %v, %v", got, err)
	}
	if _, err := parseSTS("33"); err == nil {
		t.Error("parseSTS(33) accepted")
	}
	if _, err := parseSTS("then"); err == nil {
		t.Error("parseSTS(then) accepted")
	}
}

func TestParseRegAddr(t *testing.T) {
	reg, sub, err := parseRegAddr("0x1f", "0x7fff")
	if err != nil {
		t.Fatalf("parseRegAddr: %v", err)
	}
	if uint8(reg) != 0x1f || sub != 0x7fff {
		t.Errorf("parseRegAddr = %#x:%#x", uint8(reg), sub)
	}

	if _, _, err := parseRegAddr("0x20", "0"); err == nil {
		t.Error("file id 0x20 accepted; ids are 5 bits")
	}
	if _, _, err := parseRegAddr("zz", "0"); err == nil {
		t.Error("non-numeric file id accepted")
	}
	if _, _, err := parseRegAddr("0", "0x10000"); err == nil {
		t.Error("17-bit offset accepted")
	}
}

func TestShapeResolveDefaults(t *testing.T) {
	prof, err := config.LoadString("")
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	f := shapeFlags{}
	shape, err := f.resolve(prof)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := budget.FrameShape{PLen: budget.Plen128, Rate: budget.Rate6M8, STS: budget.STSOff}
	if diff := cmp.Diff(want, shape); diff != "" {
		t.Errorf("default shape mismatch (-want +got):\n%s", diff)
	}
}

func TestShapeResolveProfileThenFlags(t *testing.T) {
	prof, err := config.LoadString("[frame]\npreamble: 256\nrate: 850k\nsts: 64\n")
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	f := shapeFlags{}
	shape, err := f.resolve(prof)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := budget.FrameShape{PLen: budget.Plen256, Rate: budget.Rate850K, STS: budget.STS64}
	if diff := cmp.Diff(want, shape); diff != "" {
		t.Errorf("profile shape mismatch (-want +got):\n%s", diff)
	}

	// Flags override the profile.
	f = shapeFlags{preamble: 512, rate: "6.8m", sts: "off"}
	shape, err = f.resolve(prof)
	if err != nil {
		t.Fatalf("resolve with flags: %v", err)
	}
	want = budget.FrameShape{PLen: budget.Plen512, Rate: budget.Rate6M8, STS: budget.STSOff}
	if diff := cmp.Diff(want, shape); diff != "" {
		t.Errorf("flag shape mismatch (-want +got):\n%s", diff)
	}
}

func TestCoexConfigMapping(t *testing.T) {
	prof, err := config.LoadString("[coex]\npin: 5\nactive_high: no\ntime_us: 2000\n")
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	cfg, err := coexConfig(prof, nil)
	if err != nil {
		t.Fatalf("coexConfig: %v", err)
	}
	if !cfg.Enabled {
		t.Error("section present but Enabled false")
	}
	if cfg.Pin != 5 || cfg.ActiveHigh || cfg.TimeUs != 2000 || cfg.MarginUs != 0 {
		t.Errorf("mapped config = %+v", cfg)
	}

	empty, err := config.LoadString("")
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	cfg, err = coexConfig(empty, nil)
	if err != nil {
		t.Fatalf("coexConfig without section: %v", err)
	}
	if cfg.Enabled {
		t.Error("no section but Enabled true")
	}
}

func TestCoexConfigPinBounds(t *testing.T) {
	prof, err := config.LoadString("[coex]\npin: 9\n")
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	if _, err := coexConfig(prof, nil); err == nil {
		t.Error("pin 9 accepted; chip GPIOs are 0..8")
	}
}

func TestEventName(t *testing.T) {
	cases := []struct {
		ev   device.ExchangeEvent
		want string
	}{
		{device.ExchangeEvent{TxDone: true}, "tx done"},
		{device.ExchangeEvent{RxGood: true}, "rx good"},
		{device.ExchangeEvent{TxDone: true, RxGood: true}, "tx done + rx good"},
		{device.ExchangeEvent{RxTimeout: true}, "rx timeout"},
		{device.ExchangeEvent{RxError: true}, "rx error"},
		{device.ExchangeEvent{}, "no event"},
	}
	for _, tc := range cases {
		if got := eventName(tc.ev); got != tc.want {
			t.Errorf("eventName(%+v) = %q, want %q", tc.ev, got, tc.want)
		}
	}
}

func TestResultLabelMatchesEventKind(t *testing.T) {
	events := []device.ExchangeEvent{
		{TxDone: true},
		{RxGood: true},
		{RxTimeout: true},
		{RxError: true},
		{TxDone: true, RxTimeout: true},
	}
	for _, ev := range events {
		if got, want := resultLabel(ev), eventKind(ev); got != want {
			t.Errorf("resultLabel(%+v) = %q but eventKind = %q", ev, got, want)
		}
	}
}

func TestFormatBoost(t *testing.T) {
	if got := formatBoost(113); got != "11.3" {
		t.Errorf("formatBoost(113) = %q", got)
	}
	if got := formatBoost(0); got != "0.0" {
		t.Errorf("formatBoost(0) = %q", got)
	}
}

func TestSimSession(t *testing.T) {
	old := rootOpts.sim
	rootOpts.sim = true
	t.Cleanup(func() { rootOpts.sim = old })

	prof, err := config.LoadString("")
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	s, err := openSession(context.Background(), prof, zerolog.Nop())
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer s.Close()

	if got := s.dev.DevID(); got != chip.DEV_ID_DW3000 {
		t.Errorf("DevID = %#x, want %#x", got, uint32(chip.DEV_ID_DW3000))
	}

	t1, err := s.dev.SysTime()
	if err != nil {
		t.Fatalf("SysTime: %v", err)
	}
	t2, err := s.dev.SysTime()
	if err != nil {
		t.Fatalf("SysTime: %v", err)
	}
	if t2 == t1 {
		t.Error("device time not advancing")
	}

	// The staged blink frame comes through the receive path.
	desc := exchange.RxDescriptor{}
	if err := s.dev.RxEnable(&desc); err != nil {
		t.Fatalf("RxEnable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := s.dev.WaitExchange(ctx)
	if err != nil {
		t.Fatalf("WaitExchange: %v", err)
	}
	if !ev.RxGood {
		t.Fatalf("event = %+v, want RxGood", ev)
	}
	frame, err := s.dev.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(frame.Payload) != 10 || frame.Payload[0] != 0xc5 {
		t.Errorf("payload = %x", frame.Payload)
	}
	if !frame.Ranging {
		t.Error("staged frame lost its ranging mark")
	}
}
